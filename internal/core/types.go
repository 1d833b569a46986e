// Package core defines the domain types and capability interfaces that form the
// backbone of the application. These components are designed to be abstract,
// allowing for flexible and decoupled implementations of the application's logic.
package core

import "time"

// Language identifies the source language a File or Symbol belongs to.
type Language string

const (
	LangPython   Language = "python"
	LangC        Language = "c"
	LangCOBOL    Language = "cobol"
	LangAssembly Language = "assembly"
	LangUnknown  Language = "unknown"
)

// RepoSource distinguishes how a Repository's source was obtained.
type RepoSource string

const (
	SourceUpload RepoSource = "upload"
	SourceRemote RepoSource = "remote"
)

// RepoStatus tracks a Repository through the ingest pipeline.
type RepoStatus string

const (
	StatusPending   RepoStatus = "pending"
	StatusCloning   RepoStatus = "cloning"
	StatusParsing   RepoStatus = "parsing"
	StatusAnalyzing RepoStatus = "analyzing"
	StatusCompleted RepoStatus = "completed"
	StatusFailed    RepoStatus = "failed"
)

// Repository is a submitted codebase tracked through ingest to completion.
type Repository struct {
	ID              int64      `db:"id"`
	Source          RepoSource `db:"source"`
	OriginURL       string     `db:"origin_url"`
	Branch          string     `db:"branch"`
	ArchivePath     string     `db:"archive_path"`
	Status          RepoStatus `db:"status"`
	FileCount       int        `db:"file_count"`
	SymbolCount     int        `db:"symbol_count"`
	Stars           int        `db:"stars"`
	PrimaryLanguage Language   `db:"primary_language"`
	FailureReason   string     `db:"failure_reason"`
	CreatedAt       time.Time  `db:"created_at"`
}

// File is one repo-relative source file discovered during ingest. Content
// holds the raw source text for files a parser could read; listing queries
// leave it empty and readers fetch it through GetFileContent.
type File struct {
	ID        int64    `db:"id"`
	RepoID    int64    `db:"repo_id"`
	Path      string   `db:"path"`
	Language  Language `db:"language"`
	ByteSize  int64    `db:"byte_size"`
	LineCount int      `db:"line_count"`
	SHA256    string   `db:"sha256"`
	ParseErr  string   `db:"parse_error"`
	Content   string   `db:"content"`
}

// SymbolKind enumerates the kinds of named constructs a parser extracts.
type SymbolKind string

const (
	KindFunction  SymbolKind = "function"
	KindClass     SymbolKind = "class"
	KindMethod    SymbolKind = "method"
	KindVariable  SymbolKind = "variable"
	KindProcedure SymbolKind = "procedure"
)

// ComplexityBucket classifies a Symbol's cyclomatic complexity for reporting.
type ComplexityBucket string

const (
	ComplexitySimple      ComplexityBucket = "simple"
	ComplexityModerate    ComplexityBucket = "moderate"
	ComplexityComplex     ComplexityBucket = "complex"
	ComplexityVeryComplex ComplexityBucket = "very_complex"
)

// ComplexityBucketOf classifies a raw cyclomatic complexity value.
func ComplexityBucketOf(v int) ComplexityBucket {
	switch {
	case v <= 10:
		return ComplexitySimple
	case v <= 20:
		return ComplexityModerate
	case v <= 50:
		return ComplexityComplex
	default:
		return ComplexityVeryComplex
	}
}

// MaintainabilityBucket classifies a Symbol's maintainability index.
type MaintainabilityBucket string

const (
	MaintainabilityExcellent MaintainabilityBucket = "excellent"
	MaintainabilityGood      MaintainabilityBucket = "good"
	MaintainabilityFair      MaintainabilityBucket = "fair"
	MaintainabilityPoor      MaintainabilityBucket = "poor"
)

// MaintainabilityBucketOf classifies a raw maintainability index value.
func MaintainabilityBucketOf(mi float64) MaintainabilityBucket {
	switch {
	case mi >= 85:
		return MaintainabilityExcellent
	case mi >= 65:
		return MaintainabilityGood
	case mi >= 50:
		return MaintainabilityFair
	default:
		return MaintainabilityPoor
	}
}

// Symbol is a named, source-addressable construct with a 1-based inclusive line range.
type Symbol struct {
	ID                    int64      `db:"id"`
	FileID                int64      `db:"file_id"`
	Name                  string     `db:"name"`
	Kind                  SymbolKind `db:"kind"`
	LineStart             int        `db:"line_start"`
	LineEnd               int        `db:"line_end"`
	Signature             string     `db:"signature"`
	Docstring             string     `db:"docstring"`
	HasDocstring          bool       `db:"has_docstring"`
	DocstringLength       int        `db:"docstring_length"`
	CyclomaticComplexity  int        `db:"cyclomatic_complexity"`
	MaintainabilityIndex  float64    `db:"maintainability_index"`
	MIApproximated        bool       `db:"mi_approximated"`
	LOC                   int        `db:"loc"`
	CommentLines          int        `db:"comment_lines"`
	BlankLines            int        `db:"blank_lines"`
}

// CallEdge is a directed, possibly-unresolved reference from one Symbol to a callee name.
// RepoID denormalizes the owning Repository so ReplaceCallEdges can scope its
// delete-then-insert without a join through Symbol/File.
type CallEdge struct {
	ID           int64  `db:"id"`
	RepoID       int64  `db:"repo_id"`
	FromSymbolID int64  `db:"from_symbol_id"`
	ToName       string `db:"to_name"`
	ToSymbolID   *int64 `db:"to_symbol_id"`
	FileID       int64  `db:"file_id"`
	Line         int    `db:"line"`
	IsExternal   bool   `db:"is_external"`
}

// ImportKind distinguishes a resolved intra-repo import from an external module reference.
type ImportKind string

const (
	ImportLocal    ImportKind = "local"
	ImportExternal ImportKind = "external"
)

// ImportEdge describes an imported module or file, by name or resolved file id.
// RepoID denormalizes the owning Repository for the same reason as CallEdge.
type ImportEdge struct {
	ID           int64      `db:"id"`
	RepoID       int64      `db:"repo_id"`
	FromFileID   int64      `db:"from_file_id"`
	ToFileID     *int64     `db:"to_file_id"`
	ToModuleName string     `db:"to_module_name"`
	Kind         ImportKind `db:"kind"`
}

// Embedding is a unit-normalized dense vector describing one Symbol.
type Embedding struct {
	SymbolID int64     `db:"symbol_id"`
	Dim      int       `db:"dim"`
	Vector   []float32 `db:"vector"`
}

// Severity is shared across Vulnerability and CodeSmell findings.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Confidence qualifies how certain a rule-based finding is.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Vulnerability is a rule- or LLM-flagged security finding.
type Vulnerability struct {
	ID          int64      `db:"id"`
	RepoID      int64      `db:"repo_id"`
	FileID      int64      `db:"file_id"`
	Line        int        `db:"line"`
	RuleID      string     `db:"rule_id"`
	Severity    Severity   `db:"severity"`
	CWE         string     `db:"cwe"`
	Category    string     `db:"category"`
	Description string     `db:"description"`
	Confidence  Confidence `db:"confidence"`
	CodeSnippet string     `db:"code_snippet"`
}

// CodeSmell is an LLM-assisted maintainability finding.
type CodeSmell struct {
	ID          int64    `db:"id"`
	RepoID      int64    `db:"repo_id"`
	SmellType   string   `db:"smell_type"`
	Severity    Severity `db:"severity"`
	Title       string   `db:"title"`
	Description string   `db:"description"`
	Suggestion  string   `db:"suggestion"`
	FileID      int64    `db:"file_id"`
	SymbolID    *int64   `db:"symbol_id"`
	Location    string   `db:"location"`
}

// DuplicationPair records a near-duplicate code fragment across two files, file1_id < file2_id.
type DuplicationPair struct {
	ID              int64   `db:"id"`
	RepoID          int64   `db:"repo_id"`
	File1ID         int64   `db:"file1_id"`
	File1Range      string  `db:"file1_range"`
	File2ID         int64   `db:"file2_id"`
	File2Range      string  `db:"file2_range"`
	Similarity      float64 `db:"similarity"`
	DuplicateLines  int     `db:"duplicate_lines"`
	DuplicateTokens int     `db:"duplicate_tokens"`
	Snippet         string  `db:"snippet"`
}

// QualityGateConfig holds the seven configurable thresholds evaluated by QualityGateEngine.
type QualityGateConfig struct {
	RepoID                     int64   `db:"repo_id"`
	MaxComplexity              int     `db:"max_complexity"`
	MaxCodeSmells              int     `db:"max_code_smells"`
	MaxCriticalSmells          int     `db:"max_critical_smells"`
	MaxVulnerabilities         int     `db:"max_vulnerabilities"`
	MaxCriticalVulnerabilities int     `db:"max_critical_vulnerabilities"`
	MinQualityScore            float64 `db:"min_quality_score"`
	MaxDuplicationPercentage   float64 `db:"max_duplication_percentage"`
	BlockOnFailure             bool    `db:"block_on_failure"`
}

// DefaultQualityGateConfig returns the fallback thresholds applied when a repo has none configured.
func DefaultQualityGateConfig(repoID int64) QualityGateConfig {
	return QualityGateConfig{
		RepoID:                     repoID,
		MaxComplexity:              20,
		MaxCodeSmells:              50,
		MaxCriticalSmells:          0,
		MaxVulnerabilities:         10,
		MaxCriticalVulnerabilities: 0,
		MinQualityScore:            70,
		MaxDuplicationPercentage:   15,
		BlockOnFailure:             true,
	}
}

// TriggeredBy identifies what started a CICDRun.
type TriggeredBy string

const (
	TriggeredManual    TriggeredBy = "manual"
	TriggeredWebhook   TriggeredBy = "webhook"
	TriggeredPreCommit TriggeredBy = "pre-commit"
)

// RunStatus is the state machine of a CICDRun: running -> (passed | failed | error).
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunPassed  RunStatus = "passed"
	RunFailed  RunStatus = "failed"
	RunError   RunStatus = "error"
)

// CICDRun is a persisted record of one quality-gate evaluation.
type CICDRun struct {
	ID          int64       `db:"id"`
	RepoID      int64       `db:"repo_id"`
	Branch      string      `db:"branch"`
	Commit      string      `db:"commit"`
	PRNumber    int         `db:"pr_number"`
	TriggeredBy TriggeredBy `db:"triggered_by"`
	Status      RunStatus   `db:"status"`
	GateResult  string      `db:"gate_result"` // JSON-encoded GateResult
	CreatedAt   time.Time   `db:"created_at"`
	CompletedAt *time.Time  `db:"completed_at"`
}

// GateCheck is one threshold evaluation within a GateResult.
type GateCheck struct {
	Name      string  `json:"name"`
	Passed    bool    `json:"passed"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Message   string  `json:"message"`
}

// GateResult is the outcome of a QualityGateEngine.Check call.
type GateResult struct {
	Passed     bool        `json:"passed"`
	BlockMerge bool        `json:"block_merge"`
	Checks     []GateCheck `json:"checks"`
	Summary    string      `json:"summary"`
	RunID      int64       `json:"run_id"`
}
