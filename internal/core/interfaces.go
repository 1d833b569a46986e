package core

import "context"

// CallSite is a raw textual reference to a callee, emitted by a SymbolParser.
// Resolution to a target Symbol is deferred to CallGraphBuilder.
type CallSite struct {
	FromSymbolName string
	CalleeName     string
	Line           int
}

// ImportSite describes an imported module or file by name, as written in
// source. Resolving it to a File is CallGraphBuilder's job.
type ImportSite struct {
	ModuleOrFile string
	Line         int
}

// ParseResult is what one SymbolParser.Parse call returns for a single file.
type ParseResult struct {
	Symbols     []Symbol
	CallSites   []CallSite
	ImportSites []ImportSite
}

// SymbolParser is the capability every language implementation registers in
// the parser registry. Implementations keep no state across calls — parser
// state lives per invocation, not per process.
type SymbolParser interface {
	Language() Language
	Parse(source []byte, path string) (*ParseResult, error)
}

// EmbeddingProvider is the opaque collaborator that turns text into a fixed-
// dimension vector. Implementations normalize to unit length before return.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dim() int
}

// LLMSmellFinding is one item returned by an LLMProvider's smell detection pass.
type LLMSmellFinding struct {
	SmellType  string
	Severity   Severity
	Suggestion string
}

// LLMProvider is the opaque collaborator used for LLM-assisted smell
// detection. Failures are non-fatal to the caller; the scanner degrades to
// rule-only output.
type LLMProvider interface {
	DetectSmells(ctx context.Context, source, symbolName string, lang Language) ([]LLMSmellFinding, error)
}

// SourceFetcher resolves a Repository's pending source into a rooted tree on
// local disk. On success, cleanup releases the scratch directory and the
// caller calls it once done with the tree; on error the fetcher has already
// removed the directory and cleanup is nil.
type SourceFetcher interface {
	Fetch(ctx context.Context, repo Repository) (rootDir string, cleanup func(), err error)
}

// SymbolFilter narrows ListSymbols queries with keyset pagination.
type SymbolFilter struct {
	RepoID               int64
	FileID               int64
	Kind                 SymbolKind
	ComplexityBucket     ComplexityBucket
	MaintainabilityBucket MaintainabilityBucket
	AfterID              int64
	Limit                int
}

// Store is the durable repo/file/symbol store. One interface, backed by
// Postgres in production; implementations must tolerate concurrent readers
// during an in-progress ingest (read-committed isolation is sufficient).
type Store interface {
	CreateRepository(ctx context.Context, repo *Repository) error
	GetRepository(ctx context.Context, id int64) (*Repository, error)
	GetRepositoryByOrigin(ctx context.Context, originURL, branch string) (*Repository, error)
	ListRepositories(ctx context.Context) ([]Repository, error)
	UpdateRepositoryStatus(ctx context.Context, id int64, status RepoStatus, fileCount, symbolCount int, failureReason string) error

	ReplaceFilesAndSymbols(ctx context.Context, repoID int64, files []File, symbols []Symbol) ([]File, []Symbol, error)
	GetFile(ctx context.Context, repoID int64, path string) (*File, error)
	GetFileContent(ctx context.Context, repoID int64, path string) (string, error)
	ListFiles(ctx context.Context, repoID int64) ([]File, error)
	ListSymbols(ctx context.Context, filter SymbolFilter) ([]Symbol, error)
	GetSymbol(ctx context.Context, id int64) (*Symbol, error)

	ReplaceCallEdges(ctx context.Context, repoID int64, edges []CallEdge) error
	ListCallEdges(ctx context.Context, repoID int64) ([]CallEdge, error)
	ReplaceImportEdges(ctx context.Context, repoID int64, edges []ImportEdge) error
	ListImportEdges(ctx context.Context, repoID int64) ([]ImportEdge, error)

	ReplaceVulnerabilities(ctx context.Context, repoID int64, vulns []Vulnerability) error
	ListVulnerabilities(ctx context.Context, repoID int64) ([]Vulnerability, error)
	ReplaceCodeSmells(ctx context.Context, repoID int64, smells []CodeSmell) error
	ListCodeSmells(ctx context.Context, repoID int64) ([]CodeSmell, error)
	ReplaceDuplicationPairs(ctx context.Context, repoID int64, pairs []DuplicationPair) error
	ListDuplicationPairs(ctx context.Context, repoID int64) ([]DuplicationPair, error)

	GetQualityGateConfig(ctx context.Context, repoID int64) (*QualityGateConfig, error)
	UpsertQualityGateConfig(ctx context.Context, cfg QualityGateConfig) error

	CreateCICDRun(ctx context.Context, run *CICDRun) error
	UpdateCICDRunStatus(ctx context.Context, id int64, status RunStatus, gateResult string) error
	GetCICDRun(ctx context.Context, id int64) (*CICDRun, error)
	ListCICDRuns(ctx context.Context, repoID int64) ([]CICDRun, error)
}

// TaskKind identifies a stage in the JobScheduler's per-repo pipeline.
type TaskKind string

const (
	TaskIngest      TaskKind = "ingest"
	TaskParse       TaskKind = "parse"
	TaskMetrics     TaskKind = "metrics"
	TaskCallGraph   TaskKind = "callgraph"
	TaskEmbed       TaskKind = "embed"
	TaskDuplication TaskKind = "duplication"
	TaskVulns       TaskKind = "vulns"
	TaskBarrier     TaskKind = "barrier"
)

// Task is one unit of work tagged with the repository it mutates; the
// scheduler enforces at most one in-flight task per RepoID.
type Task struct {
	RepoID  int64
	Kind    TaskKind
	Attempt int
}

// JobDispatcher accepts Tasks for asynchronous processing, decoupling the
// event source (HTTP handler, webhook, CLI) from the execution mechanism.
type JobDispatcher interface {
	Dispatch(ctx context.Context, task Task) error
	Cancel(ctx context.Context, repoID int64) error
}

// Job is a single executable stage run by the scheduler's worker pool.
type Job interface {
	Run(ctx context.Context, task Task) error
}
