// Package vuln implements the rule-based and LLM-assisted vulnerability and
// code-smell scanning paths of spec.md §4.H. The rule catalogue shape
// (id/severity/CWE-tagged patterns executed against source text) follows
// the rule/ruleset framing of the code-pathfinder SAST engine in the
// reference pack; the LLM path delegates to the opaque core.LLMProvider
// collaborator the way the teacher's goframe/llms abstraction is used.
package vuln

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/sevigo/codesentry/internal/core"
)

// Rule is one entry in the rule-based catalogue: a CWE/severity-tagged
// regex pattern matched against a file's raw source, line by line.
type Rule struct {
	ID       string
	Category string
	CWE      string
	Severity core.Severity
	Pattern  *regexp.Regexp
	// Exclude, when set, suppresses a Pattern match on a line that also
	// matches Exclude (RE2 has no lookaround, so exceptions are a second
	// pattern checked after the fact rather than baked into Pattern).
	Exclude   *regexp.Regexp
	Languages []core.Language // empty means "all languages"
}

// DefaultRules is the built-in catalogue: SQL injection, command injection,
// hardcoded secrets, path traversal, XSS, and unsafe deserialisation, per
// spec.md §4.H.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:       "sql-injection-concat",
			Category: "sql-injection",
			CWE:      "CWE-89",
			Severity: core.SeverityHigh,
			Pattern:  regexp.MustCompile(`(?i)(SELECT|INSERT|UPDATE|DELETE)\b[^;"']*["'][^"']*["']\s*\+`),
		},
		{
			ID:       "sql-injection-format",
			Category: "sql-injection",
			CWE:      "CWE-89",
			Severity: core.SeverityHigh,
			Pattern:  regexp.MustCompile(`(?i)(execute|exec|cursor\.execute|query)\s*\(\s*["'].*%s.*["']\s*%`),
		},
		{
			ID:       "command-injection-shell",
			Category: "command-injection",
			CWE:      "CWE-78",
			Severity: core.SeverityCritical,
			Pattern:  regexp.MustCompile(`(?i)\b(os\.system|subprocess\.call|subprocess\.Popen|popen|exec)\s*\([^)]*\+`),
		},
		{
			ID:       "command-injection-shell-true",
			Category: "command-injection",
			CWE:      "CWE-78",
			Severity: core.SeverityCritical,
			Pattern:  regexp.MustCompile(`(?i)shell\s*=\s*True`),
		},
		{
			ID:       "hardcoded-secret",
			Category: "hardcoded-secret",
			CWE:      "CWE-798",
			Severity: core.SeverityHigh,
			Pattern:  regexp.MustCompile(`(?i)\b(password|passwd|secret|api[_-]?key|token)\s*[:=]\s*["'][A-Za-z0-9+/=_\-]{8,}["']`),
		},
		{
			ID:       "path-traversal",
			Category: "path-traversal",
			CWE:      "CWE-22",
			Severity: core.SeverityMedium,
			Pattern:  regexp.MustCompile(`(?i)(open|fopen|readfile|include|require)\s*\([^)]*\.\./`),
		},
		{
			ID:       "xss-unescaped-output",
			Category: "xss",
			CWE:      "CWE-79",
			Severity: core.SeverityMedium,
			Pattern:  regexp.MustCompile(`(?i)(innerHTML|document\.write|render_template_string)\s*\(?\s*=?\s*[^;]*\+`),
		},
		{
			ID:       "unsafe-deserialization",
			Category: "unsafe-deserialization",
			CWE:      "CWE-502",
			Severity: core.SeverityHigh,
			Pattern:  regexp.MustCompile(`(?i)\b(pickle\.loads|yaml\.load\s*\(|marshal\.loads)`),
			Exclude:  regexp.MustCompile(`(?i)Loader\s*=\s*yaml\.SafeLoader`),
		},
	}
}

// Finding is one scanner result, either rule-based or LLM-assisted.
type Finding struct {
	RuleID      string
	Line        int
	Snippet     string
	Confidence  core.Confidence
	Severity    core.Severity
	CWE         string
	Category    string
	Description string
}

// Scanner runs the rule catalogue against file source and, when an
// LLMProvider is configured, layers in LLM-assisted smell detection.
type Scanner struct {
	rules []Rule
	llm   core.LLMProvider
}

// New returns a Scanner with the given rule catalogue. llm may be nil, in
// which case LLM-assisted findings are skipped entirely.
func New(rules []Rule, llm core.LLMProvider) *Scanner {
	return &Scanner{rules: rules, llm: llm}
}

// ScanFile runs the rule-based catalogue against one file's source,
// returning coalesced findings (same rule + line ± 2 merged into one).
func (s *Scanner) ScanFile(lang core.Language, source []byte) []Finding {
	lines := strings.Split(string(source), "\n")
	var findings []Finding
	for _, r := range s.rules {
		if !r.appliesTo(lang) {
			continue
		}
		for i, line := range lines {
			if !r.Pattern.MatchString(line) {
				continue
			}
			if r.Exclude != nil && r.Exclude.MatchString(line) {
				continue
			}
			findings = append(findings, Finding{
				RuleID:      r.ID,
				Line:        i + 1,
				Snippet:     strings.TrimSpace(line),
				Confidence:  core.ConfidenceHigh,
				Severity:    r.Severity,
				CWE:         r.CWE,
				Category:    r.Category,
				Description: fmt.Sprintf("%s pattern matched (%s)", r.Category, r.CWE),
			})
		}
	}
	return coalesce(findings)
}

func (r Rule) appliesTo(lang core.Language) bool {
	if len(r.Languages) == 0 {
		return true
	}
	for _, l := range r.Languages {
		if l == lang {
			return true
		}
	}
	return false
}

// coalesce merges findings for the same rule whose lines are within 2 of
// each other, keeping the earliest line, per spec.md §4.H.
func coalesce(findings []Finding) []Finding {
	if len(findings) == 0 {
		return nil
	}
	sort.Slice(findings, func(i, j int) bool {
		if findings[i].RuleID != findings[j].RuleID {
			return findings[i].RuleID < findings[j].RuleID
		}
		return findings[i].Line < findings[j].Line
	})
	out := []Finding{findings[0]}
	for _, f := range findings[1:] {
		last := &out[len(out)-1]
		if f.RuleID == last.RuleID && f.Line-last.Line <= 2 {
			continue
		}
		out = append(out, f)
	}
	return out
}

// DetectSmells delegates to the configured LLMProvider for one symbol's
// source text. A nil provider or any provider error degrades to an empty
// result rather than failing the caller, per spec.md §4.H.
func (s *Scanner) DetectSmells(ctx context.Context, source, symbolName string, lang core.Language) []core.LLMSmellFinding {
	if s.llm == nil {
		return nil
	}
	findings, err := s.llm.DetectSmells(ctx, source, symbolName, lang)
	if err != nil {
		return nil
	}
	return findings
}

// ToVulnerability converts a rule-based Finding into a core.Vulnerability
// row scoped to a repo/file.
func ToVulnerability(repoID, fileID int64, f Finding) core.Vulnerability {
	return core.Vulnerability{
		RepoID:      repoID,
		FileID:      fileID,
		Line:        f.Line,
		RuleID:      f.RuleID,
		Severity:    f.Severity,
		CWE:         f.CWE,
		Category:    f.Category,
		Description: f.Description,
		Confidence:  f.Confidence,
		CodeSnippet: f.Snippet,
	}
}

// ToCodeSmell converts an LLM smell finding into a core.CodeSmell row
// scoped to a repo/file/symbol.
func ToCodeSmell(repoID, fileID int64, symbolID *int64, location string, f core.LLMSmellFinding) core.CodeSmell {
	return core.CodeSmell{
		RepoID:     repoID,
		SmellType:  f.SmellType,
		Severity:   f.Severity,
		Title:      f.SmellType,
		Suggestion: f.Suggestion,
		FileID:     fileID,
		SymbolID:   symbolID,
		Location:   location,
	}
}
