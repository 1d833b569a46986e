// Package metrics computes per-symbol cyclomatic complexity, maintainability
// index, LOC/comment/blank counts, and docstring coverage, instrumented with
// the same Prometheus counter/histogram idiom the reference pack uses for
// its ingestion stages.
package metrics

import (
	"bufio"
	"bytes"
	"math"
	"regexp"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sevigo/codesentry/internal/core"
)

var (
	registerOnce         sync.Once
	symbolsAnalyzedTotal prometheus.Counter
	analyzeSeconds       prometheus.Histogram
)

func registerMetrics() {
	registerOnce.Do(func() {
		symbolsAnalyzedTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "codesentry_metrics_symbols_analyzed_total",
			Help: "Total number of symbols analyzed by MetricsAnalyzer.",
		})
		analyzeSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "codesentry_metrics_analyze_seconds",
			Help:    "Time spent analyzing one symbol's metrics.",
			Buckets: prometheus.DefBuckets,
		})
	})
}

// langRules holds the regexes used to find decision points, boolean
// operators, and comment-line markers for one Language. A line matching
// both caseArm and defaultArm is the switch's default arm and does not
// count as a decision point.
type langRules struct {
	decisionKeywords *regexp.Regexp
	caseArm          *regexp.Regexp
	defaultArm       *regexp.Regexp
	boolOperators    *regexp.Regexp
	lineComment      *regexp.Regexp
	blockStart       *regexp.Regexp
	blockEnd         *regexp.Regexp
}

var rules = map[core.Language]langRules{
	core.LangPython: {
		decisionKeywords: regexp.MustCompile(`\b(if|elif|while|for|except)\b`),
		caseArm:          regexp.MustCompile(`\bcase\b`),
		defaultArm:       regexp.MustCompile(`\bcase\s+_\s*:`),
		boolOperators:    regexp.MustCompile(`\b(and|or)\b`),
		lineComment:      regexp.MustCompile(`^\s*#`),
	},
	core.LangC: {
		decisionKeywords: regexp.MustCompile(`\b(if|while|for|catch)\b|\?`),
		caseArm:          regexp.MustCompile(`\bcase\b`),
		boolOperators:    regexp.MustCompile(`(&&|\|\|)`),
		lineComment:      regexp.MustCompile(`^\s*//`),
		blockStart:       regexp.MustCompile(`/\*`),
		blockEnd:         regexp.MustCompile(`\*/`),
	},
	core.LangAssembly: {
		decisionKeywords: regexp.MustCompile(`(?i)^\s*(j[a-z]+|b[a-z]*|loop)\b`),
		boolOperators:    regexp.MustCompile(`$^`), // assembly has no textual boolean operators
		lineComment:      regexp.MustCompile(`^\s*(;|//)`),
	},
	core.LangCOBOL: {
		decisionKeywords: regexp.MustCompile(`(?i)\b(IF|EVALUATE|PERFORM\s+(UNTIL|VARYING)|WHEN)\b`),
		boolOperators:    regexp.MustCompile(`(?i)\b(AND|OR)\b`),
		lineComment:      regexp.MustCompile(`$^`), // COBOL comments are column-based; handled separately
	},
}

// Analyzer computes metrics for Symbols against their enclosing file's raw
// source.
type Analyzer struct{}

// New returns a MetricsAnalyzer.
func New() *Analyzer {
	registerMetrics()
	return &Analyzer{}
}

// Analyze fills in the derived metric fields of sym in place, given the
// full raw source of the file it belongs to and its Language.
func (a *Analyzer) Analyze(lang core.Language, source []byte, sym *core.Symbol) {
	timer := prometheus.NewTimer(analyzeSeconds)
	defer timer.ObserveDuration()
	defer symbolsAnalyzedTotal.Inc()

	lines := splitLines(source)
	start, end := clampRange(sym.LineStart, sym.LineEnd, len(lines))
	body := lines[start-1 : end]

	loc, comment, blank := countLines(lang, body)
	sym.LOC = loc
	sym.CommentLines = comment
	sym.BlankLines = blank

	sym.CyclomaticComplexity = complexity(lang, body)

	vHalstead := float64(maxInt(1, loc))
	mi := maintainabilityIndex(vHalstead, float64(sym.CyclomaticComplexity), float64(maxInt(1, loc)))
	sym.MaintainabilityIndex = mi
	sym.MIApproximated = true // Halstead volume is never available; see spec.md §4.E

	doc := extractDocstring(lang, lines, sym.LineStart)
	sym.Docstring = doc
	sym.DocstringLength = len(doc)
	sym.HasDocstring = sym.DocstringLength > 0
}

func clampRange(start, end, n int) (int, int) {
	if start < 1 {
		start = 1
	}
	if end > n {
		end = n
	}
	if end < start {
		end = start
	}
	if start > n {
		start, end = n, n
	}
	if n == 0 {
		return 1, 1
	}
	return start, end
}

func splitLines(source []byte) []string {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(source))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if len(lines) == 0 {
		lines = []string{""}
	}
	return lines
}

// complexity implements spec.md §4.E: V = 1 + decision points, where a
// decision keyword/case-arm contributes 1 and, per condition line, boolean
// operators beyond the first contribute one additional point each.
func complexity(lang core.Language, body []string) int {
	r, ok := rules[lang]
	if !ok {
		return 1
	}
	v := 1
	for _, line := range body {
		if r.decisionKeywords != nil {
			v += len(r.decisionKeywords.FindAllString(line, -1))
		}
		if r.caseArm != nil {
			n := len(r.caseArm.FindAllString(line, -1))
			if n > 0 && r.defaultArm != nil && r.defaultArm.MatchString(line) {
				n--
			}
			v += n
		}
		if r.boolOperators != nil {
			n := len(r.boolOperators.FindAllString(line, -1))
			if n > 1 {
				v += n - 1
			}
		}
	}
	return v
}

func maintainabilityIndex(vHalstead, v, loc float64) float64 {
	mi := 171 - 5.2*math.Log(vHalstead) - 0.23*v - 16.2*math.Log(loc)
	mi = math.Max(0, math.Min(100, mi)) * 100 / 171
	return mi
}

func countLines(lang core.Language, body []string) (loc, comment, blank int) {
	r := rules[lang]
	inBlock := false
	for _, line := range body {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			blank++
			continue
		case lang == core.LangCOBOL && isCobolComment(line):
			comment++
			continue
		case inBlock:
			comment++
			if r.blockEnd != nil && r.blockEnd.MatchString(line) {
				inBlock = false
			}
			continue
		case r.lineComment != nil && r.lineComment.MatchString(line):
			comment++
			continue
		case r.blockStart != nil && r.blockStart.MatchString(line):
			comment++
			if r.blockEnd == nil || !r.blockEnd.MatchString(line) {
				inBlock = true
			}
			continue
		default:
			loc++
		}
	}
	return loc, comment, blank
}

const (
	cobolIndicatorColumn = 6
)

func isCobolComment(raw string) bool {
	if len(raw) <= cobolIndicatorColumn {
		return false
	}
	ind := raw[cobolIndicatorColumn]
	return ind == '*' || ind == '/'
}

// extractDocstring applies the language-specific rule of spec.md §4.E.
func extractDocstring(lang core.Language, lines []string, symbolStartLine int) string {
	switch lang {
	case core.LangPython:
		return pythonDocstring(lines, symbolStartLine)
	case core.LangC:
		return cBlockCommentAbove(lines, symbolStartLine)
	case core.LangCOBOL:
		return contiguousCommentsAbove(lines, symbolStartLine, isCobolComment)
	case core.LangAssembly:
		return contiguousCommentsAbove(lines, symbolStartLine, func(l string) bool {
			t := strings.TrimSpace(l)
			return strings.HasPrefix(t, ";") || strings.HasPrefix(t, "//")
		})
	default:
		return ""
	}
}

// pythonDocstring looks for the first string-literal statement in the
// symbol's body (the line(s) immediately following its header line).
func pythonDocstring(lines []string, symbolStartLine int) string {
	idx := symbolStartLine // 0-based index of the line after the header
	if idx >= len(lines) {
		return ""
	}
	first := strings.TrimSpace(lines[idx])
	if strings.HasPrefix(first, `"""`) || strings.HasPrefix(first, `'''`) {
		quote := first[:3]
		if len(first) > 6 && strings.HasSuffix(first, quote) {
			return strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(first, quote), quote))
		}
		var sb strings.Builder
		sb.WriteString(strings.TrimPrefix(first, quote))
		for i := idx + 1; i < len(lines); i++ {
			if strings.Contains(lines[i], quote) {
				sb.WriteString("\n" + strings.TrimSuffix(lines[i], quote))
				break
			}
			sb.WriteString("\n" + lines[i])
		}
		return strings.TrimSpace(sb.String())
	}
	if strings.HasPrefix(first, `"`) || strings.HasPrefix(first, `'`) {
		return strings.Trim(first, `"'`)
	}
	return ""
}

// cBlockCommentAbove returns the text of an immediately-preceding /** ... */
// block, if any, directly above symbolStartLine (1-based).
func cBlockCommentAbove(lines []string, symbolStartLine int) string {
	i := symbolStartLine - 2 // last line before the symbol, 0-based
	if i < 0 || i >= len(lines) {
		return ""
	}
	if !strings.Contains(strings.TrimSpace(lines[i]), "*/") {
		return ""
	}
	var collected []string
	for ; i >= 0; i-- {
		collected = append([]string{lines[i]}, collected...)
		if strings.Contains(lines[i], "/**") || strings.Contains(lines[i], "/*") {
			break
		}
	}
	joined := strings.Join(collected, "\n")
	if !strings.HasPrefix(strings.TrimSpace(joined), "/*") {
		return ""
	}
	joined = strings.TrimPrefix(strings.TrimSpace(joined), "/**")
	joined = strings.TrimPrefix(strings.TrimSpace(joined), "/*")
	joined = strings.TrimSuffix(strings.TrimSpace(joined), "*/")
	return strings.TrimSpace(joined)
}

// contiguousCommentsAbove collects a contiguous run of comment lines
// directly above symbolStartLine (1-based), per isComment.
func contiguousCommentsAbove(lines []string, symbolStartLine int, isComment func(string) bool) string {
	i := symbolStartLine - 2
	var collected []string
	for i >= 0 && isComment(lines[i]) {
		collected = append([]string{stripCommentMarker(lines[i])}, collected...)
		i--
	}
	return strings.TrimSpace(strings.Join(collected, "\n"))
}

func stripCommentMarker(line string) string {
	t := strings.TrimSpace(line)
	for _, marker := range []string{";", "//", "*", "/"} {
		if strings.HasPrefix(t, marker) {
			return strings.TrimSpace(strings.TrimPrefix(t, marker))
		}
	}
	return t
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
