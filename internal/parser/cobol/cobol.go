// Package cobol implements core.SymbolParser for COBOL sources with a
// column-aware line scanner rather than an AST: no tree-sitter grammar for
// COBOL exists in the reference pack. The sequence area (columns 1-6) is
// dropped and a '*' or '/' in column 7 marks a comment line; paragraph and
// section headers are then recognized from the trimmed text of the line,
// without checking that they start in area A.
package cobol

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"

	"github.com/sevigo/codesentry/internal/core"
)

// Parser extracts PROCEDURE DIVISION paragraphs/sections as procedure
// symbols and COPY directives as imports. No state survives between calls.
type Parser struct{}

// New returns a COBOL SymbolParser.
func New() *Parser { return &Parser{} }

var _ core.SymbolParser = (*Parser)(nil)

func (p *Parser) Language() core.Language { return core.LangCOBOL }

const (
	// sequenceAreaWidth is the length of the sequence area (columns 1-6),
	// ignored for content purposes.
	sequenceAreaWidth = 6
	// indicatorColumn is the 0-based index of column 7, the indicator area.
	indicatorColumn = 6
	// areaAColumn is the 0-based index of column 8, where area A begins.
	areaAColumn = 7
)

var (
	paragraphHeader = regexp.MustCompile(`(?i)^([A-Z0-9][A-Z0-9-]*)\s*(SECTION)?\s*\.\s*$`)
	copyDirective   = regexp.MustCompile(`(?i)\bCOPY\s+([A-Z0-9][A-Z0-9-]*)`)
	procedureDiv    = regexp.MustCompile(`(?i)^PROCEDURE\s+DIVISION\b`)
	performTarget   = regexp.MustCompile(`(?i)\bPERFORM\s+([A-Z0-9][A-Z0-9-]*)`)
)

func (p *Parser) Parse(source []byte, _ string) (*core.ParseResult, error) {
	result := &core.ParseResult{}
	scanner := bufio.NewScanner(bytes.NewReader(source))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		lineNo      int
		inProcedure bool
		openName    string
		openStart   int
		haveOpen    bool
	)

	closeOpen := func(endLine int) {
		if !haveOpen {
			return
		}
		idx := len(result.Symbols) - 1
		if idx >= 0 && result.Symbols[idx].Name == openName && result.Symbols[idx].LineStart == openStart {
			result.Symbols[idx].LineEnd = endLine
		}
		haveOpen = false
	}

	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()

		if isCommentLine(raw) {
			continue
		}

		trimmed := areaContent(raw)
		if trimmed == "" {
			continue
		}

		if procedureDiv.MatchString(trimmed) {
			inProcedure = true
			continue
		}

		if m := copyDirective.FindStringSubmatch(trimmed); m != nil {
			result.ImportSites = append(result.ImportSites, core.ImportSite{ModuleOrFile: m[1], Line: lineNo})
			continue
		}

		if inProcedure {
			if m := paragraphHeader.FindStringSubmatch(trimmed); m != nil {
				closeOpen(lineNo - 1)
				name := m[1]
				result.Symbols = append(result.Symbols, core.Symbol{
					Name:      name,
					Kind:      core.KindProcedure,
					LineStart: lineNo,
					LineEnd:   lineNo,
					Signature: trimmed,
				})
				openName, openStart, haveOpen = name, lineNo, true
				continue
			}
		}

		if haveOpen {
			if m := performTarget.FindStringSubmatch(trimmed); m != nil {
				result.CallSites = append(result.CallSites, core.CallSite{
					FromSymbolName: openName,
					CalleeName:     m[1],
					Line:           lineNo,
				})
			}
		}
	}
	closeOpen(lineNo)
	return result, scanner.Err()
}

// isCommentLine reports whether the indicator area (column 7) marks raw as
// an entirely-commented line.
func isCommentLine(raw string) bool {
	if len(raw) <= indicatorColumn {
		return false
	}
	ind := raw[indicatorColumn]
	return ind == '*' || ind == '/'
}

// areaContent strips the sequence area and returns the trimmed content of
// areas A and B.
func areaContent(raw string) string {
	if len(raw) <= sequenceAreaWidth {
		return ""
	}
	return strings.TrimSpace(raw[sequenceAreaWidth:])
}
