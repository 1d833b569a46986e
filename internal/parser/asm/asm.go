// Package asm implements core.SymbolParser for assembly sources with a
// label/instruction line scanner: no tree-sitter grammar for assembly
// exists in the reference pack, so labels are recognized lexically rather
// than through an AST.
package asm

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"

	"github.com/sevigo/codesentry/internal/core"
)

// Parser extracts labels as function symbols (spanning until the next
// label) and include directives as imports. No state survives between
// calls.
type Parser struct{}

// New returns an Assembly SymbolParser.
func New() *Parser { return &Parser{} }

var _ core.SymbolParser = (*Parser)(nil)

func (p *Parser) Language() core.Language { return core.LangAssembly }

var (
	labelLine    = regexp.MustCompile(`^\s*([A-Za-z_.$][A-Za-z0-9_.$]*):`)
	includeLine  = regexp.MustCompile(`(?i)^\s*(?:%include|\.include|\.inc)\s+["<]?([^">\s]+)[">]?`)
	callLine     = regexp.MustCompile(`(?i)^\s*(?:call|jmp|je|jne|jz|jnz|jl|jg|jle|jge|b|bl|bal)\s+([A-Za-z_.$][A-Za-z0-9_.$]*)`)
	commentToken = regexp.MustCompile(`^\s*(?:;|//)`)
)

func (p *Parser) Parse(source []byte, _ string) (*core.ParseResult, error) {
	result := &core.ParseResult{}
	scanner := bufio.NewScanner(bytes.NewReader(source))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		lineNo    int
		openName  string
		openStart int
		haveOpen  bool
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
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || commentToken.MatchString(line) {
			continue
		}

		if m := includeLine.FindStringSubmatch(line); m != nil {
			result.ImportSites = append(result.ImportSites, core.ImportSite{ModuleOrFile: m[1], Line: lineNo})
			continue
		}

		if m := labelLine.FindStringSubmatch(line); m != nil {
			closeOpen(lineNo - 1)
			name := m[1]
			result.Symbols = append(result.Symbols, core.Symbol{
				Name:      name,
				Kind:      core.KindFunction,
				LineStart: lineNo,
				LineEnd:   lineNo,
				Signature: name + ":",
			})
			openName, openStart, haveOpen = name, lineNo, true
			continue
		}

		if haveOpen {
			if m := callLine.FindStringSubmatch(line); m != nil {
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
