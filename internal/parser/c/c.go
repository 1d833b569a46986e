// Package c implements core.SymbolParser for C sources using the
// tree-sitter-cpp grammar (a strict superset of C, sufficient for top-level
// function/typedef/#include extraction), in the same scope-stack style as
// the Python parser.
package c

import (
	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_cpp "github.com/tree-sitter/tree-sitter-cpp/bindings/go"

	"github.com/sevigo/codesentry/internal/core"
)

// Parser extracts top-level functions, typedef'd structs/unions, and
// #include directives from C source. Each Parse call builds its own
// tree-sitter parser; no state survives between calls.
type Parser struct{}

// New returns a C SymbolParser.
func New() *Parser { return &Parser{} }

var _ core.SymbolParser = (*Parser)(nil)

func (p *Parser) Language() core.Language { return core.LangC }

type parseError string

func (e parseError) Error() string { return string(e) }

var errNilTree = parseError("tree-sitter returned a nil tree")

func (p *Parser) Parse(source []byte, _ string) (*core.ParseResult, error) {
	ts := sitter.NewParser()
	defer ts.Close()
	if err := ts.SetLanguage(sitter.NewLanguage(tree_sitter_cpp.Language())); err != nil {
		return nil, err
	}

	tree := ts.Parse(source, nil)
	if tree == nil {
		return nil, errNilTree
	}
	defer tree.Close()

	w := &walker{source: source, result: &core.ParseResult{}}
	w.walk(tree.RootNode(), "")
	return w.result, nil
}

type walker struct {
	source []byte
	result *core.ParseResult
}

func text(n *sitter.Node, source []byte) string {
	if n == nil {
		return ""
	}
	start, end := n.StartByte(), n.EndByte()
	if start > uint(len(source)) || end > uint(len(source)) || start > end {
		return ""
	}
	return string(source[start:end])
}

func childByKind(n *sitter.Node, kind string) *sitter.Node {
	if n == nil {
		return nil
	}
	for i := uint(0); i < n.ChildCount(); i++ {
		c := n.Child(i)
		if c != nil && c.Kind() == kind {
			return c
		}
	}
	return nil
}

func lineRange(n *sitter.Node) (int, int) {
	return int(n.StartPosition().Row) + 1, int(n.EndPosition().Row) + 1
}

// walk traverses the translation unit, flattening nested declarations into
// symbols; currentSymbol attributes call sites to their enclosing function.
func (w *walker) walk(node *sitter.Node, currentSymbol string) {
	if node == nil {
		return
	}

	switch node.Kind() {
	case "function_definition":
		w.visitFunction(node)
		return
	case "type_definition":
		w.visitTypedef(node)
	case "preproc_include":
		w.visitInclude(node)
	case "call_expression":
		w.visitCall(node, currentSymbol)
	}

	for i := uint(0); i < node.ChildCount(); i++ {
		w.walk(node.Child(i), currentSymbol)
	}
}

func declaratorName(n *sitter.Node, source []byte) string {
	if n == nil {
		return ""
	}
	switch n.Kind() {
	case "identifier", "field_identifier":
		return text(n, source)
	case "function_declarator", "pointer_declarator", "array_declarator", "parenthesized_declarator":
		for i := uint(0); i < n.ChildCount(); i++ {
			if name := declaratorName(n.Child(i), source); name != "" {
				return name
			}
		}
	}
	return ""
}

func (w *walker) visitFunction(node *sitter.Node) {
	declarator := childByKind(node, "function_declarator")
	name := declaratorName(declarator, w.source)
	if name == "" {
		// Some grammars nest the function_declarator under a pointer_declarator.
		for i := uint(0); i < node.ChildCount(); i++ {
			if name = declaratorName(node.Child(i), w.source); name != "" {
				break
			}
		}
	}
	if name == "" {
		return
	}
	start, end := lineRange(node)

	sig := ""
	typeNode := childByKind(node, "primitive_type")
	if typeNode == nil {
		typeNode = node.Child(0)
	}
	if typeNode != nil && declarator != nil {
		sig = text(typeNode, w.source) + " " + text(declarator, w.source)
	} else {
		sig = text(node, w.source)
		if body := childByKind(node, "compound_statement"); body != nil {
			if bs, be := body.StartByte(), uint(len(w.source)); bs < be {
				sig = text(node, w.source)
			}
		}
	}

	w.result.Symbols = append(w.result.Symbols, core.Symbol{
		Name:      name,
		Kind:      core.KindFunction,
		LineStart: start,
		LineEnd:   end,
		Signature: sig,
	})

	body := childByKind(node, "compound_statement")
	w.walk(body, name)
}

func (w *walker) visitTypedef(node *sitter.Node) {
	typeNode := node.Child(1)
	if typeNode == nil || (typeNode.Kind() != "struct_specifier" && typeNode.Kind() != "union_specifier") {
		return
	}
	// The typedef'd alias is the last identifier child before the ';'.
	var alias string
	for i := uint(0); i < node.ChildCount(); i++ {
		c := node.Child(i)
		if c != nil && c.Kind() == "type_identifier" {
			alias = text(c, w.source)
		}
	}
	if alias == "" {
		return
	}
	start, end := lineRange(node)
	w.result.Symbols = append(w.result.Symbols, core.Symbol{
		Name:      alias,
		Kind:      core.KindClass,
		LineStart: start,
		LineEnd:   end,
		Signature: "typedef " + typeNode.Kind() + " " + alias,
	})
}

func (w *walker) visitInclude(node *sitter.Node) {
	line := int(node.StartPosition().Row) + 1
	for i := uint(0); i < node.ChildCount(); i++ {
		c := node.Child(i)
		if c == nil {
			continue
		}
		if c.Kind() == "string_literal" || c.Kind() == "system_lib_string" {
			name := text(c, w.source)
			name = trimIncludeDelims(name)
			w.result.ImportSites = append(w.result.ImportSites, core.ImportSite{ModuleOrFile: name, Line: line})
		}
	}
}

func trimIncludeDelims(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '<' && last == '>') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

func (w *walker) visitCall(node *sitter.Node, currentSymbol string) {
	fn := node.Child(0)
	if fn == nil {
		return
	}
	callee := ""
	if fn.Kind() == "identifier" {
		callee = text(fn, w.source)
	}
	if callee == "" {
		return
	}
	w.result.CallSites = append(w.result.CallSites, core.CallSite{
		FromSymbolName: currentSymbol,
		CalleeName:     callee,
		Line:           int(node.StartPosition().Row) + 1,
	})
}
