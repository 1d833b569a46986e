// Package python implements core.SymbolParser for Python sources using a
// tree-sitter AST walk, in the scope-stack style of the reference pack's
// symbol extractors.
package python

import (
	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"

	"github.com/sevigo/codesentry/internal/core"
)

// Parser extracts functions, methods, classes, and module-level variables
// from Python source. Each Parse call creates its own tree-sitter parser —
// no state survives between calls.
type Parser struct{}

// New returns a Python SymbolParser.
func New() *Parser { return &Parser{} }

var _ core.SymbolParser = (*Parser)(nil)

func (p *Parser) Language() core.Language { return core.LangPython }

type parseError string

func (e parseError) Error() string { return string(e) }

var errNilTree = parseError("tree-sitter returned a nil tree")

func (p *Parser) Parse(source []byte, _ string) (*core.ParseResult, error) {
	ts := sitter.NewParser()
	defer ts.Close()
	if err := ts.SetLanguage(sitter.NewLanguage(tree_sitter_python.Language())); err != nil {
		return nil, err
	}

	tree := ts.Parse(source, nil)
	if tree == nil {
		return nil, errNilTree
	}
	defer tree.Close()

	w := &walker{source: source, result: &core.ParseResult{}}
	w.walk(tree.RootNode(), "", "")
	return w.result, nil
}

// walker performs a single recursive descent that both flattens nested
// definitions into symbols (containment alone expresses parent-child) and
// attributes call/import sites, tracking only the two pieces of state the
// semantic contract needs: the enclosing class name (for method detection)
// and the innermost enclosing function name (for call attribution).
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

func (w *walker) walk(node *sitter.Node, className, currentSymbol string) {
	if node == nil {
		return
	}

	switch node.Kind() {
	case "function_definition", "async_function_definition":
		w.visitFunction(node, className, currentSymbol)
		return // visitFunction recurses into the body itself
	case "class_definition":
		w.visitClass(node, className, currentSymbol)
		return
	case "call":
		w.visitCall(node, currentSymbol)
	case "import_statement", "import_from_statement":
		w.visitImport(node)
	case "expression_statement":
		if currentSymbol == "" {
			w.visitModuleAssignment(node)
		}
	}

	for i := uint(0); i < node.ChildCount(); i++ {
		w.walk(node.Child(i), className, currentSymbol)
	}
}

func (w *walker) visitFunction(node *sitter.Node, className, currentSymbol string) {
	nameNode := childByKind(node, "identifier")
	if nameNode == nil {
		return
	}
	name := text(nameNode, w.source)

	kind := core.KindFunction
	if className != "" && currentSymbol == "" {
		kind = core.KindMethod
	}
	start, end := lineRange(node)

	w.result.Symbols = append(w.result.Symbols, core.Symbol{
		Name:      name,
		Kind:      kind,
		LineStart: start,
		LineEnd:   end,
		Signature: w.signature(node, name),
	})

	body := childByKind(node, "block")
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == body {
			continue
		}
		w.walk(child, "", name) // parameters/decorators: no nested defs expected, but calls in defaults count
	}
	w.walk(body, "", name)
}

func (w *walker) visitClass(node *sitter.Node, _, currentSymbol string) {
	nameNode := childByKind(node, "identifier")
	if nameNode == nil {
		return
	}
	name := text(nameNode, w.source)
	start, end := lineRange(node)

	w.result.Symbols = append(w.result.Symbols, core.Symbol{
		Name:      name,
		Kind:      core.KindClass,
		LineStart: start,
		LineEnd:   end,
		Signature: "class " + name,
	})

	body := childByKind(node, "block")
	w.walk(body, name, currentSymbol)
}

func (w *walker) visitModuleAssignment(node *sitter.Node) {
	assign := childByKind(node, "assignment")
	if assign == nil {
		return
	}
	target := assign.Child(0)
	if target == nil || target.Kind() != "identifier" {
		return
	}
	name := text(target, w.source)
	start, end := lineRange(node)
	w.result.Symbols = append(w.result.Symbols, core.Symbol{
		Name:      name,
		Kind:      core.KindVariable,
		LineStart: start,
		LineEnd:   end,
		Signature: name,
	})
}

func (w *walker) signature(node *sitter.Node, name string) string {
	params := childByKind(node, "parameters")
	if params != nil {
		return "def " + name + text(params, w.source)
	}
	return "def " + name + "()"
}

func (w *walker) visitCall(node *sitter.Node, currentSymbol string) {
	fn := node.Child(0)
	if fn == nil {
		return
	}
	callee := calleeName(fn, w.source)
	if callee == "" {
		return
	}
	w.result.CallSites = append(w.result.CallSites, core.CallSite{
		FromSymbolName: currentSymbol,
		CalleeName:     callee,
		Line:           int(node.StartPosition().Row) + 1,
	})
}

func calleeName(n *sitter.Node, source []byte) string {
	switch n.Kind() {
	case "identifier":
		return text(n, source)
	case "attribute":
		if attr := childByKind(n, "identifier"); attr != nil {
			return text(attr, source)
		}
	}
	return ""
}

func (w *walker) visitImport(node *sitter.Node) {
	line := int(node.StartPosition().Row) + 1
	switch node.Kind() {
	case "import_statement":
		for i := uint(0); i < node.ChildCount(); i++ {
			c := node.Child(i)
			if c != nil && (c.Kind() == "dotted_name" || c.Kind() == "identifier") {
				w.result.ImportSites = append(w.result.ImportSites, core.ImportSite{ModuleOrFile: text(c, w.source), Line: line})
			}
		}
	case "import_from_statement":
		if mod := childByKind(node, "dotted_name"); mod != nil {
			w.result.ImportSites = append(w.result.ImportSites, core.ImportSite{ModuleOrFile: text(mod, w.source), Line: line})
		}
	}
}
