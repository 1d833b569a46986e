package callgraph

import (
	"testing"

	"github.com/sevigo/codesentry/internal/core"
)

func TestAnalyze_ResolvesSameFileOverRepoWide(t *testing.T) {
	symbols := []core.Symbol{
		{ID: 1, FileID: 1, Name: "main", Kind: core.KindFunction, LineStart: 1, LineEnd: 3},
		{ID: 2, FileID: 1, Name: "helper", Kind: core.KindFunction, LineStart: 5, LineEnd: 7},
		{ID: 3, FileID: 2, Name: "helper", Kind: core.KindFunction, LineStart: 1, LineEnd: 3},
	}
	files := []core.File{
		{ID: 1, Path: "a.py", Language: core.LangPython},
		{ID: 2, Path: "b.py", Language: core.LangPython},
	}
	rawEdges := []core.CallEdge{
		{FromSymbolID: 1, ToName: "helper", FileID: 1, Line: 2},
	}

	result := Analyze(symbols, files, rawEdges)

	if len(result.ResolvedEdges) != 1 {
		t.Fatalf("expected 1 resolved edge, got %d", len(result.ResolvedEdges))
	}
	got := result.ResolvedEdges[0]
	if got.ToSymbolID == nil || *got.ToSymbolID != 2 {
		t.Errorf("expected call to resolve to same-file symbol 2, got %v", got.ToSymbolID)
	}
}

func TestAnalyze_UnresolvedNameMarksExternal(t *testing.T) {
	symbols := []core.Symbol{
		{ID: 1, FileID: 1, Name: "main", Kind: core.KindFunction, LineStart: 1, LineEnd: 3},
	}
	files := []core.File{{ID: 1, Path: "a.py", Language: core.LangPython}}
	rawEdges := []core.CallEdge{
		{FromSymbolID: 1, ToName: "os.path.join", FileID: 1, Line: 2},
	}

	result := Analyze(symbols, files, rawEdges)
	if !result.ResolvedEdges[0].IsExternal {
		t.Error("expected unmatched callee name to be marked external")
	}
	if result.ResolvedEdges[0].ToSymbolID != nil {
		t.Error("expected external call to have nil ToSymbolID")
	}
}

func TestAnalyze_AmbiguousNameStaysUnresolved(t *testing.T) {
	symbols := []core.Symbol{
		{ID: 1, FileID: 1, Name: "main", Kind: core.KindFunction, LineStart: 1, LineEnd: 3},
		{ID: 2, FileID: 2, Name: "run", Kind: core.KindFunction, LineStart: 1, LineEnd: 3},
		{ID: 3, FileID: 3, Name: "run", Kind: core.KindFunction, LineStart: 1, LineEnd: 3},
	}
	files := []core.File{
		{ID: 1, Path: "a.py", Language: core.LangPython},
		{ID: 2, Path: "b.py", Language: core.LangPython},
		{ID: 3, Path: "c.py", Language: core.LangPython},
	}
	rawEdges := []core.CallEdge{
		{FromSymbolID: 1, ToName: "run", FileID: 1, Line: 2},
	}

	result := Analyze(symbols, files, rawEdges)
	edge := result.ResolvedEdges[0]
	if edge.ToSymbolID != nil {
		t.Error("ambiguous repo-wide match should stay unresolved, not pick one arbitrarily")
	}
	if edge.IsExternal {
		t.Error("ambiguous match is not external")
	}
}

func TestFindCycles_DetectsDirectCycle(t *testing.T) {
	symbols := []core.Symbol{
		{ID: 1, FileID: 1, Name: "a"},
		{ID: 2, FileID: 1, Name: "b"},
	}
	adj := map[int64][]int64{1: {2}, 2: {1}}

	cycles := findCycles(symbols, adj)
	if len(cycles) != 1 {
		t.Fatalf("expected 1 cycle, got %d", len(cycles))
	}
	if len(cycles[0].SymbolIDs) != 2 {
		t.Errorf("expected cycle of size 2, got %d", len(cycles[0].SymbolIDs))
	}
	if cycles[0].Severity != core.SeverityMedium {
		t.Errorf("expected medium severity for a 2-node cycle, got %s", cycles[0].Severity)
	}
}

func TestFindCycles_SelfLoop(t *testing.T) {
	symbols := []core.Symbol{{ID: 1, FileID: 1, Name: "recurse"}}
	adj := map[int64][]int64{1: {1}}

	cycles := findCycles(symbols, adj)
	if len(cycles) != 1 {
		t.Fatalf("expected a self-loop to be reported as a cycle, got %d", len(cycles))
	}
}

func TestFindDeadCode_EntryPointExcluded(t *testing.T) {
	symbols := []core.Symbol{
		{ID: 1, FileID: 1, Name: "main", Kind: core.KindFunction},
		{ID: 2, FileID: 1, Name: "unreachable", Kind: core.KindFunction},
	}
	files := map[int64]core.File{1: {ID: 1, Path: "a.py", Language: core.LangPython}}
	inDeg := map[int64]int{1: 0, 2: 0}
	outDeg := map[int64]int{1: 1, 2: 0}
	entries := map[int64]bool{1: true}

	dead := findDeadCode(symbols, files, inDeg, outDeg, entries)
	if len(dead) != 1 || dead[0].SymbolID != 2 {
		t.Fatalf("expected only the non-entry unreferenced symbol to be dead code, got %+v", dead)
	}
}

func TestResolveImports_LocalAndExternal(t *testing.T) {
	files := []core.File{
		{ID: 1, Path: "pkg/util.py"},
		{ID: 2, Path: "main.py"},
	}
	raw := []core.ImportEdge{
		{FromFileID: 2, ToModuleName: "pkg/util.py"},
		{FromFileID: 2, ToModuleName: "requests"},
	}

	resolved := ResolveImports(files, raw)
	if resolved[0].Kind != core.ImportLocal || resolved[0].ToFileID == nil || *resolved[0].ToFileID != 1 {
		t.Errorf("expected first import to resolve locally to file 1, got %+v", resolved[0])
	}
	if resolved[1].Kind != core.ImportExternal {
		t.Errorf("expected unmatched module to be external, got %+v", resolved[1])
	}
}
