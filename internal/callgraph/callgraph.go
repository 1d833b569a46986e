// Package callgraph resolves raw call/import sites into edges, builds the
// arena+adjacency-map graph described in spec.md §9 (no owning pointers
// between nodes), and reports dead code and circular dependencies.
package callgraph

import (
	"sort"

	"github.com/sevigo/codesentry/internal/core"
)

// EntryPoints lists language-declared entry symbol names for dead-code
// analysis. COBOL's empty list means "every paragraph reachable from the
// first paragraph of PROCEDURE DIVISION, in declaration order" (spec.md §9
// open question, resolved in DESIGN.md).
var EntryPoints = map[core.Language][]string{
	core.LangPython:   {"main"},
	core.LangC:        {"main"},
	core.LangAssembly: {"main", "_start", "start"},
	core.LangCOBOL:    {},
}

// Cycle is one strongly connected component of size >= 2, or a self-loop.
type Cycle struct {
	SymbolIDs []int64
	Names     []string
	Severity  core.Severity
}

// DeadCodeEntry is a symbol with in-degree 0 that is not an entry point.
type DeadCodeEntry struct {
	SymbolID int64
	FilePath string
	Severity core.Severity
}

// Result is the output of Analyze: resolved call edges plus the derived
// cycle and dead-code reports.
type Result struct {
	ResolvedEdges []core.CallEdge
	Cycles        []Cycle
	DeadCode      []DeadCodeEntry
}

// Analyze resolves callSites against symbols (two-pass: same file, then
// repo-wide by exact name), builds the directed multigraph, and computes
// cycles and dead code per spec.md §4.F.
func Analyze(symbols []core.Symbol, files []core.File, rawEdges []core.CallEdge) Result {
	resolver := newResolver(symbols)
	resolved := resolver.resolve(rawEdges)

	adjacency := buildAdjacency(resolved)
	inDegree, outDegree := degrees(symbols, adjacency)

	filesByID := make(map[int64]core.File, len(files))
	for _, f := range files {
		filesByID[f.ID] = f
	}

	entries := entryPointSet(symbols, filesByID)

	return Result{
		ResolvedEdges: resolved,
		Cycles:        findCycles(symbols, adjacency),
		DeadCode:      findDeadCode(symbols, filesByID, inDegree, outDegree, entries),
	}
}

type resolver struct {
	byID          map[int64]core.Symbol
	byFileAndName map[int64]map[string][]int64
	byNameRepo    map[string][]int64
}

func newResolver(symbols []core.Symbol) *resolver {
	r := &resolver{
		byID:          make(map[int64]core.Symbol, len(symbols)),
		byFileAndName: make(map[int64]map[string][]int64),
		byNameRepo:    make(map[string][]int64),
	}
	for _, s := range symbols {
		r.byID[s.ID] = s
		if r.byFileAndName[s.FileID] == nil {
			r.byFileAndName[s.FileID] = make(map[string][]int64)
		}
		r.byFileAndName[s.FileID][s.Name] = append(r.byFileAndName[s.FileID][s.Name], s.ID)
		r.byNameRepo[s.Name] = append(r.byNameRepo[s.Name], s.ID)
	}
	return r
}

// resolve implements the two-pass lookup of spec.md §4.F.1: same file first,
// then repository-wide by exact name. Ambiguous matches are left unresolved
// (is_external=false, to_symbol_id=nil); no match anywhere marks is_external.
func (r *resolver) resolve(edges []core.CallEdge) []core.CallEdge {
	out := make([]core.CallEdge, len(edges))
	for i, e := range edges {
		out[i] = e
		if ids, ok := r.byFileAndName[e.FileID][e.ToName]; ok {
			if len(ids) == 1 {
				id := ids[0]
				out[i].ToSymbolID = &id
			}
			continue // ambiguous in-file match: unresolved, not external
		}
		ids, ok := r.byNameRepo[e.ToName]
		switch {
		case !ok:
			out[i].IsExternal = true
		case len(ids) == 1:
			id := ids[0]
			out[i].ToSymbolID = &id
		default:
			// ambiguous repo-wide match: unresolved, not external
		}
	}
	return out
}

func buildAdjacency(edges []core.CallEdge) map[int64][]int64 {
	adj := make(map[int64][]int64)
	for _, e := range edges {
		if e.ToSymbolID == nil {
			continue
		}
		adj[e.FromSymbolID] = append(adj[e.FromSymbolID], *e.ToSymbolID)
	}
	return adj
}

func degrees(symbols []core.Symbol, adj map[int64][]int64) (inDeg, outDeg map[int64]int) {
	inDeg = make(map[int64]int, len(symbols))
	outDeg = make(map[int64]int, len(symbols))
	for _, s := range symbols {
		inDeg[s.ID] = 0
		outDeg[s.ID] = 0
	}
	for from, tos := range adj {
		outDeg[from] += len(tos)
		for _, to := range tos {
			inDeg[to]++
		}
	}
	return inDeg, outDeg
}

func entryPointSet(symbols []core.Symbol, files map[int64]core.File) map[int64]bool {
	entries := make(map[int64]bool)

	firstProcedurePerFile := make(map[int64]core.Symbol)
	for _, s := range symbols {
		f, ok := files[s.FileID]
		if !ok {
			continue
		}
		names := EntryPoints[f.Language]
		for _, n := range names {
			if s.Name == n {
				entries[s.ID] = true
			}
		}
		if f.Language == core.LangCOBOL && s.Kind == core.KindProcedure {
			cur, seen := firstProcedurePerFile[s.FileID]
			if !seen || s.LineStart < cur.LineStart {
				firstProcedurePerFile[s.FileID] = s
			}
		}
		if s.Kind == core.KindVariable && isModuleScoped(s) {
			entries[s.ID] = true
		}
	}
	for _, s := range firstProcedurePerFile {
		entries[s.ID] = true
	}
	return entries
}

// isModuleScoped is a conservative proxy for "module-level executable
// statement": a top-level variable symbol is treated as always-live so it
// never shows up as dead code on its own.
func isModuleScoped(s core.Symbol) bool { return s.Kind == core.KindVariable }

// findDeadCode implements spec.md §4.F.3: in-degree 0, not an entry point.
// Severity is derived from the node's own out-degree (wasted work if it
// calls a lot but is never reached). Sorted by severity then file path.
func findDeadCode(symbols []core.Symbol, files map[int64]core.File, inDeg, outDeg map[int64]int, entries map[int64]bool) []DeadCodeEntry {
	var dead []DeadCodeEntry
	for _, s := range symbols {
		if entries[s.ID] || inDeg[s.ID] > 0 {
			continue
		}
		sev := core.SeverityLow
		switch {
		case outDeg[s.ID] >= 3:
			sev = core.SeverityHigh
		case outDeg[s.ID] >= 1:
			sev = core.SeverityMedium
		}
		dead = append(dead, DeadCodeEntry{
			SymbolID: s.ID,
			FilePath: files[s.FileID].Path,
			Severity: sev,
		})
	}
	sevRank := map[core.Severity]int{core.SeverityHigh: 0, core.SeverityMedium: 1, core.SeverityLow: 2}
	sort.Slice(dead, func(i, j int) bool {
		if sevRank[dead[i].Severity] != sevRank[dead[j].Severity] {
			return sevRank[dead[i].Severity] < sevRank[dead[j].Severity]
		}
		return dead[i].FilePath < dead[j].FilePath
	})
	return dead
}

// findCycles runs Tarjan's SCC algorithm over the resolved call graph and
// reports every SCC of size >= 2, plus self-loops, per spec.md §4.F.4/§8.6.
func findCycles(symbols []core.Symbol, adj map[int64][]int64) []Cycle {
	names := make(map[int64]string, len(symbols))
	for _, s := range symbols {
		names[s.ID] = s.Name
	}

	t := &tarjan{adj: adj, indices: map[int64]int{}, low: map[int64]int{}, onStack: map[int64]bool{}}
	for _, s := range symbols {
		if _, seen := t.indices[s.ID]; !seen {
			t.strongConnect(s.ID)
		}
	}

	var cycles []Cycle
	for _, comp := range t.sccs {
		isSelfLoop := len(comp) == 1 && hasSelfLoop(comp[0], adj)
		if len(comp) < 2 && !isSelfLoop {
			continue
		}
		nodeNames := make([]string, len(comp))
		for i, id := range comp {
			nodeNames[i] = names[id]
		}
		sort.Strings(nodeNames)
		cycles = append(cycles, Cycle{
			SymbolIDs: comp,
			Names:     nodeNames,
			Severity:  cycleSeverity(len(comp), isSelfLoop),
		})
	}
	sort.Slice(cycles, func(i, j int) bool { return cycles[i].Names[0] < cycles[j].Names[0] })
	return cycles
}

func hasSelfLoop(id int64, adj map[int64][]int64) bool {
	for _, to := range adj[id] {
		if to == id {
			return true
		}
	}
	return false
}

func cycleSeverity(size int, selfLoop bool) core.Severity {
	switch {
	case size >= 5:
		return core.SeverityCritical
	case size >= 3:
		return core.SeverityHigh
	case size == 2 || selfLoop:
		return core.SeverityMedium
	default:
		return core.SeverityLow
	}
}

// tarjan is a standard iterative-recursive Tarjan SCC implementation over
// an adjacency map keyed by stable symbol ids (arena-by-index, per spec.md
// §9: no owning pointers between graph nodes).
type tarjan struct {
	adj     map[int64][]int64
	indices map[int64]int
	low     map[int64]int
	onStack map[int64]bool
	stack   []int64
	counter int
	sccs    [][]int64
}

func (t *tarjan) strongConnect(v int64) {
	t.indices[v] = t.counter
	t.low[v] = t.counter
	t.counter++
	t.stack = append(t.stack, v)
	t.onStack[v] = true

	for _, w := range t.adj[v] {
		if _, seen := t.indices[w]; !seen {
			t.strongConnect(w)
			if t.low[w] < t.low[v] {
				t.low[v] = t.low[w]
			}
		} else if t.onStack[w] {
			if t.indices[w] < t.low[v] {
				t.low[v] = t.indices[w]
			}
		}
	}

	if t.low[v] == t.indices[v] {
		var comp []int64
		for {
			n := len(t.stack) - 1
			w := t.stack[n]
			t.stack = t.stack[:n]
			t.onStack[w] = false
			comp = append(comp, w)
			if w == v {
				break
			}
		}
		t.sccs = append(t.sccs, comp)
	}
}

// ResolveImports resolves ImportEdges analogously to call edges, matching
// ModuleOrFile against each File's repo-relative path or base name.
func ResolveImports(files []core.File, rawImports []core.ImportEdge) []core.ImportEdge {
	byPath := make(map[string]int64, len(files))
	byBase := make(map[string][]int64, len(files))
	for _, f := range files {
		byPath[f.Path] = f.ID
		base := baseNoExt(f.Path)
		byBase[base] = append(byBase[base], f.ID)
	}

	out := make([]core.ImportEdge, len(rawImports))
	for i, e := range rawImports {
		out[i] = e
		if id, ok := byPath[e.ToModuleName]; ok {
			fid := id
			out[i].ToFileID = &fid
			out[i].Kind = core.ImportLocal
			continue
		}
		base := baseNoExt(e.ToModuleName)
		if ids, ok := byBase[base]; ok && len(ids) == 1 {
			fid := ids[0]
			out[i].ToFileID = &fid
			out[i].Kind = core.ImportLocal
			continue
		}
		out[i].Kind = core.ImportExternal
	}
	return out
}

func baseNoExt(path string) string {
	base := path
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			base = path[i+1:]
			break
		}
	}
	for i := len(base) - 1; i >= 0; i-- {
		if base[i] == '.' {
			return base[:i]
		}
	}
	return base
}
