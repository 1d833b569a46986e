// Package jobs implements the JobScheduler of spec.md §4.J: a per-repository
// ingest pipeline (clone/unpack, parse, analyze, fan out) run by a bounded
// worker pool with retry-with-backoff and cooperative cancellation, grounded
// on the teacher's internal/jobs/dispatcher.go worker-pool/channel idiom.
package jobs

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/sevigo/codesentry/internal/callgraph"
	"github.com/sevigo/codesentry/internal/core"
	"github.com/sevigo/codesentry/internal/duplication"
	"github.com/sevigo/codesentry/internal/embedindex"
	"github.com/sevigo/codesentry/internal/langdetect"
	"github.com/sevigo/codesentry/internal/metrics"
	"github.com/sevigo/codesentry/internal/parser"
	"github.com/sevigo/codesentry/internal/vuln"
)

// parsedFile is everything walkAndParse learns about one file before real
// database ids exist: the eventual core.File carries a provisional ID equal
// to this slice's own index (see buildFilesAndSymbols), which
// store.ReplaceFilesAndSymbols remaps to a real id.
type parsedFile struct {
	path     string
	language core.Language
	source   []byte
	sha      string
	byteSize int64
	lineCnt  int
	parseErr string
	result   *core.ParseResult
}

// Pipeline is the core.Job that runs one repository's full ingest: fetch,
// walk+parse+metrics, persist, resolve the call/import graph, then fan out
// duplication/vulnerability/embedding analysis concurrently before marking
// the repository completed.
type Pipeline struct {
	store    core.Store
	fetchers map[core.RepoSource]core.SourceFetcher
	parsers  *parser.Registry
	metrics  *metrics.Analyzer
	dupCfg   duplication.Config
	vulnScan *vuln.Scanner
	embedIdx *embedindex.Index

	langCfg           langdetect.Config
	enableDuplication bool
	embedConcurrency  int
	embedBodyLimit    int
	providerTimeout   time.Duration
	ignoreGlobs       []string

	logger *slog.Logger
}

// Config bounds Pipeline's optional stages and thresholds.
type Config struct {
	LangDetect        langdetect.Config
	Duplication       duplication.Config
	EnableDuplication bool
	EmbedConcurrency  int           // bounds concurrent EmbeddingProvider calls, per spec.md §5
	EmbedBodyLimit    int           // lines of body text folded into the embedded text
	ProviderTimeout   time.Duration // per-call deadline on EmbeddingProvider round-trips (PROVIDER_TIMEOUT)
	// IgnoreGlobs are doublestar patterns matched against a file's
	// repo-relative path (and its basename, for bare patterns like
	// "*.min.js"); a match excludes the file from discovery entirely, same
	// as an unknown language but without even a File row. Defaults to
	// DefaultIgnoreGlobs.
	IgnoreGlobs []string
}

// DefaultIgnoreGlobs excludes the build/vendor/dependency directories and
// generated-file patterns that have no business being parsed as source.
func DefaultIgnoreGlobs() []string {
	return []string{
		"**/vendor/**",
		"**/node_modules/**",
		"**/.git/**",
		"**/dist/**",
		"**/build/**",
		"*.min.js",
		"*.generated.*",
	}
}

// NewPipeline wires every analysis collaborator into one core.Job. embedIdx
// may be nil, in which case the embedding fan-out stage is skipped entirely.
func NewPipeline(
	store core.Store,
	fetchers map[core.RepoSource]core.SourceFetcher,
	parsers *parser.Registry,
	metricsAnalyzer *metrics.Analyzer,
	vulnScanner *vuln.Scanner,
	embedIdx *embedindex.Index,
	cfg Config,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.EmbedConcurrency <= 0 {
		cfg.EmbedConcurrency = 4
	}
	if cfg.EmbedBodyLimit <= 0 {
		cfg.EmbedBodyLimit = 40
	}
	if cfg.IgnoreGlobs == nil {
		cfg.IgnoreGlobs = DefaultIgnoreGlobs()
	}
	return &Pipeline{
		store:             store,
		fetchers:          fetchers,
		parsers:           parsers,
		metrics:           metricsAnalyzer,
		dupCfg:            cfg.Duplication,
		vulnScan:          vulnScanner,
		embedIdx:          embedIdx,
		langCfg:           cfg.LangDetect,
		enableDuplication: cfg.EnableDuplication,
		embedConcurrency:  cfg.EmbedConcurrency,
		embedBodyLimit:    cfg.EmbedBodyLimit,
		providerTimeout:   cfg.ProviderTimeout,
		ignoreGlobs:       cfg.IgnoreGlobs,
		logger:            logger,
	}
}

var _ core.Job = (*Pipeline)(nil)

// Run dispatches task.Kind. TaskIngest is the only kind currently queued by
// the Scheduler: it holds the repo's keyed lock for the whole ingest ->
// parse -> analyze -> fan-out -> barrier sequence, with the fan-out stages
// themselves running as goroutines inside this one call, per spec.md §4.J.
func (p *Pipeline) Run(ctx context.Context, task core.Task) error {
	switch task.Kind {
	case core.TaskIngest:
		return p.runIngest(ctx, task.RepoID, task.Attempt)
	default:
		return fmt.Errorf("jobs: unsupported task kind %q", task.Kind)
	}
}

func (p *Pipeline) runIngest(ctx context.Context, repoID int64, attempt int) error {
	repo, err := p.store.GetRepository(ctx, repoID)
	if err != nil {
		return fmt.Errorf("jobs: load repository %d: %w", repoID, err)
	}

	fetcher, ok := p.fetchers[repo.Source]
	if !ok {
		return p.failOrRetry(ctx, repoID, core.NewKindError(core.ErrKindValidation,
			fmt.Errorf("no source fetcher registered for source %q", repo.Source)))
	}

	if err := p.store.UpdateRepositoryStatus(ctx, repoID, core.StatusCloning, 0, 0, ""); err != nil {
		return fmt.Errorf("jobs: mark repository cloning: %w", err)
	}

	root, cleanup, err := fetcher.Fetch(ctx, *repo)
	if err != nil {
		return p.failOrRetry(ctx, repoID, fmt.Errorf("jobs: fetch source: %w", err))
	}
	defer cleanup()

	if err := p.store.UpdateRepositoryStatus(ctx, repoID, core.StatusParsing, 0, 0, ""); err != nil {
		return fmt.Errorf("jobs: mark repository parsing: %w", err)
	}

	parsed, err := p.walkAndParse(ctx, root)
	if err != nil {
		return p.failOrRetry(ctx, repoID, fmt.Errorf("jobs: walk repository tree: %w", err))
	}

	draftFiles, draftSymbols := buildFilesAndSymbols(parsed)
	outFiles, outSymbols, err := p.store.ReplaceFilesAndSymbols(ctx, repoID, draftFiles, draftSymbols)
	if err != nil {
		return p.failOrRetry(ctx, repoID, fmt.Errorf("jobs: persist files and symbols: %w", err))
	}

	if err := p.store.UpdateRepositoryStatus(ctx, repoID, core.StatusAnalyzing, len(outFiles), len(outSymbols), ""); err != nil {
		return fmt.Errorf("jobs: mark repository analyzing: %w", err)
	}

	rawCallEdges, rawImportEdges := buildRawEdges(parsed, outFiles, outSymbols)
	graph := callgraph.Analyze(outSymbols, outFiles, rawCallEdges)
	resolvedImports := callgraph.ResolveImports(outFiles, rawImportEdges)
	for i := range graph.ResolvedEdges {
		graph.ResolvedEdges[i].RepoID = repoID
	}
	for i := range resolvedImports {
		resolvedImports[i].RepoID = repoID
	}

	if err := p.store.ReplaceCallEdges(ctx, repoID, graph.ResolvedEdges); err != nil {
		return p.failOrRetry(ctx, repoID, fmt.Errorf("jobs: persist call edges: %w", err))
	}
	if err := p.store.ReplaceImportEdges(ctx, repoID, resolvedImports); err != nil {
		return p.failOrRetry(ctx, repoID, fmt.Errorf("jobs: persist import edges: %w", err))
	}

	if err := p.fanOut(ctx, repo, outFiles, outSymbols, parsed); err != nil {
		return p.failOrRetry(ctx, repoID, fmt.Errorf("jobs: fan-out analysis: %w", err))
	}

	if err := p.store.UpdateRepositoryStatus(ctx, repoID, core.StatusCompleted, len(outFiles), len(outSymbols), ""); err != nil {
		return fmt.Errorf("jobs: mark repository completed: %w", err)
	}
	p.logger.InfoContext(ctx, "ingest completed", "repo_id", repoID, "attempt", attempt, "files", len(outFiles), "symbols", len(outSymbols))
	return nil
}

// failOrRetry lets a transient error propagate unchanged so the Scheduler
// retries without marking the repository failed prematurely; anything else
// is permanent and is recorded on the repository row before returning.
func (p *Pipeline) failOrRetry(ctx context.Context, repoID int64, err error) error {
	if core.IsTransient(err) {
		return err
	}
	if updateErr := p.store.UpdateRepositoryStatus(ctx, repoID, core.StatusFailed, 0, 0, err.Error()); updateErr != nil {
		p.logger.ErrorContext(ctx, "failed to record repository failure", "repo_id", repoID, "error", updateErr)
	}
	return err
}

// matchesIgnoreGlob reports whether name (a repo-relative path or a bare
// directory/file name) matches any of the pipeline's doublestar ignore
// patterns, checked against both the full candidate and its basename so
// patterns like "*.min.js" match regardless of directory depth.
func (p *Pipeline) matchesIgnoreGlob(name string) bool {
	base := filepath.Base(name)
	for _, g := range p.ignoreGlobs {
		if ok, _ := doublestar.Match(g, name); ok {
			return true
		}
		if ok, _ := doublestar.Match(g, base); ok {
			return true
		}
	}
	return false
}

// walkAndParse discovers every regular file under root, classifies its
// language, parses it when a parser is registered, and analyzes the metrics
// of every symbol it yields. Files with no registered parser or an unknown
// language are recorded with no symbols, not skipped outright, so the file
// inventory stays complete.
func (p *Pipeline) walkAndParse(ctx context.Context, root string) ([]*parsedFile, error) {
	var out []*parsedFile
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			if d.Name() != "." && p.matchesIgnoreGlob(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if p.matchesIgnoreGlob(rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		head := make([]byte, 0)
		if info.Size() > 0 {
			f, openErr := os.Open(path)
			if openErr == nil {
				buf := make([]byte, 256)
				n, _ := f.Read(buf)
				head = buf[:n]
				f.Close()
			}
		}
		lang := langdetect.Detect(p.langCfg, rel, info.Size(), head)

		pf := &parsedFile{path: rel, language: lang, byteSize: info.Size()}
		if lang == core.LangUnknown {
			out = append(out, pf)
			return nil
		}

		source, err := os.ReadFile(path)
		if err != nil {
			pf.parseErr = err.Error()
			out = append(out, pf)
			return nil
		}
		pf.source = source
		pf.lineCnt = bytes.Count(source, []byte("\n")) + 1
		sum := sha256.Sum256(source)
		pf.sha = hex.EncodeToString(sum[:])

		result, err := p.parsers.Parse(lang, source, rel)
		if err != nil {
			pf.parseErr = err.Error()
			out = append(out, pf)
			return nil
		}
		for i := range result.Symbols {
			p.metrics.Analyze(lang, source, &result.Symbols[i])
		}
		pf.result = result
		out = append(out, pf)
		return nil
	})
	if walkErr != nil {
		return nil, core.NewKindError(core.ErrKindResource, walkErr)
	}
	return out, nil
}

// buildFilesAndSymbols assigns each parsed file a provisional id equal to
// its own index and stamps every one of its symbols with that same index as
// FileID. store.ReplaceFilesAndSymbols remaps provisional -> real id and
// returns both slices, in the same order, with real ids populated.
func buildFilesAndSymbols(parsed []*parsedFile) ([]core.File, []core.Symbol) {
	files := make([]core.File, len(parsed))
	var symbols []core.Symbol
	for i, pf := range parsed {
		files[i] = core.File{
			ID:        int64(i),
			Path:      pf.path,
			Language:  pf.language,
			ByteSize:  pf.byteSize,
			LineCount: pf.lineCnt,
			SHA256:    pf.sha,
			ParseErr:  pf.parseErr,
			Content:   string(pf.source),
		}
		if pf.result == nil {
			continue
		}
		for _, sym := range pf.result.Symbols {
			sym.FileID = int64(i)
			symbols = append(symbols, sym)
		}
	}
	return files, symbols
}

// buildRawEdges turns each parsed file's CallSites/ImportSites into
// core.CallEdge/core.ImportEdge rows addressed by real file/symbol ids,
// ready for callgraph.Analyze/ResolveImports to resolve.
func buildRawEdges(parsed []*parsedFile, outFiles []core.File, outSymbols []core.Symbol) ([]core.CallEdge, []core.ImportEdge) {
	symbolsByFile := make(map[int64][]core.Symbol)
	for _, s := range outSymbols {
		symbolsByFile[s.FileID] = append(symbolsByFile[s.FileID], s)
	}

	var callEdges []core.CallEdge
	var importEdges []core.ImportEdge
	for i, pf := range parsed {
		if pf.result == nil {
			continue
		}
		realFileID := outFiles[i].ID
		fileSymbols := symbolsByFile[realFileID]

		for _, cs := range pf.result.CallSites {
			fromID, ok := resolveFromSymbol(fileSymbols, cs.FromSymbolName, cs.Line)
			if !ok {
				continue
			}
			callEdges = append(callEdges, core.CallEdge{
				FromSymbolID: fromID,
				ToName:       cs.CalleeName,
				FileID:       realFileID,
				Line:         cs.Line,
			})
		}
		for _, is := range pf.result.ImportSites {
			importEdges = append(importEdges, core.ImportEdge{
				FromFileID:   realFileID,
				ToModuleName: is.ModuleOrFile,
			})
		}
	}
	return callEdges, importEdges
}

// resolveFromSymbol finds the symbol a call site belongs to: the smallest
// enclosing range containing line, falling back to the first same-named
// symbol in the file.
func resolveFromSymbol(fileSymbols []core.Symbol, name string, line int) (int64, bool) {
	var best *core.Symbol
	for i := range fileSymbols {
		s := &fileSymbols[i]
		if s.Name != name {
			continue
		}
		if line >= s.LineStart && line <= s.LineEnd {
			if best == nil || (s.LineEnd-s.LineStart) < (best.LineEnd-best.LineStart) {
				best = s
			}
		}
	}
	if best != nil {
		return best.ID, true
	}
	for i := range fileSymbols {
		if fileSymbols[i].Name == name {
			return fileSymbols[i].ID, true
		}
	}
	return 0, false
}

// fanOut runs duplication, vulnerability/smell, and embedding analysis
// concurrently, per spec.md §4.J's "metrics ∥ callgraph ∥ embed ∥
// duplication ∥ vulns" ordering (metrics and callgraph already ran above,
// inline, since both need the file's source in hand and callgraph needs
// real ids before anything else can run). A single failing stage cancels
// the others via the shared errgroup context.
func (p *Pipeline) fanOut(ctx context.Context, repo *core.Repository, outFiles []core.File, outSymbols []core.Symbol, parsed []*parsedFile) error {
	g, gctx := errgroup.WithContext(ctx)

	if p.enableDuplication {
		g.Go(func() error { return p.runDuplication(gctx, repo.ID, outFiles, parsed) })
	}
	g.Go(func() error { return p.runVulnScan(gctx, repo.ID, outFiles, outSymbols, parsed) })
	if p.embedIdx != nil {
		g.Go(func() error { return p.runEmbedding(gctx, repo, outFiles, outSymbols, parsed) })
	}
	return g.Wait()
}

func (p *Pipeline) runDuplication(ctx context.Context, repoID int64, files []core.File, parsed []*parsedFile) error {
	sources := make([]duplication.FileSource, 0, len(parsed))
	for i, pf := range parsed {
		if len(pf.source) == 0 {
			continue
		}
		sources = append(sources, duplication.FileSource{
			FileID:   files[i].ID,
			Path:     pf.path,
			Language: pf.language,
			Source:   pf.source,
		})
	}

	pairs := duplication.Detect(p.dupCfg, sources)
	for i := range pairs {
		pairs[i].RepoID = repoID
	}
	if err := p.store.ReplaceDuplicationPairs(ctx, repoID, pairs); err != nil {
		return fmt.Errorf("replace duplication pairs: %w", err)
	}
	return nil
}

func (p *Pipeline) runVulnScan(ctx context.Context, repoID int64, files []core.File, symbols []core.Symbol, parsed []*parsedFile) error {
	symbolsByFile := make(map[int64][]core.Symbol)
	for _, s := range symbols {
		symbolsByFile[s.FileID] = append(symbolsByFile[s.FileID], s)
	}

	var vulns []core.Vulnerability
	var smells []core.CodeSmell
	for i, pf := range parsed {
		if len(pf.source) == 0 {
			continue
		}
		realFileID := files[i].ID

		for _, finding := range p.vulnScan.ScanFile(pf.language, pf.source) {
			vulns = append(vulns, vuln.ToVulnerability(repoID, realFileID, finding))
		}

		lines := bytes.Split(pf.source, []byte("\n"))
		for _, sym := range symbolsByFile[realFileID] {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			start, end := clampLines(sym.LineStart, sym.LineEnd, len(lines))
			body := string(bytes.Join(lines[start-1:end], []byte("\n")))

			symID := sym.ID
			location := fmt.Sprintf("L%d-L%d", sym.LineStart, sym.LineEnd)
			for _, lf := range p.vulnScan.DetectSmells(ctx, body, sym.Name, pf.language) {
				smells = append(smells, vuln.ToCodeSmell(repoID, realFileID, &symID, location, lf))
			}
		}
	}

	if err := p.store.ReplaceVulnerabilities(ctx, repoID, vulns); err != nil {
		return fmt.Errorf("replace vulnerabilities: %w", err)
	}
	if err := p.store.ReplaceCodeSmells(ctx, repoID, smells); err != nil {
		return fmt.Errorf("replace code smells: %w", err)
	}
	return nil
}

// runEmbedding computes and upserts one vector per symbol, bounding
// concurrent EmbeddingProvider calls with a weighted semaphore per spec.md
// §5's shared-resource policy for provider network calls.
func (p *Pipeline) runEmbedding(ctx context.Context, repo *core.Repository, files []core.File, symbols []core.Symbol, parsed []*parsedFile) error {
	sourceByFile := make(map[int64][]byte, len(parsed))
	langByFile := make(map[int64]core.Language, len(files))
	for i, pf := range parsed {
		sourceByFile[files[i].ID] = pf.source
		langByFile[files[i].ID] = pf.language
	}

	repoFullName := embedindex.FullName(repo)
	sem := semaphore.NewWeighted(int64(p.embedConcurrency))
	g, gctx := errgroup.WithContext(ctx)

	for _, sym := range symbols {
		sym := sym
		if err := sem.Acquire(gctx, 1); err != nil {
			return err
		}
		g.Go(func() error {
			defer sem.Release(1)

			source := sourceByFile[sym.FileID]
			lines := bytes.Split(source, []byte("\n"))
			start, end := clampLines(sym.LineStart, sym.LineEnd, len(lines))
			body := string(bytes.Join(lines[start-1:end], []byte("\n")))

			text := embedindex.BuildEmbedText(sym, body, p.embedBodyLimit)
			lang := langByFile[sym.FileID]

			upCtx := gctx
			if p.providerTimeout > 0 {
				var cancel context.CancelFunc
				upCtx, cancel = context.WithTimeout(gctx, p.providerTimeout)
				defer cancel()
			}
			if err := p.embedIdx.Upsert(upCtx, repoFullName, repo.ID, sym.ID, lang, text); err != nil {
				return fmt.Errorf("embed symbol %d: %w", sym.ID, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func clampLines(start, end, n int) (int, int) {
	if n == 0 {
		return 1, 1
	}
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
	return start, end
}
