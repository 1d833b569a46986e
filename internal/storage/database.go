// Package storage implements core.Store over Postgres via sqlx and lib/pq,
// grounded on the teacher's internal/storage/database.go.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sevigo/codesentry/internal/core"
)

// postgresStore implements core.Store.
type postgresStore struct {
	db *sqlx.DB
}

// NewStore returns a core.Store backed by db.
func NewStore(db *sqlx.DB) core.Store {
	return &postgresStore{db: db}
}

var _ core.Store = (*postgresStore)(nil)

// --- Repository ---------------------------------------------------------

func (s *postgresStore) CreateRepository(ctx context.Context, repo *core.Repository) error {
	const q = `
		INSERT INTO repositories (source, origin_url, branch, archive_path, status, primary_language)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`
	row := s.db.QueryRowContext(ctx, q, repo.Source, repo.OriginURL, repo.Branch, repo.ArchivePath, repo.Status, repo.PrimaryLanguage)
	if err := row.Scan(&repo.ID, &repo.CreatedAt); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return core.NewKindError(core.ErrKindValidation, core.ErrDuplicateRepository)
		}
		return fmt.Errorf("storage: create repository: %w", err)
	}
	return nil
}

func (s *postgresStore) GetRepository(ctx context.Context, id int64) (*core.Repository, error) {
	var repo core.Repository
	const q = `SELECT * FROM repositories WHERE id = $1`
	if err := s.db.GetContext(ctx, &repo, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("storage: get repository %d: %w", id, err)
	}
	return &repo, nil
}

func (s *postgresStore) GetRepositoryByOrigin(ctx context.Context, originURL, branch string) (*core.Repository, error) {
	var repo core.Repository
	const q = `SELECT * FROM repositories WHERE origin_url = $1 AND branch = $2 AND source = 'remote'`
	if err := s.db.GetContext(ctx, &repo, q, originURL, branch); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("storage: get repository by origin %q@%q: %w", originURL, branch, err)
	}
	return &repo, nil
}

func (s *postgresStore) ListRepositories(ctx context.Context) ([]core.Repository, error) {
	var repos []core.Repository
	const q = `SELECT * FROM repositories ORDER BY created_at DESC`
	if err := s.db.SelectContext(ctx, &repos, q); err != nil {
		return nil, fmt.Errorf("storage: list repositories: %w", err)
	}
	return repos, nil
}

func (s *postgresStore) UpdateRepositoryStatus(ctx context.Context, id int64, status core.RepoStatus, fileCount, symbolCount int, failureReason string) error {
	const q = `
		UPDATE repositories
		SET status = $2, file_count = $3, symbol_count = $4, failure_reason = $5
		WHERE id = $1`
	res, err := s.db.ExecContext(ctx, q, id, status, fileCount, symbolCount, failureReason)
	if err != nil {
		return fmt.Errorf("storage: update repository status %d: %w", id, err)
	}
	return checkRowsAffected(res)
}

// --- Files and Symbols ---------------------------------------------------

// ReplaceFilesAndSymbols deletes this repository's existing Files (cascading
// to Symbols, CallEdges, ImportEdges, Vulnerabilities, CodeSmells and
// DuplicationPairs via their foreign keys) and inserts the given files and
// symbols inside one transaction, per the insert-then-swap ingest lifecycle.
//
// Callers populate each File.ID with a 0-based provisional index into files
// (its position in the slice) and each Symbol.FileID with that same
// provisional index; ReplaceFilesAndSymbols remaps both to the real,
// database-assigned ids before insert and returns the slices in the same
// order with real ids populated, so later stages (call-graph resolution,
// embedding, duplication, vulnerability scanning) can correlate their own
// output back to a symbol or file by real id.
func (s *postgresStore) ReplaceFilesAndSymbols(ctx context.Context, repoID int64, files []core.File, symbols []core.Symbol) ([]core.File, []core.Symbol, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("storage: begin replace tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE repo_id = $1`, repoID); err != nil {
		return nil, nil, fmt.Errorf("storage: delete existing files: %w", err)
	}

	idMap := make(map[int64]int64, len(files))
	outFiles := make([]core.File, len(files))
	const insertFile = `
		INSERT INTO files (repo_id, path, language, byte_size, line_count, sha256, parse_error, content)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
	for i, f := range files {
		provisional := f.ID
		f.RepoID = repoID
		row := tx.QueryRowContext(ctx, insertFile, repoID, f.Path, f.Language, f.ByteSize, f.LineCount, f.SHA256, f.ParseErr, f.Content)
		if err := row.Scan(&f.ID); err != nil {
			return nil, nil, fmt.Errorf("storage: insert file %q: %w", f.Path, err)
		}
		idMap[provisional] = f.ID
		outFiles[i] = f
	}

	outSymbols := make([]core.Symbol, len(symbols))
	const insertSymbol = `
		INSERT INTO symbols (
			file_id, name, kind, line_start, line_end, signature, docstring,
			has_docstring, docstring_length, cyclomatic_complexity,
			maintainability_index, mi_approximated, loc, comment_lines, blank_lines
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		RETURNING id`
	for i, sym := range symbols {
		realFileID, ok := idMap[sym.FileID]
		if !ok {
			return nil, nil, fmt.Errorf("storage: symbol %q references unknown provisional file id %d", sym.Name, sym.FileID)
		}
		sym.FileID = realFileID
		row := tx.QueryRowContext(ctx, insertSymbol,
			sym.FileID, sym.Name, sym.Kind, sym.LineStart, sym.LineEnd, sym.Signature, sym.Docstring,
			sym.HasDocstring, sym.DocstringLength, sym.CyclomaticComplexity,
			sym.MaintainabilityIndex, sym.MIApproximated, sym.LOC, sym.CommentLines, sym.BlankLines)
		if err := row.Scan(&sym.ID); err != nil {
			return nil, nil, fmt.Errorf("storage: insert symbol %q: %w", sym.Name, err)
		}
		outSymbols[i] = sym
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("storage: commit replace tx: %w", err)
	}
	return outFiles, outSymbols, nil
}

func (s *postgresStore) GetFile(ctx context.Context, repoID int64, path string) (*core.File, error) {
	var f core.File
	const q = `SELECT * FROM files WHERE repo_id = $1 AND path = $2`
	if err := s.db.GetContext(ctx, &f, q, repoID, path); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("storage: get file %q: %w", path, err)
	}
	return &f, nil
}

func (s *postgresStore) GetFileContent(ctx context.Context, repoID int64, path string) (string, error) {
	var content string
	const q = `SELECT content FROM files WHERE repo_id = $1 AND path = $2`
	if err := s.db.GetContext(ctx, &content, q, repoID, path); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", core.ErrNotFound
		}
		return "", fmt.Errorf("storage: get file content %q: %w", path, err)
	}
	return content, nil
}

// ListFiles omits the content column so listing a large repository does not
// haul every file's source text over the wire; GetFileContent serves it.
func (s *postgresStore) ListFiles(ctx context.Context, repoID int64) ([]core.File, error) {
	var files []core.File
	const q = `
		SELECT id, repo_id, path, language, byte_size, line_count, sha256, parse_error
		FROM files WHERE repo_id = $1 ORDER BY path`
	if err := s.db.SelectContext(ctx, &files, q, repoID); err != nil {
		return nil, fmt.Errorf("storage: list files for repo %d: %w", repoID, err)
	}
	return files, nil
}

func (s *postgresStore) ListSymbols(ctx context.Context, filter core.SymbolFilter) ([]core.Symbol, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	query := `SELECT s.* FROM symbols s JOIN files f ON f.id = s.file_id`
	if filter.RepoID != 0 {
		conds = append(conds, "f.repo_id = "+arg(filter.RepoID))
	}
	if filter.FileID != 0 {
		conds = append(conds, "s.file_id = "+arg(filter.FileID))
	}
	if filter.Kind != "" {
		conds = append(conds, "s.kind = "+arg(filter.Kind))
	}
	if filter.AfterID != 0 {
		conds = append(conds, "s.id > "+arg(filter.AfterID))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY s.id"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}

	var symbols []core.Symbol
	if err := s.db.SelectContext(ctx, &symbols, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("storage: list symbols: %w", err)
	}
	if filter.ComplexityBucket == "" && filter.MaintainabilityBucket == "" {
		return symbols, nil
	}

	filtered := symbols[:0]
	for _, sym := range symbols {
		if filter.ComplexityBucket != "" && core.ComplexityBucketOf(sym.CyclomaticComplexity) != filter.ComplexityBucket {
			continue
		}
		if filter.MaintainabilityBucket != "" && core.MaintainabilityBucketOf(sym.MaintainabilityIndex) != filter.MaintainabilityBucket {
			continue
		}
		filtered = append(filtered, sym)
	}
	return filtered, nil
}

func (s *postgresStore) GetSymbol(ctx context.Context, id int64) (*core.Symbol, error) {
	var sym core.Symbol
	const q = `SELECT * FROM symbols WHERE id = $1`
	if err := s.db.GetContext(ctx, &sym, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("storage: get symbol %d: %w", id, err)
	}
	return &sym, nil
}

// --- Edges ---------------------------------------------------------------

func (s *postgresStore) ReplaceCallEdges(ctx context.Context, repoID int64, edges []core.CallEdge) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin call-edge tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM call_edges WHERE repo_id = $1`, repoID); err != nil {
		return fmt.Errorf("storage: delete existing call edges: %w", err)
	}
	const insert = `
		INSERT INTO call_edges (repo_id, from_symbol_id, to_name, to_symbol_id, file_id, line, is_external)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`
	for _, e := range edges {
		if _, err := tx.ExecContext(ctx, insert, repoID, e.FromSymbolID, e.ToName, e.ToSymbolID, e.FileID, e.Line, e.IsExternal); err != nil {
			return fmt.Errorf("storage: insert call edge: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: commit call-edge tx: %w", err)
	}
	return nil
}

func (s *postgresStore) ListCallEdges(ctx context.Context, repoID int64) ([]core.CallEdge, error) {
	var edges []core.CallEdge
	const q = `SELECT * FROM call_edges WHERE repo_id = $1 ORDER BY id`
	if err := s.db.SelectContext(ctx, &edges, q, repoID); err != nil {
		return nil, fmt.Errorf("storage: list call edges for repo %d: %w", repoID, err)
	}
	return edges, nil
}

func (s *postgresStore) ReplaceImportEdges(ctx context.Context, repoID int64, edges []core.ImportEdge) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin import-edge tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM import_edges WHERE repo_id = $1`, repoID); err != nil {
		return fmt.Errorf("storage: delete existing import edges: %w", err)
	}
	const insert = `
		INSERT INTO import_edges (repo_id, from_file_id, to_file_id, to_module_name, kind)
		VALUES ($1,$2,$3,$4,$5)`
	for _, e := range edges {
		if _, err := tx.ExecContext(ctx, insert, repoID, e.FromFileID, e.ToFileID, e.ToModuleName, e.Kind); err != nil {
			return fmt.Errorf("storage: insert import edge: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: commit import-edge tx: %w", err)
	}
	return nil
}

func (s *postgresStore) ListImportEdges(ctx context.Context, repoID int64) ([]core.ImportEdge, error) {
	var edges []core.ImportEdge
	const q = `SELECT * FROM import_edges WHERE repo_id = $1 ORDER BY id`
	if err := s.db.SelectContext(ctx, &edges, q, repoID); err != nil {
		return nil, fmt.Errorf("storage: list import edges for repo %d: %w", repoID, err)
	}
	return edges, nil
}

// --- Findings ------------------------------------------------------------

func (s *postgresStore) ReplaceVulnerabilities(ctx context.Context, repoID int64, vulns []core.Vulnerability) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin vulnerabilities tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM vulnerabilities WHERE repo_id = $1`, repoID); err != nil {
		return fmt.Errorf("storage: delete existing vulnerabilities: %w", err)
	}
	const insert = `
		INSERT INTO vulnerabilities (repo_id, file_id, line, rule_id, severity, cwe, category, description, confidence, code_snippet)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	for _, v := range vulns {
		if _, err := tx.ExecContext(ctx, insert, repoID, v.FileID, v.Line, v.RuleID, v.Severity, v.CWE, v.Category, v.Description, v.Confidence, v.CodeSnippet); err != nil {
			return fmt.Errorf("storage: insert vulnerability: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: commit vulnerabilities tx: %w", err)
	}
	return nil
}

func (s *postgresStore) ListVulnerabilities(ctx context.Context, repoID int64) ([]core.Vulnerability, error) {
	var vulns []core.Vulnerability
	const q = `SELECT * FROM vulnerabilities WHERE repo_id = $1 ORDER BY id`
	if err := s.db.SelectContext(ctx, &vulns, q, repoID); err != nil {
		return nil, fmt.Errorf("storage: list vulnerabilities for repo %d: %w", repoID, err)
	}
	return vulns, nil
}

func (s *postgresStore) ReplaceCodeSmells(ctx context.Context, repoID int64, smells []core.CodeSmell) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin code-smells tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM code_smells WHERE repo_id = $1`, repoID); err != nil {
		return fmt.Errorf("storage: delete existing code smells: %w", err)
	}
	const insert = `
		INSERT INTO code_smells (repo_id, smell_type, severity, title, description, suggestion, file_id, symbol_id, location)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	for _, c := range smells {
		if _, err := tx.ExecContext(ctx, insert, repoID, c.SmellType, c.Severity, c.Title, c.Description, c.Suggestion, c.FileID, c.SymbolID, c.Location); err != nil {
			return fmt.Errorf("storage: insert code smell: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: commit code-smells tx: %w", err)
	}
	return nil
}

func (s *postgresStore) ListCodeSmells(ctx context.Context, repoID int64) ([]core.CodeSmell, error) {
	var smells []core.CodeSmell
	const q = `SELECT * FROM code_smells WHERE repo_id = $1 ORDER BY id`
	if err := s.db.SelectContext(ctx, &smells, q, repoID); err != nil {
		return nil, fmt.Errorf("storage: list code smells for repo %d: %w", repoID, err)
	}
	return smells, nil
}

func (s *postgresStore) ReplaceDuplicationPairs(ctx context.Context, repoID int64, pairs []core.DuplicationPair) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin duplication-pairs tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM duplication_pairs WHERE repo_id = $1`, repoID); err != nil {
		return fmt.Errorf("storage: delete existing duplication pairs: %w", err)
	}
	const insert = `
		INSERT INTO duplication_pairs (repo_id, file1_id, file1_range, file2_id, file2_range, similarity, duplicate_lines, duplicate_tokens, snippet)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	for _, p := range pairs {
		if _, err := tx.ExecContext(ctx, insert, repoID, p.File1ID, p.File1Range, p.File2ID, p.File2Range, p.Similarity, p.DuplicateLines, p.DuplicateTokens, p.Snippet); err != nil {
			return fmt.Errorf("storage: insert duplication pair: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: commit duplication-pairs tx: %w", err)
	}
	return nil
}

func (s *postgresStore) ListDuplicationPairs(ctx context.Context, repoID int64) ([]core.DuplicationPair, error) {
	var pairs []core.DuplicationPair
	const q = `SELECT * FROM duplication_pairs WHERE repo_id = $1 ORDER BY id`
	if err := s.db.SelectContext(ctx, &pairs, q, repoID); err != nil {
		return nil, fmt.Errorf("storage: list duplication pairs for repo %d: %w", repoID, err)
	}
	return pairs, nil
}

// --- Quality gate ----------------------------------------------------------

func (s *postgresStore) GetQualityGateConfig(ctx context.Context, repoID int64) (*core.QualityGateConfig, error) {
	var cfg core.QualityGateConfig
	const q = `SELECT * FROM quality_gate_configs WHERE repo_id = $1`
	if err := s.db.GetContext(ctx, &cfg, q, repoID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("storage: get quality gate config for repo %d: %w", repoID, err)
	}
	return &cfg, nil
}

func (s *postgresStore) UpsertQualityGateConfig(ctx context.Context, cfg core.QualityGateConfig) error {
	const q = `
		INSERT INTO quality_gate_configs (
			repo_id, max_complexity, max_code_smells, max_critical_smells,
			max_vulnerabilities, max_critical_vulnerabilities, min_quality_score,
			max_duplication_percentage, block_on_failure
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (repo_id) DO UPDATE SET
			max_complexity = EXCLUDED.max_complexity,
			max_code_smells = EXCLUDED.max_code_smells,
			max_critical_smells = EXCLUDED.max_critical_smells,
			max_vulnerabilities = EXCLUDED.max_vulnerabilities,
			max_critical_vulnerabilities = EXCLUDED.max_critical_vulnerabilities,
			min_quality_score = EXCLUDED.min_quality_score,
			max_duplication_percentage = EXCLUDED.max_duplication_percentage,
			block_on_failure = EXCLUDED.block_on_failure`
	_, err := s.db.ExecContext(ctx, q,
		cfg.RepoID, cfg.MaxComplexity, cfg.MaxCodeSmells, cfg.MaxCriticalSmells,
		cfg.MaxVulnerabilities, cfg.MaxCriticalVulnerabilities, cfg.MinQualityScore,
		cfg.MaxDuplicationPercentage, cfg.BlockOnFailure)
	if err != nil {
		return fmt.Errorf("storage: upsert quality gate config for repo %d: %w", cfg.RepoID, err)
	}
	return nil
}

// --- CICD runs ---------------------------------------------------------

func (s *postgresStore) CreateCICDRun(ctx context.Context, run *core.CICDRun) error {
	const q = `
		INSERT INTO cicd_runs (repo_id, branch, commit, pr_number, triggered_by, status, gate_result)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id, created_at`
	row := s.db.QueryRowContext(ctx, q, run.RepoID, run.Branch, run.Commit, run.PRNumber, run.TriggeredBy, run.Status, run.GateResult)
	if err := row.Scan(&run.ID, &run.CreatedAt); err != nil {
		return fmt.Errorf("storage: create cicd run: %w", err)
	}
	return nil
}

func (s *postgresStore) UpdateCICDRunStatus(ctx context.Context, id int64, status core.RunStatus, gateResult string) error {
	const q = `
		UPDATE cicd_runs SET status = $2, gate_result = $3, completed_at = now()
		WHERE id = $1`
	res, err := s.db.ExecContext(ctx, q, id, status, gateResult)
	if err != nil {
		return fmt.Errorf("storage: update cicd run %d: %w", id, err)
	}
	return checkRowsAffected(res)
}

func (s *postgresStore) GetCICDRun(ctx context.Context, id int64) (*core.CICDRun, error) {
	var run core.CICDRun
	const q = `SELECT * FROM cicd_runs WHERE id = $1`
	if err := s.db.GetContext(ctx, &run, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("storage: get cicd run %d: %w", id, err)
	}
	return &run, nil
}

func (s *postgresStore) ListCICDRuns(ctx context.Context, repoID int64) ([]core.CICDRun, error) {
	var runs []core.CICDRun
	const q = `SELECT * FROM cicd_runs WHERE repo_id = $1 ORDER BY created_at DESC`
	if err := s.db.SelectContext(ctx, &runs, q, repoID); err != nil {
		return nil, fmt.Errorf("storage: list cicd runs for repo %d: %w", repoID, err)
	}
	return runs, nil
}

func checkRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage: rows affected: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}
