package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sevigo/codesentry/internal/callgraph"
	"github.com/sevigo/codesentry/internal/core"
)

// submitRequest is the JSON body for a remote submission. An upload instead
// arrives as multipart/form-data with a "archive" file part; Submit branches
// on Content-Type.
type submitRequest struct {
	OriginURL string `json:"origin_url"`
	Branch    string `json:"branch"`
}

// Submit handles POST /repos/submit: a remote clone request (JSON body) or
// an archive upload (multipart form), creating a pending Repository row and
// dispatching its ingest task.
func (a *API) Submit(w http.ResponseWriter, r *http.Request) {
	ct := r.Header.Get("Content-Type")
	var repo core.Repository

	switch {
	case strings.HasPrefix(ct, "multipart/form-data"):
		if err := a.submitUpload(r, &repo); err != nil {
			writeError(w, statusForErr(err), err)
			return
		}
	default:
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
			return
		}
		if req.OriginURL == "" || req.Branch == "" {
			writeError(w, http.StatusBadRequest, fmt.Errorf("origin_url and branch are required"))
			return
		}
		repo.Source = core.SourceRemote
		repo.OriginURL = req.OriginURL
		repo.Branch = req.Branch
	}

	repo.Status = core.StatusPending
	if err := a.store.CreateRepository(r.Context(), &repo); err != nil {
		writeError(w, statusForErr(err), err)
		return
	}

	if err := a.dispatcher.Dispatch(r.Context(), core.Task{RepoID: repo.ID, Kind: core.TaskIngest}); err != nil {
		a.logger.ErrorContext(r.Context(), "failed to dispatch ingest task", "repo_id", repo.ID, "error", err)
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}

	writeJSON(w, http.StatusAccepted, repo)
}

func (a *API) submitUpload(r *http.Request, repo *core.Repository) error {
	if err := r.ParseMultipartForm(a.cfg.Ingest.SizeCap); err != nil {
		return core.NewKindError(core.ErrKindValidation, fmt.Errorf("parse upload: %w", err))
	}
	file, _, err := r.FormFile("archive")
	if err != nil {
		return core.NewKindError(core.ErrKindValidation, fmt.Errorf("missing archive file part: %w", err))
	}
	defer file.Close()

	if err := os.MkdirAll(a.cfg.Ingest.ScratchRoot, 0o750); err != nil {
		return core.NewKindError(core.ErrKindResource, fmt.Errorf("create scratch root: %w", err))
	}
	dest, err := os.CreateTemp(a.cfg.Ingest.ScratchRoot, "codesentry-upload-*.zip")
	if err != nil {
		return core.NewKindError(core.ErrKindResource, fmt.Errorf("create upload file: %w", err))
	}
	defer dest.Close()

	if _, err := io.Copy(dest, file); err != nil {
		return core.NewKindError(core.ErrKindResource, fmt.Errorf("write upload file: %w", err))
	}

	repo.Source = core.SourceUpload
	repo.ArchivePath = dest.Name()
	repo.Branch = r.FormValue("branch")
	return nil
}

// GetRepo handles GET /repos/:id.
func (a *API) GetRepo(w http.ResponseWriter, r *http.Request) {
	id, err := pathRepoID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	repo, err := a.store.GetRepository(r.Context(), id)
	if err != nil {
		writeError(w, statusForErr(err), err)
		return
	}
	writeJSON(w, http.StatusOK, repo)
}

// ListFiles handles GET /repos/:id/files.
func (a *API) ListFiles(w http.ResponseWriter, r *http.Request) {
	id, err := pathRepoID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	files, err := a.store.ListFiles(r.Context(), id)
	if err != nil {
		writeError(w, statusForErr(err), err)
		return
	}
	writeJSON(w, http.StatusOK, files)
}

// GetFileContent handles GET /repos/:id/files/*, where the wildcard is the
// repo-relative file path.
func (a *API) GetFileContent(w http.ResponseWriter, r *http.Request) {
	id, err := pathRepoID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	path := chi.URLParam(r, "*")
	content, err := a.store.GetFileContent(r.Context(), id, path)
	if err != nil {
		writeError(w, statusForErr(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": path, "content": content})
}

// ListSymbols handles GET /repos/:id/symbols, with optional query-string
// filters matching core.SymbolFilter: file_id, kind, complexity_bucket,
// maintainability_bucket, after_id, limit.
func (a *API) ListSymbols(w http.ResponseWriter, r *http.Request) {
	id, err := pathRepoID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	q := r.URL.Query()
	filter := core.SymbolFilter{
		RepoID:                id,
		Kind:                  core.SymbolKind(q.Get("kind")),
		ComplexityBucket:      core.ComplexityBucket(q.Get("complexity_bucket")),
		MaintainabilityBucket: core.MaintainabilityBucket(q.Get("maintainability_bucket")),
		Limit:                 100,
	}
	if v := q.Get("file_id"); v != "" {
		filter.FileID, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := q.Get("after_id"); v != "" {
		filter.AfterID, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := q.Get("limit"); v != "" {
		if n, parseErr := strconv.Atoi(v); parseErr == nil && n > 0 {
			filter.Limit = n
		}
	}

	symbols, err := a.store.ListSymbols(r.Context(), filter)
	if err != nil {
		writeError(w, statusForErr(err), err)
		return
	}
	writeJSON(w, http.StatusOK, symbols)
}

// buildGraph loads a repository's symbols, files, and call edges and
// replays callgraph.Analyze, giving every graph-derived endpoint (call-graph,
// dead-code, circular-deps) a consistent, always-current view without
// persisting a separate copy of a result that's cheap to recompute.
func (a *API) buildGraph(r *http.Request, repoID int64) (callgraph.Result, []core.Symbol, []core.File, error) {
	symbols, err := a.store.ListSymbols(r.Context(), core.SymbolFilter{RepoID: repoID, Limit: 1 << 30})
	if err != nil {
		return callgraph.Result{}, nil, nil, err
	}
	files, err := a.store.ListFiles(r.Context(), repoID)
	if err != nil {
		return callgraph.Result{}, nil, nil, err
	}
	edges, err := a.store.ListCallEdges(r.Context(), repoID)
	if err != nil {
		return callgraph.Result{}, nil, nil, err
	}
	return callgraph.Analyze(symbols, files, edges), symbols, files, nil
}

// CallGraph handles GET /repos/:id/call-graph.
func (a *API) CallGraph(w http.ResponseWriter, r *http.Request) {
	id, err := pathRepoID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	result, symbols, _, err := a.buildGraph(r, id)
	if err != nil {
		writeError(w, statusForErr(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"nodes": symbols,
		"edges": result.ResolvedEdges,
	})
}

// Dependencies handles GET /repos/:id/dependencies: the file-level import graph.
func (a *API) Dependencies(w http.ResponseWriter, r *http.Request) {
	id, err := pathRepoID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	files, err := a.store.ListFiles(r.Context(), id)
	if err != nil {
		writeError(w, statusForErr(err), err)
		return
	}
	edges, err := a.store.ListImportEdges(r.Context(), id)
	if err != nil {
		writeError(w, statusForErr(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"nodes": files,
		"edges": edges,
	})
}

// DeadCode handles GET /repos/:id/dead-code.
func (a *API) DeadCode(w http.ResponseWriter, r *http.Request) {
	id, err := pathRepoID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	result, _, _, err := a.buildGraph(r, id)
	if err != nil {
		writeError(w, statusForErr(err), err)
		return
	}
	writeJSON(w, http.StatusOK, result.DeadCode)
}

// CircularDeps handles GET /repos/:id/circular-deps.
func (a *API) CircularDeps(w http.ResponseWriter, r *http.Request) {
	id, err := pathRepoID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	result, _, _, err := a.buildGraph(r, id)
	if err != nil {
		writeError(w, statusForErr(err), err)
		return
	}
	writeJSON(w, http.StatusOK, result.Cycles)
}
