// Package handler implements the REST surface of spec.md §6: repository
// ingestion, browsing, call-graph/dependency/dead-code/cycle views, semantic
// search, quality-gate configuration and evaluation, CI webhook intake, and
// run history/reports. One API struct per server, methods grouped by
// resource across files, matching the teacher's one-handler-per-concern
// layout (internal/server/handler/webhook.go).
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sevigo/codesentry/internal/config"
	"github.com/sevigo/codesentry/internal/core"
	"github.com/sevigo/codesentry/internal/embedindex"
	"github.com/sevigo/codesentry/internal/qualitygate"
)

// API bundles every collaborator the REST surface calls into.
type API struct {
	cfg        *config.Config
	store      core.Store
	dispatcher core.JobDispatcher
	gate       *qualitygate.Engine
	index      *embedindex.Index
	logger     *slog.Logger
}

// New returns an API serving cfg's HTTP surface. index may be nil, in which
// case /search/semantic answers 503.
func New(cfg *config.Config, store core.Store, dispatcher core.JobDispatcher, gate *qualitygate.Engine, index *embedindex.Index, logger *slog.Logger) *API {
	return &API{cfg: cfg, store: store, dispatcher: dispatcher, gate: gate, index: index, logger: logger}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}

// statusForErr maps the core.ErrKind taxonomy (and the bare core.Err*
// sentinels) onto an HTTP status, per spec.md §7's propagation rules.
func statusForErr(err error) int {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrDuplicateRepository),
		errors.Is(err, core.ErrBranchNotFound),
		errors.Is(err, core.ErrArchiveTooLarge),
		errors.Is(err, core.ErrArchiveUnsafe),
		errors.Is(err, core.ErrIngestInFlight):
		return http.StatusBadRequest
	}
	var ke *core.KindError
	if errors.As(err, &ke) {
		switch ke.Kind {
		case core.ErrKindValidation:
			return http.StatusBadRequest
		case core.ErrKindIntegrity:
			return http.StatusConflict
		}
	}
	return http.StatusInternalServerError
}

// pathRepoID reads a repository id from whichever path parameter the route
// uses: "id" for /repos/:id's subtree, "repo" for /quality-gate/:repo and
// /runs/:repo.
func pathRepoID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	if raw == "" {
		raw = chi.URLParam(r, "repo")
	}
	return strconv.ParseInt(raw, 10, 64)
}
