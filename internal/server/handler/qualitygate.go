package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sevigo/codesentry/internal/core"
)

// GetQualityGateConfig handles GET /quality-gate/:repo.
func (a *API) GetQualityGateConfig(w http.ResponseWriter, r *http.Request) {
	id, err := pathRepoID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	cfg, err := a.store.GetQualityGateConfig(r.Context(), id)
	if err != nil {
		def := core.DefaultQualityGateConfig(id)
		cfg = &def
	}
	writeJSON(w, http.StatusOK, cfg)
}

// PutQualityGateConfig handles PUT /quality-gate/:repo: replaces a
// repository's threshold configuration wholesale.
func (a *API) PutQualityGateConfig(w http.ResponseWriter, r *http.Request) {
	id, err := pathRepoID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var cfg core.QualityGateConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	cfg.RepoID = id

	if err := a.store.UpsertQualityGateConfig(r.Context(), cfg); err != nil {
		writeError(w, statusForErr(err), err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// checkRequest is the optional body of POST /quality-gate/:repo/check,
// letting a manual trigger record the branch/commit under review.
type checkRequest struct {
	Branch string `json:"branch"`
	Commit string `json:"commit"`
}

// CheckQualityGate handles POST /quality-gate/:repo/check: runs the gate
// with triggered_by=manual (CI callers use /webhook/ci instead).
func (a *API) CheckQualityGate(w http.ResponseWriter, r *http.Request) {
	id, err := pathRepoID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req checkRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	result, err := a.gate.Check(r.Context(), id, core.TriggeredManual, req.Branch, req.Commit, 0)
	if err != nil {
		writeError(w, statusForErr(err), err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ListRuns handles GET /runs/:repo.
func (a *API) ListRuns(w http.ResponseWriter, r *http.Request) {
	id, err := pathRepoID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	runs, err := a.store.ListCICDRuns(r.Context(), id)
	if err != nil {
		writeError(w, statusForErr(err), err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}
