package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sevigo/codesentry/internal/core"
	"github.com/sevigo/codesentry/internal/embedindex"
)

// searchRequest is the {query, threshold?, language?, repo?} body of
// POST /search/semantic.
type searchRequest struct {
	Query     string  `json:"query"`
	Threshold float64 `json:"threshold"`
	Language  string  `json:"language"`
	Repo      int64   `json:"repo"`
}

type searchResult struct {
	Symbol     core.Symbol `json:"symbol"`
	Similarity float64     `json:"similarity"`
}

// Search handles POST /search/semantic: embeds the query and ranks stored
// symbols in the requested repository's collection by cosine similarity.
func (a *API) Search(w http.ResponseWriter, r *http.Request) {
	if a.index == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("semantic search is not configured"))
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("query is required"))
		return
	}
	if req.Repo == 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("repo is required"))
		return
	}
	if req.Threshold <= 0 {
		req.Threshold = 0.7
	}

	repo, err := a.store.GetRepository(r.Context(), req.Repo)
	if err != nil {
		writeError(w, statusForErr(err), err)
		return
	}

	// The embedding round-trips behind Query get a deadline of their own,
	// derived from PROVIDER_TIMEOUT, per the synchronous-and-bounded contract.
	ctx := r.Context()
	if a.cfg.Server.ProviderTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Server.ProviderTimeout)
		defer cancel()
	}

	matches, err := a.index.Query(ctx, embedindex.FullName(repo), req.Query, req.Threshold,
		embedindex.Filter{Language: core.Language(req.Language), RepoID: req.Repo}, 20)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}

	results := make([]searchResult, 0, len(matches))
	for _, m := range matches {
		sym, err := a.store.GetSymbol(r.Context(), m.SymbolID)
		if err != nil {
			continue
		}
		results = append(results, searchResult{Symbol: *sym, Similarity: m.Similarity})
	}
	writeJSON(w, http.StatusOK, results)
}
