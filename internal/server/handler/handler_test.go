package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/sevigo/codesentry/internal/config"
	"github.com/sevigo/codesentry/internal/core"
)

// fakeStore implements core.Store with just enough behavior for the handler
// tests in this package; every method not exercised returns a zero value.
type fakeStore struct {
	repo      *core.Repository
	getErr    error
	created   *core.Repository
	createErr error
	files     []core.File
}

func (s *fakeStore) CreateRepository(_ context.Context, repo *core.Repository) error {
	if s.createErr != nil {
		return s.createErr
	}
	repo.ID = 42
	s.created = repo
	return nil
}
func (s *fakeStore) GetRepository(_ context.Context, id int64) (*core.Repository, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.repo, nil
}
func (s *fakeStore) GetRepositoryByOrigin(context.Context, string, string) (*core.Repository, error) {
	return nil, nil
}
func (s *fakeStore) ListRepositories(context.Context) ([]core.Repository, error) { return nil, nil }
func (s *fakeStore) UpdateRepositoryStatus(context.Context, int64, core.RepoStatus, int, int, string) error {
	return nil
}
func (s *fakeStore) ReplaceFilesAndSymbols(context.Context, int64, []core.File, []core.Symbol) ([]core.File, []core.Symbol, error) {
	return nil, nil, nil
}
func (s *fakeStore) GetFile(context.Context, int64, string) (*core.File, error) { return nil, nil }
func (s *fakeStore) GetFileContent(context.Context, int64, string) (string, error) {
	return "", nil
}
func (s *fakeStore) ListFiles(context.Context, int64) ([]core.File, error) { return s.files, nil }
func (s *fakeStore) ListSymbols(context.Context, core.SymbolFilter) ([]core.Symbol, error) {
	return nil, nil
}
func (s *fakeStore) GetSymbol(context.Context, int64) (*core.Symbol, error) { return nil, nil }
func (s *fakeStore) ReplaceCallEdges(context.Context, int64, []core.CallEdge) error { return nil }
func (s *fakeStore) ListCallEdges(context.Context, int64) ([]core.CallEdge, error) { return nil, nil }
func (s *fakeStore) ReplaceImportEdges(context.Context, int64, []core.ImportEdge) error { return nil }
func (s *fakeStore) ListImportEdges(context.Context, int64) ([]core.ImportEdge, error) {
	return nil, nil
}
func (s *fakeStore) ReplaceVulnerabilities(context.Context, int64, []core.Vulnerability) error {
	return nil
}
func (s *fakeStore) ListVulnerabilities(context.Context, int64) ([]core.Vulnerability, error) {
	return nil, nil
}
func (s *fakeStore) ReplaceCodeSmells(context.Context, int64, []core.CodeSmell) error { return nil }
func (s *fakeStore) ListCodeSmells(context.Context, int64) ([]core.CodeSmell, error) {
	return nil, nil
}
func (s *fakeStore) ReplaceDuplicationPairs(context.Context, int64, []core.DuplicationPair) error {
	return nil
}
func (s *fakeStore) ListDuplicationPairs(context.Context, int64) ([]core.DuplicationPair, error) {
	return nil, nil
}
func (s *fakeStore) GetQualityGateConfig(context.Context, int64) (*core.QualityGateConfig, error) {
	return nil, core.ErrNotFound
}
func (s *fakeStore) UpsertQualityGateConfig(context.Context, core.QualityGateConfig) error {
	return nil
}
func (s *fakeStore) CreateCICDRun(context.Context, *core.CICDRun) error { return nil }
func (s *fakeStore) UpdateCICDRunStatus(context.Context, int64, core.RunStatus, string) error {
	return nil
}
func (s *fakeStore) GetCICDRun(context.Context, int64) (*core.CICDRun, error) { return nil, nil }
func (s *fakeStore) ListCICDRuns(context.Context, int64) ([]core.CICDRun, error) { return nil, nil }

type fakeDispatcher struct {
	dispatched []core.Task
	err        error
}

func (d *fakeDispatcher) Dispatch(_ context.Context, task core.Task) error {
	if d.err != nil {
		return d.err
	}
	d.dispatched = append(d.dispatched, task)
	return nil
}
func (d *fakeDispatcher) Cancel(context.Context, int64) error { return nil }

func newTestRouter(api *API) *chi.Mux {
	r := chi.NewRouter()
	r.Get("/repos/{id}", api.GetRepo)
	r.Get("/repos/{id}/files", api.ListFiles)
	r.Post("/repos/submit", api.Submit)
	r.Post("/search/semantic", api.Search)
	return r
}

func TestStatusForErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", core.ErrNotFound, http.StatusNotFound},
		{"duplicate repository", core.ErrDuplicateRepository, http.StatusBadRequest},
		{"validation kind error", core.NewKindError(core.ErrKindValidation, errors.New("bad")), http.StatusBadRequest},
		{"integrity kind error", core.NewKindError(core.ErrKindIntegrity, errors.New("conflict")), http.StatusConflict},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusForErr(tt.err); got != tt.want {
				t.Errorf("statusForErr(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestGetRepo_Found(t *testing.T) {
	store := &fakeStore{repo: &core.Repository{ID: 7, Status: core.StatusCompleted}}
	api := New(&config.Config{}, store, &fakeDispatcher{}, nil, nil, nil)
	router := newTestRouter(api)

	req := httptest.NewRequest(http.MethodGet, "/repos/7", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got core.Repository
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.ID != 7 {
		t.Errorf("expected repo id 7, got %d", got.ID)
	}
}

func TestGetRepo_NotFound(t *testing.T) {
	store := &fakeStore{getErr: core.ErrNotFound}
	api := New(&config.Config{}, store, &fakeDispatcher{}, nil, nil, nil)
	router := newTestRouter(api)

	req := httptest.NewRequest(http.MethodGet, "/repos/999", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestGetRepo_InvalidID(t *testing.T) {
	api := New(&config.Config{}, &fakeStore{}, &fakeDispatcher{}, nil, nil, nil)
	router := newTestRouter(api)

	req := httptest.NewRequest(http.MethodGet, "/repos/not-a-number", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a non-numeric id, got %d", rec.Code)
	}
}

func TestSubmit_RemoteJSONDispatchesIngest(t *testing.T) {
	store := &fakeStore{}
	dispatcher := &fakeDispatcher{}
	api := New(&config.Config{}, store, dispatcher, nil, nil, nil)
	router := newTestRouter(api)

	body := bytes.NewBufferString(`{"origin_url":"https://example.com/repo.git","branch":"main"}`)
	req := httptest.NewRequest(http.MethodPost, "/repos/submit", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(dispatcher.dispatched) != 1 || dispatcher.dispatched[0].Kind != core.TaskIngest {
		t.Errorf("expected an ingest task to be dispatched, got %+v", dispatcher.dispatched)
	}
	if store.created == nil || store.created.Source != core.SourceRemote {
		t.Errorf("expected a remote repository to be created, got %+v", store.created)
	}
}

func TestSubmit_MissingFieldsRejected(t *testing.T) {
	api := New(&config.Config{}, &fakeStore{}, &fakeDispatcher{}, nil, nil, nil)
	router := newTestRouter(api)

	body := bytes.NewBufferString(`{"origin_url":""}`)
	req := httptest.NewRequest(http.MethodPost, "/repos/submit", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a missing branch/origin_url, got %d", rec.Code)
	}
}

func TestSearch_NoIndexConfiguredReturns503(t *testing.T) {
	api := New(&config.Config{}, &fakeStore{}, &fakeDispatcher{}, nil, nil, nil)
	router := newTestRouter(api)

	body := bytes.NewBufferString(`{"query":"parse json","repo":1}`)
	req := httptest.NewRequest(http.MethodPost, "/search/semantic", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 when no embed index is configured, got %d", rec.Code)
	}
}
