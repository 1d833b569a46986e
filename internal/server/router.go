package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sevigo/codesentry/internal/config"
	"github.com/sevigo/codesentry/internal/core"
	"github.com/sevigo/codesentry/internal/embedindex"
	"github.com/sevigo/codesentry/internal/qualitygate"
	"github.com/sevigo/codesentry/internal/server/handler"
)

// NewRouter creates and configures a new HTTP router with middleware and
// the REST surface of spec.md §6.
func NewRouter(cfg *config.Config, store core.Store, dispatcher core.JobDispatcher, gate *qualitygate.Engine, index *embedindex.Index, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// Configure middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	api := handler.New(cfg, store, dispatcher, gate, index, logger)
	webhookHandler := handler.NewWebhookHandler(cfg, gate, logger)

	r.Route("/repos", func(r chi.Router) {
		r.Post("/submit", api.Submit)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", api.GetRepo)
			r.Get("/files", api.ListFiles)
			r.Get("/files/*", api.GetFileContent)
			r.Get("/symbols", api.ListSymbols)
			r.Get("/call-graph", api.CallGraph)
			r.Get("/dependencies", api.Dependencies)
			r.Get("/dead-code", api.DeadCode)
			r.Get("/circular-deps", api.CircularDeps)
		})
	})

	r.Post("/search/semantic", api.Search)

	r.Route("/quality-gate/{repo}", func(r chi.Router) {
		r.Get("/", api.GetQualityGateConfig)
		r.Put("/", api.PutQualityGateConfig)
		r.Post("/check", api.CheckQualityGate)
	})

	r.Post("/webhook/ci", webhookHandler.Handle)

	r.Get("/runs/{repo}", api.ListRuns)
	r.Get("/report/{run}", api.Report)

	return r
}
