// Package app initializes and orchestrates the main components of the
// application. It wires together configuration, storage, the analysis
// pipeline, and the HTTP server.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/sevigo/codesentry/internal/config"
	"github.com/sevigo/codesentry/internal/core"
	"github.com/sevigo/codesentry/internal/db"
	"github.com/sevigo/codesentry/internal/duplication"
	"github.com/sevigo/codesentry/internal/embedindex"
	"github.com/sevigo/codesentry/internal/fetch"
	"github.com/sevigo/codesentry/internal/jobs"
	"github.com/sevigo/codesentry/internal/langdetect"
	"github.com/sevigo/codesentry/internal/metrics"
	"github.com/sevigo/codesentry/internal/parser"
	"github.com/sevigo/codesentry/internal/parser/asm"
	"github.com/sevigo/codesentry/internal/parser/c"
	"github.com/sevigo/codesentry/internal/parser/cobol"
	"github.com/sevigo/codesentry/internal/parser/python"
	"github.com/sevigo/codesentry/internal/provider"
	"github.com/sevigo/codesentry/internal/qualitygate"
	"github.com/sevigo/codesentry/internal/server"
	"github.com/sevigo/codesentry/internal/storage"
	"github.com/sevigo/codesentry/internal/vuln"
)

// App holds the main application components.
type App struct {
	Store      core.Store
	Dispatcher core.JobDispatcher
	Gate       *qualitygate.Engine
	Cfg        *config.Config

	logger    *slog.Logger
	server    *server.Server
	scheduler *jobs.Scheduler
}

// NewApp builds every collaborator of spec.md's core (Storage, the
// per-language Parser registry, MetricsAnalyzer, VulnerabilityScanner, the
// EmbeddingIndex, and the JobScheduler's Pipeline) and returns an App ready
// to Start, plus a cleanup func releasing the database pool. The
// embedding/LLM providers are best-effort: a failure to construct either
// degrades the corresponding fan-out stage rather than failing startup,
// since neither is required for ingestion or the quality gate to function.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, dbCleanup, err := db.Open(ctx, &cfg.Database, logger)
	if err != nil {
		return nil, func() {}, fmt.Errorf("app: init database: %w", err)
	}

	store := storage.NewStore(pool)

	registry := parser.NewRegistry(
		python.New(),
		c.New(),
		cobol.New(),
		asm.New(),
	)

	fetchers := map[core.RepoSource]core.SourceFetcher{
		core.SourceUpload: fetch.NewArchiveFetcher(cfg.Ingest.ScratchRoot, cfg.Ingest.SizeCap, logger),
		core.SourceRemote: fetch.NewGitFetcher(cfg.Ingest.ScratchRoot, cfg.Ingest.GitAuthToken, logger),
	}

	var llmProvider core.LLMProvider
	if cfg.Features.EnableLLMSmellDetection {
		lp, err := provider.NewLLMProvider(ctx, cfg.LLM, logger)
		if err != nil {
			logger.Warn("smell-detection LLM provider unavailable, scanning rule-only", "error", err)
		} else {
			llmProvider = lp
		}
	}
	scanner := vuln.New(vuln.DefaultRules(), llmProvider)

	var embedIdx *embedindex.Index
	if ep, err := provider.NewEmbeddingProvider(ctx, cfg.Embedding, logger); err != nil {
		logger.Warn("embedding provider unavailable, semantic search disabled", "error", err)
	} else {
		embedIdx = embedindex.New(cfg.Storage.QdrantHost, ep, logger)
	}

	pipeline := jobs.NewPipeline(store, fetchers, registry, metrics.New(), scanner, embedIdx, jobs.Config{
		LangDetect:        langdetect.Config{MaxFileSize: cfg.Ingest.MaxFileSize},
		Duplication:       duplication.DefaultConfig(),
		EnableDuplication: cfg.Features.EnableDuplication,
		EmbedConcurrency:  cfg.Embedding.MaxConcurrency,
		ProviderTimeout:   cfg.Server.ProviderTimeout,
	}, logger)

	workers := cfg.Server.Workers
	if workers <= 0 {
		workers = 2 * runtime.NumCPU()
	}
	dispatcher := jobs.NewScheduler(pipeline, workers, logger)

	gate := qualitygate.New(store)

	httpServer := server.NewServer(ctx, cfg, store, dispatcher, gate, embedIdx, logger)

	logger.Info("codesentry application initialized successfully")
	return &App{
			Store:      store,
			Dispatcher: dispatcher,
			Gate:       gate,
			Cfg:        cfg,
			logger:     logger,
			server:     httpServer,
			scheduler:  dispatcher,
		}, func() {
			dbCleanup()
		}, nil
}

// Start runs the HTTP server; it blocks until Stop is called or the server
// fails.
func (a *App) Start() error {
	return a.server.Start()
}

// Stop drains the job scheduler, letting in-flight ingest tasks finish,
// then gracefully shuts down the HTTP server.
func (a *App) Stop() error {
	a.scheduler.Stop()
	return a.server.Stop()
}
