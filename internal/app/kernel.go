// Package app assembles the full service graph and runs the kernel. Both
// the dedicated kernel binary and the CLI serve command go through it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"github.com/SkybrushThriftwood/processIQ/internal/adapters/duckdb"
	"github.com/SkybrushThriftwood/processIQ/internal/adapters/providers"
	"github.com/SkybrushThriftwood/processIQ/internal/config"
	"github.com/SkybrushThriftwood/processIQ/internal/core/domain"
	"github.com/SkybrushThriftwood/processIQ/internal/core/ports"
	"github.com/SkybrushThriftwood/processIQ/internal/core/services"
	"github.com/SkybrushThriftwood/processIQ/pkg/kernel"
)

const shutdownGrace = 10 * time.Second

// RunKernel wires storage, the model gateway and the analysis services
// together and serves the HTTP API until ctx is cancelled.
func RunKernel(ctx context.Context, logger *slog.Logger, settings *config.Settings) error {
	var (
		checkpoints  ports.CheckpointStore
		history      ports.RunHistoryRepository
		memories     ports.MemoryRepository
		settingsRepo ports.SettingsRepository
	)
	if settings.PersistenceEnabled {
		repo, err := duckdb.NewRepository(settings.DBPath)
		if err != nil {
			return fmt.Errorf("init repository: %w", err)
		}
		defer repo.Close()
		checkpoints, history, memories, settingsRepo = repo, repo, repo, repo
		logger.Info("persistence enabled", "path", settings.DBPath)
	} else {
		logger.Info("persistence disabled, state will not survive restarts")
		checkpoints = services.NewMemoryCheckpointStore()
		history = services.NewMemoryRunHistory()
		memories = services.NewMemoryAnalysisMemories()
		settingsRepo = services.NewMemorySettings()
	}

	secretKey, err := config.NewSecretKey()
	if err != nil {
		return fmt.Errorf("init secret key: %w", err)
	}
	settingsStore, err := config.NewSettingsStore(logger, settingsRepo, secretKey, &settings.App)
	if err != nil {
		return fmt.Errorf("init settings store: %w", err)
	}
	cfg := settingsStore.GetConfig()

	presets, err := config.LoadPresets(settings.PresetsFile)
	if err != nil {
		return fmt.Errorf("load model presets: %w", err)
	}

	gateway := providers.NewGateway(logger, cfg, presets, settings.RequestTimeout)
	settingsStore.OnChange(func(updated *domain.AppConfig) {
		gateway.ApplyConfig(updated)
		logger.Info("model gateway hot-reloaded from settings change")
	})

	scorer, err := services.NewConfidenceScorer(logger, services.DefaultScorerWeights, cfg.Analysis.ConfidenceThreshold)
	if err != nil {
		return fmt.Errorf("init confidence scorer: %w", err)
	}
	engine := services.NewMetricsEngine(logger)
	roi := services.NewROICalculator(logger)
	enricher := services.NewPostExtractionEnricher(logger, gateway, engine, cfg.Analysis)

	runs := services.NewRunStore(0)
	events := services.NewRunEvents(logger)
	tracked := services.NewTrackedCheckpoints(checkpoints, runs, events)

	orchestrator := services.NewOrchestrator(logger, gateway, scorer, engine, tracked, cfg.Analysis)
	analyses := services.NewAnalysisService(logger, orchestrator, scorer, gateway, tracked, history, memories)

	scheduler := services.NewRunScheduler(logger, analyses, runs, events, settings.MaxConcurrentRuns)
	scheduler.Start(ctx)

	apiServer, err := kernel.NewServer(logger, scheduler, runs, events, analyses, enricher, engine,
		roi, scorer, settingsStore, tracked, history)
	if err != nil {
		return fmt.Errorf("init api server: %w", err)
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	httpServer := &http.Server{
		Addr:    settings.HTTPAddr,
		Handler: c.Handler(apiServer.Handler()),
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting api server", "addr", settings.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown api server: %w", err)
		}
		// Let in-flight analyses checkpoint before the process exits.
		return scheduler.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
