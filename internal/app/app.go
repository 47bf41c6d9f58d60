package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"urbanvision/internal/config"
	"urbanvision/internal/logger"
	"urbanvision/internal/registry"
	"urbanvision/internal/repository"
	"urbanvision/internal/repository/sqlite"
	"urbanvision/internal/route"
	"urbanvision/internal/service"
	"urbanvision/internal/service/ai"
	"urbanvision/internal/service/ai/opencv"
	"urbanvision/internal/service/storage"
	"urbanvision/internal/service/websocket"
)

type App struct {
	config          *config.Config
	logger          *logger.Logger
	db              *sqlite.DB
	runRepo         repository.RunRepository
	detectionRepo   repository.DetectionRepository
	detectorService *ai.DetectorService
	archiveService  *storage.ArchiveService
	hubService      *websocket.HubService
	manager         *service.Manager
}

// NewLoader picks the detector backend named by cfg.DetectorBackend.
func NewLoader(cfg *config.Config) (ai.Loader, string, error) {
	switch cfg.DetectorBackend {
	case config.BackendOpenCV:
		return opencv.Loader(cfg.ModelPath, cfg.NMSThreshold), cfg.ModelPath, nil
	case config.BackendHTTP:
		return ai.RemoteLoader(cfg.InferenceURL), cfg.InferenceURL, nil
	default:
		return nil, "", fmt.Errorf("unknown detector backend %q", cfg.DetectorBackend)
	}
}

// NewDetectorService builds the lazily loaded detector for cfg.
func NewDetectorService(cfg *config.Config, log *logger.Logger) (*ai.DetectorService, error) {
	loader, name, err := NewLoader(cfg)
	if err != nil {
		return nil, err
	}
	return ai.NewDetectorService(name, loader, log), nil
}

func NewApp(cfg *config.Config) (*App, error) {
	log := logger.NewLogger(cfg)

	reg, err := registry.ForClassSet(cfg.ClassSet)
	if err != nil {
		return nil, err
	}

	detector, err := NewDetectorService(cfg, log)
	if err != nil {
		return nil, err
	}

	a := &App{
		config:          cfg,
		logger:          log,
		detectorService: detector,
		hubService:      websocket.NewHubService(log),
	}

	if cfg.ArchiveEnabled {
		db, err := sqlite.New(cfg.DatabasePath)
		if err != nil {
			return nil, err
		}
		a.db = db
		a.runRepo = sqlite.NewRunRepository(db)
		a.detectionRepo = sqlite.NewDetectionRepository(db)
		a.archiveService = storage.NewArchiveService(cfg, log, a.runRepo, a.detectionRepo)
	}

	a.manager = service.NewManager(reg, detector, a.archiveService, a.hubService, cfg.DisplayMaxWidth, log)

	return a, nil
}

// Run starts the background services and serves HTTP until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	a.probeBackend(ctx)

	if a.config.PreloadModel {
		if err := a.detectorService.Load(); err != nil {
			a.logger.Error("Model preload failed, detection requests will return 503: %v", err)
		}
	}

	if a.archiveService != nil {
		go a.archiveService.Run(ctx)
	}
	go a.hubService.Run(ctx)

	router := route.SetupRoutes(a.manager, a.config, a.logger, a.runRepo, a.detectionRepo)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.config.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.logger.Info("Urban object detection server on http://localhost:%d", a.config.Port)
	a.logger.Info("Detector: %s (%s), class set: %s", a.config.DetectorBackend, a.detectorService.Name(), a.config.ClassSet)
	a.logger.Info("Archive: enabled=%t, images: %s, database: %s", a.config.ArchiveEnabled, a.config.ImageDirectory, a.config.DatabasePath)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.logger.Info("Shutting down server")
		return server.Shutdown(shutdownCtx)
	}
}

// probeBackend logs the health of a remote inference service. Failures are not fatal.
func (a *App) probeBackend(ctx context.Context) {
	if a.config.DetectorBackend != config.BackendHTTP {
		return
	}

	remote, err := ai.NewRemoteDetector(a.config.InferenceURL, &http.Client{Timeout: 5 * time.Second})
	if err != nil {
		a.logger.Warning("Invalid inference URL: %v", err)
		return
	}
	if err := remote.CheckHealth(ctx); err != nil {
		a.logger.Warning("Inference service health check failed: %v", err)
		return
	}
	a.logger.Info("Inference service at %s is healthy", a.config.InferenceURL)
}

// Close flushes pending runs and releases the detector, database and log files.
func (a *App) Close() {
	if a.archiveService != nil {
		a.archiveService.FlushRuns()
	}
	if err := a.detectorService.Close(); err != nil {
		a.logger.Error("Error closing detector: %v", err)
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("Error closing database: %v", err)
		}
	}
	a.logger.Close()
}
