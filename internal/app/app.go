package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vadim/postpilot/internal/config"
	httpcontroller "github.com/vadim/postpilot/internal/controller/http"
	"github.com/vadim/postpilot/internal/database"
	"github.com/vadim/postpilot/internal/domain/automation/dao"
	"github.com/vadim/postpilot/internal/domain/automation/entity"
	"github.com/vadim/postpilot/internal/domain/automation/policy"
	"github.com/vadim/postpilot/internal/domain/automation/ratelimit"
	"github.com/vadim/postpilot/internal/domain/automation/scheduler"
	"github.com/vadim/postpilot/internal/domain/automation/service"
	"github.com/vadim/postpilot/internal/domain/automation/session"
	"github.com/vadim/postpilot/internal/events"
	"github.com/vadim/postpilot/internal/health"
	"github.com/vadim/postpilot/internal/httpx/upstream/profiles"
	"github.com/vadim/postpilot/internal/httpx/upstream/publishworker"
	"github.com/vadim/postpilot/internal/retry"
	"github.com/vadim/postpilot/internal/storage"
)

// App is the main application container
type App struct {
	cfg        config.Config
	httpServer *http.Server
	router     *chi.Mux
	logger     *slog.Logger

	pool *pgxpool.Pool

	orchestrator *policy.Orchestrator
	scheduler    *scheduler.Scheduler
	service      *service.Service
	mediaStore   *storage.MediaStore
}

// NewApp creates and initializes the application
func NewApp(ctx context.Context, cfg config.Config) (*App, error) {
	// Initialize logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Initialize router with middleware
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.Timeout(30 * time.Second))

	app := &App{
		cfg:    cfg,
		router: r,
		logger: logger,
	}

	// Initialize infrastructure
	if err := app.initInfrastructure(ctx); err != nil {
		return nil, fmt.Errorf("initializing infrastructure: %w", err)
	}

	// Initialize domain layers
	if err := app.initDomains(ctx); err != nil {
		return nil, fmt.Errorf("initializing domains: %w", err)
	}

	// Register routes
	app.registerRoutes()

	// Initialize HTTP server
	app.httpServer = &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      app.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return app, nil
}

// initInfrastructure initializes infrastructure components (DB, media store)
func (a *App) initInfrastructure(ctx context.Context) error {
	pool, err := database.NewPostgresPool(ctx, a.cfg.Database.PostgresDSN, database.PoolConfig{
		MaxConns:     int32(a.cfg.Database.MaxConns),
		MinConns:     int32(a.cfg.Database.MinConns),
		ConnLifetime: a.cfg.Database.ConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	a.pool = pool

	return nil
}

// initDomains initializes domain layers (DAO, Service, Policy)
func (a *App) initDomains(ctx context.Context) error {
	orchCfg := a.cfg.Orchestrator

	mediaStore, err := storage.NewMediaStore(storage.S3Config{
		Endpoint:        a.cfg.S3.Endpoint,
		AccessKeyID:     a.cfg.S3.AccessKeyID,
		SecretAccessKey: a.cfg.S3.SecretAccessKey,
		Bucket:          a.cfg.S3.Bucket,
		Region:          a.cfg.S3.Region,
		CacheDir:        a.cfg.S3.CacheDir,
	})
	if err != nil {
		return fmt.Errorf("initializing media store: %w", err)
	}
	a.mediaStore = mediaStore

	profileClient := profiles.New(
		profiles.WithBaseURL(a.cfg.ProfileProvider.BaseURL),
		profiles.WithAPIToken(a.cfg.ProfileProvider.APIToken),
	)
	workerClient := publishworker.New(
		publishworker.WithBaseURL(a.cfg.Publisher.BaseURL),
	)

	monitor := health.NewMonitor(orchCfg.FailureThreshold)
	ring := events.NewRing(orchCfg.EventBufferSize)
	retryPolicy := retry.Policy{
		MaxAttempts:   orchCfg.RetryAttempts,
		BaseDelay:     orchCfg.RetryBaseDelay,
		BackoffFactor: orchCfg.BackoffFactor,
	}

	sessions := session.NewManager(
		&profileSessionAdapter{client: profileClient},
		monitor,
		retryPolicy,
		session.Config{
			MaxConcurrent:  orchCfg.MaxConcurrentSessions,
			AcquireTimeout: orchCfg.AcquireTimeout,
			MaxLifetime:    orchCfg.SessionMaxLifetime,
		},
		a.logger,
	)

	accountRepo := dao.NewAccountPostgres(a.pool)
	postRepo := dao.NewPostPostgres(a.pool)
	svc := service.New(accountRepo, postRepo)
	a.service = svc

	a.orchestrator = policy.New(
		svc,
		ratelimit.New(),
		sessions,
		&publishWorkerAdapter{client: workerClient},
		mediaStore,
		&profileProvisionerAdapter{client: profileClient},
		monitor,
		ring,
		policy.Config{
			MaxAttempts:       orchCfg.MaxAttempts,
			PublishingTimeout: orchCfg.PublishingTimeout,
			PublishRetry:      retryPolicy,
			Defaults: policy.Defaults{
				MaxPostsPerDay: orchCfg.DefaultMaxPostsPerDay,
				MinDelay:       orchCfg.DefaultMinDelay,
				MaxDelay:       orchCfg.DefaultMaxDelay,
				WorkingHours: entity.WorkingHours{
					StartHour: orchCfg.DefaultStartHour,
					EndHour:   orchCfg.DefaultEndHour,
					Timezone:  orchCfg.DefaultTimezone,
				},
			},
		},
		a.logger,
	)

	a.scheduler = scheduler.New(a.orchestrator, orchCfg.TickInterval, a.logger)

	return nil
}

// registerRoutes registers all HTTP routes
func (a *App) registerRoutes() {
	// Health check
	a.router.Get("/healthz", a.healthHandler)
	a.router.Get("/readyz", a.readyHandler)

	// Swagger UI documentation
	swaggerHandler := httpcontroller.NewSwaggerHandler("PostPilot Automation API", OpenAPISpec)
	swaggerHandler.RegisterRoutes(a.router)

	// API v1
	a.router.Route("/api/v1", func(r chi.Router) {
		orchHandler := httpcontroller.NewOrchestratorHandler(a.orchestrator, a.scheduler)
		orchHandler.RegisterRoutes(r)

		accHandler := httpcontroller.NewAccountHandler(a.service)
		accHandler.RegisterRoutes(r)

		mediaHandler := httpcontroller.NewMediaHandler(&mediaStoreAdapter{store: a.mediaStore})
		mediaHandler.RegisterRoutes(r)
	})
}

// healthHandler handles health check requests
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// readyHandler handles readiness check requests
func (a *App) readyHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := a.pool.Ping(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"not ready"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

// Run starts the application and blocks until shutdown signal
func (a *App) Run(ctx context.Context) error {
	a.scheduler.Start(ctx)

	// Channel to receive errors from server
	errCh := make(chan error, 1)

	// Start HTTP server in goroutine
	go func() {
		a.logger.Info("starting HTTP server", "addr", a.cfg.Server.Address())
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		a.logger.Info("context cancelled")
	}

	// Graceful shutdown
	return a.Shutdown(context.Background())
}

// Shutdown gracefully shuts down the application
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down...")

	// Stop dequeuing first, then release sessions and requeue in-flight posts.
	a.scheduler.Stop()
	if err := a.orchestrator.Stop(ctx); err != nil && !errors.Is(err, policy.ErrNotRunning) {
		a.logger.Error("orchestrator shutdown failed", "error", err)
	}

	// Shutdown HTTP server with timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down HTTP server: %w", err)
	}

	a.pool.Close()

	a.logger.Info("shutdown complete")
	return nil
}

// profileSessionAdapter adapts profiles.Client to session.Provider
type profileSessionAdapter struct {
	client *profiles.Client
}

func (a *profileSessionAdapter) StartSession(ctx context.Context, profileRef string) (string, string, error) {
	out, err := a.client.StartSession(ctx, profileRef)
	if err != nil {
		return "", "", err
	}
	return out.Endpoint, out.SessionID, nil
}

func (a *profileSessionAdapter) StopSession(ctx context.Context, sessionID string) error {
	return a.client.StopSession(ctx, sessionID)
}

// profileProvisionerAdapter adapts profiles.Client to policy.ProfileProvisioner
type profileProvisionerAdapter struct {
	client *profiles.Client
}

func (a *profileProvisionerAdapter) CreateProfile(ctx context.Context, name string) (string, error) {
	out, err := a.client.CreateProfile(ctx, profiles.CreateProfileInput{Name: name})
	if err != nil {
		return "", err
	}
	return out.ProfileID, nil
}

// mediaStoreAdapter adapts storage.MediaStore to httpcontroller.MediaUploader
type mediaStoreAdapter struct {
	store *storage.MediaStore
}

func (a *mediaStoreAdapter) Store(ctx context.Context, in httpcontroller.MediaUploadInput) (string, error) {
	return a.store.Store(ctx, storage.StoreInput{
		Reader:      in.Reader,
		ContentType: in.ContentType,
		Size:        in.Size,
		Filename:    in.Filename,
	})
}

// publishWorkerAdapter adapts publishworker.Client to policy.Publisher,
// translating the worker's outcome sentinels into the policy's.
type publishWorkerAdapter struct {
	client *publishworker.Client
}

func (a *publishWorkerAdapter) Publish(ctx context.Context, in policy.PublishInput) (*policy.PublishOutput, error) {
	out, err := a.client.Publish(ctx, publishworker.PublishInput{
		Endpoint:         in.Endpoint,
		MediaPath:        in.MediaPath,
		Caption:          in.Caption,
		IdempotencyToken: in.IdempotencyToken,
	})

	var mapped *policy.PublishOutput
	if out != nil {
		mapped = &policy.PublishOutput{RemoteID: out.RemoteID}
	}

	switch {
	case err == nil:
		return mapped, nil
	case errors.Is(err, publishworker.ErrAlreadyPublished):
		return mapped, policy.ErrAlreadyPublished
	case errors.Is(err, publishworker.ErrAccountBanned):
		return nil, fmt.Errorf("%w: %v", policy.ErrAccountBanned, err)
	case errors.Is(err, publishworker.ErrValidation):
		return nil, fmt.Errorf("%w: %v", policy.ErrPublishValidation, err)
	default:
		return nil, err
	}
}
