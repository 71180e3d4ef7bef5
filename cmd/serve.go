package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Shivanand-hulikatti/event-reg-form/internal/apiclient"
	"github.com/Shivanand-hulikatti/event-reg-form/internal/config"
	"github.com/Shivanand-hulikatti/event-reg-form/internal/database"
	"github.com/Shivanand-hulikatti/event-reg-form/internal/handler"
	"github.com/Shivanand-hulikatti/event-reg-form/internal/logging"
	"github.com/Shivanand-hulikatti/event-reg-form/internal/repository"
	"github.com/Shivanand-hulikatti/event-reg-form/internal/service"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the registration form HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// ── 1. Configuration and logging ─────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	// ── 2. Session store ─────────────────────────────────────────────────
	var sessions service.SessionStore
	switch cfg.SessionStore {
	case config.StorePostgres:
		pool, err := database.NewPool(ctx, cfg.Database, logger)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer pool.Close()
		if err := database.EnsureSchema(ctx, pool); err != nil {
			return err
		}
		logger.Info("connected to PostgreSQL", zap.String("host", cfg.Database.Host))

		repo := repository.NewPostgresSessionRepository(pool, cfg.SessionTTL)
		sweepCtx, stopSweep := context.WithCancel(ctx)
		defer stopSweep()
		go sweepExpired(sweepCtx, repo, max(cfg.SessionTTL/2, time.Minute), logger)
		sessions = repo
	default:
		sessions = repository.NewMemorySessionRepository(cfg.SessionTTL)
		logger.Info("using in-memory session store", zap.Duration("ttl", cfg.SessionTTL))
	}

	// ── 3. Wire up layers ────────────────────────────────────────────────
	api := apiclient.New(cfg.APIBaseURL, cfg.APITimeout, logger)
	formSvc := service.NewRegistrationService(api, sessions, logger)
	formHandler := handler.NewFormHandler(formSvc, logger)

	// ── 4. Build the router ──────────────────────────────────────────────
	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(handler.Logger(logger))  // structured access log
	r.Use(handler.CORS)

	r.Get("/health", handler.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())
	r.Get(handler.MaskPattern, handler.Mask)
	r.Route("/inscricao", formHandler.Routes)

	// ── 5. Start server with graceful shutdown ───────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.String("api_base_url", cfg.APIBaseURL),
			zap.String("session_store", cfg.SessionStore),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Block until SIGINT or SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-quit:
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// sweepExpired deletes expired sessions from PostgreSQL every interval
// until ctx is cancelled.
func sweepExpired(ctx context.Context, repo *repository.PostgresSessionRepository, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := repo.DeleteExpired(ctx)
			if err != nil {
				logger.Warn("delete expired sessions", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Debug("deleted expired sessions", zap.Int64("count", n))
			}
		}
	}
}
