// Package internal provides the main application initialization and runtime logic.
package internal

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
	"golang.org/x/sync/errgroup"

	"github.com/starford/tally/internal/api"
	"github.com/starford/tally/internal/localstore"
	"github.com/starford/tally/internal/models"
	"github.com/starford/tally/internal/sse"
	"github.com/starford/tally/internal/syncer"
	"github.com/starford/tally/internal/tracker"
)

const shutdownTimeout = 10 * time.Second

// Run starts the tracker server: it hydrates the local store, serves the
// JSON API and replicates local writes until a shutdown signal arrives.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger, closeLog := newLogger(cfg.App, os.Stdout)
	defer closeLog()
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("version", app.version),
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	local, coord, err := openSync(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer local.Close()

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	// Hydration ran without the hook; from here every write replicates.
	local.SetWriteHook(func(key models.Key) {
		coord.Notify(key)
		if key.Synced() {
			broker.PublishKeyEvent(key.String())
		}
	})

	svc := tracker.NewService(local)
	apiRouter := api.NewRouter(svc, api.NewSessions(local), coord, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", healthOK)
	r.Get("/health/ready", healthOK)

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)

	// Replication loop; flushes any pending push once gCtx ends.
	g.Go(func() error {
		return coord.Run(gCtx)
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		waitForShutdown(gCtx, logger)
		shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stop()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		cancel()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully", slog.Int("pushes", coord.Status().Pushes))
	return nil
}

// openSync opens the local store, builds the coordinator from cfg and
// hydrates. The store's write hook is left unset.
func openSync(ctx context.Context, cfg *Config, logger *slog.Logger) (*localstore.Store, *syncer.Coordinator, error) {
	local, err := localstore.Open(cfg.SQLite.Path, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("init local store: %w", err)
	}

	primary := cfg.Supabase.Client()
	if !primary.Available() {
		logger.Info("Remote store not configured; running local-only")
	}
	opts := append(cfg.Sync.Options(), syncer.WithLogger(logger))
	coord := syncer.New(local, primary, opts...)

	h := coord.Hydrate(ctx)
	logger.Info("Local store ready",
		slog.String("hydrated_from", string(h.Source)),
		slog.Time("remote_updated_at", h.UpdatedAt))
	return local, coord, nil
}

// waitForShutdown blocks until SIGINT/SIGTERM or ctx ends.
func waitForShutdown(ctx context.Context, logger *slog.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, initiating shutdown")
	}
	logger.Info("Shutting down...")
}

func healthOK(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
