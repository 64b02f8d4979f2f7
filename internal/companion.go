package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/tally/internal/companion"
	"github.com/starford/tally/internal/sse"
	"github.com/starford/tally/internal/storage"
)

// RunCompanion serves the data.json document over GET/POST /api/data and
// watches it for external edits until a shutdown signal arrives.
func RunCompanion(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger, closeLog := newLogger(cfg.App, os.Stdout)
	defer closeLog()
	slog.SetDefault(logger)

	doc, err := storage.NewFile(cfg.Companion.DataFile)
	if err != nil {
		return fmt.Errorf("init data file: %w", err)
	}

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	srv := companion.NewServer(doc, companion.WithPublisher(broker), companion.WithLogger(logger))

	httpServer := &http.Server{
		Addr:              cfg.Companion.Address(),
		Handler:           middleware.Recoverer(srv.Handler(broker)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Watch(gCtx)
	})

	g.Go(func() error {
		logger.Info("Starting companion server",
			slog.String("address", cfg.Companion.Address()),
			slog.String("data_file", doc.Path()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("companion server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		waitForShutdown(gCtx, logger)
		shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stop()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("companion shutdown error", slog.String("error", err.Error()))
		}
		cancel()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}
	logger.Info("Companion stopped")
	return nil
}
