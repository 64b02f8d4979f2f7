package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/starford/tally/internal/mcpserver"
	"github.com/starford/tally/internal/tracker"
)

// RunMCP serves the tracker as an MCP server over stdio. Writes made by
// tools replicate like writes from the HTTP API; a pending replication is
// flushed when stdin closes.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// stdout carries the protocol; logs go to stderr.
	logger, closeLog := newLogger(cfg.App, os.Stderr)
	defer closeLog()
	slog.SetDefault(logger)

	local, coord, err := openSync(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer local.Close()
	local.SetWriteHook(coord.Notify)

	srv := mcpserver.New(tracker.NewService(local), app.version)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return coord.Run(gCtx)
	})

	g.Go(func() error {
		defer cancel()
		logger.Info("mcp: serving on stdio")
		if err := srv.ServeStdio(gCtx); err != nil && gCtx.Err() == nil {
			return fmt.Errorf("mcp: %w", err)
		}
		return nil
	})

	return g.Wait()
}
