package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/starford/tally/internal/apperr"
	"github.com/starford/tally/internal/models"
	"github.com/starford/tally/internal/syncer"
)

// RunMigrate pushes a companion data file to the remote store once. file
// overrides the configured companion data file when non-empty.
func RunMigrate(ctx context.Context, file string, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger, closeLog := newLogger(cfg.App, os.Stdout)
	defer closeLog()
	slog.SetDefault(logger)

	if file == "" {
		file = cfg.Companion.DataFile
	}
	return Migrate(ctx, file, cfg.Supabase.Client(), logger)
}

// Migrate reads the data file at path, validates it as a snapshot and
// pushes it to dst.
func Migrate(ctx context.Context, path string, dst syncer.Remote, logger *slog.Logger) error {
	if !dst.Available() {
		return fmt.Errorf("migrate: %s: %w", dst.Name(), apperr.ErrUnavailable)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("migrate: read %s: %w", path, err)
	}
	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("migrate: %w: %v", apperr.ErrInvalid, err)
	}
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("migrate: %w: %v", apperr.ErrInvalid, err)
	}
	if snap.IsEmpty() {
		return fmt.Errorf("migrate: %w: %s has no tracker data", apperr.ErrInvalid, path)
	}

	keys := make([]string, 0, len(snap.Keys()))
	for _, k := range snap.Keys() {
		keys = append(keys, k.String())
	}
	logger.Info("migrate: data file loaded",
		slog.String("path", path),
		slog.String("keys", strings.Join(keys, ",")),
		slog.Int("habits", len(snap.Habits)),
		slog.Int("records", len(snap.Records)),
		slog.Int("notes", len(snap.Notes)))

	if err := dst.Push(ctx, snap); err != nil {
		return fmt.Errorf("migrate: push to %s: %w", dst.Name(), err)
	}
	logger.Info("migrate: pushed", slog.String("target", dst.Name()))
	return nil
}
