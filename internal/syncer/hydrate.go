package syncer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/starford/tally/internal/apperr"
)

// Source names where hydration data came from.
type Source string

const (
	SourceNone   Source = ""
	SourceRemote Source = "remote"
	SourceLegacy Source = "legacy"
	SourceLocal  Source = "local"
)

// Hydration is the outcome of Hydrate.
type Hydration struct {
	Source    Source    `json:"source"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Hydrate populates the local store from the primary store, then the
// fallback, before the application becomes usable. It never fails: when
// neither store yields data the local contents are used as they are.
//
// Not-found and failure are treated alike for fallback purposes. When the
// primary has data it wins over the fallback and over local contents.
func (c *Coordinator) Hydrate(ctx context.Context) Hydration {
	h := Hydration{Source: SourceLocal}
	for _, r := range []struct {
		remote Remote
		source Source
	}{
		{c.primary, SourceRemote},
		{c.fallback, SourceLegacy},
	} {
		if updated, ok := c.hydrateFrom(ctx, r.remote); ok {
			h = Hydration{Source: r.source, UpdatedAt: updated}
			break
		}
	}

	c.mu.Lock()
	c.status.Hydration = h
	c.mu.Unlock()

	c.logger.Info("sync: hydrated", slog.String("source", string(h.Source)))
	return h
}

func (c *Coordinator) hydrateFrom(ctx context.Context, r Remote) (time.Time, bool) {
	if r == nil || !r.Available() {
		return time.Time{}, false
	}
	name := r.Name()

	pullCtx, cancel := context.WithTimeout(ctx, c.pullTimeout)
	defer cancel()

	rec, err := r.Pull(pullCtx)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		c.logger.Info("sync: no remote data yet", slog.String("store", name))
		return time.Time{}, false
	case errors.Is(err, apperr.ErrUnavailable):
		return time.Time{}, false
	case err != nil:
		c.logger.Warn("sync: pull failed", slog.String("store", name), slog.String("error", err.Error()))
		return time.Time{}, false
	case rec == nil || rec.Data.IsEmpty():
		c.logger.Info("sync: remote record is empty", slog.String("store", name))
		return time.Time{}, false
	}

	if err := c.local.Apply(rec.Data); err != nil {
		c.logger.Error("sync: apply pulled snapshot failed", slog.String("store", name), slog.String("error", err.Error()))
		return time.Time{}, false
	}
	c.logger.Info("sync: loaded remote data",
		slog.String("store", name),
		slog.Int("keys", len(rec.Data.Keys())))
	return rec.UpdatedAt, true
}
