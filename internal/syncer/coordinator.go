// Package syncer keeps the local store mirrored to a remote store.
//
// The Coordinator has two jobs. Hydrate runs once at startup and pulls the
// remote snapshot into the local store, falling back to the legacy companion
// service and finally to whatever is already stored locally. Replication
// runs for the lifetime of the process: every local write calls Notify, and
// after a quiet period (trailing-edge debounce) the full local snapshot is
// pushed.
//
// Concurrency model: a single event loop (Run) owns the debounce timer and
// performs pushes one at a time. Notify never blocks; notifications that
// arrive while a push is in flight collapse into one follow-up replication.
// No remote failure is ever returned to callers of the local store.
package syncer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/tally/internal/models"
)

// DefaultDebounce is the quiet period before a replication fires.
const DefaultDebounce = 500 * time.Millisecond

// Local is the local-store surface the coordinator needs.
type Local interface {
	Snapshot() (models.Snapshot, error)
	Apply(models.Snapshot) error
}

// Remote is a best-effort mirror of the record store.
type Remote interface {
	Name() string
	Available() bool
	Push(ctx context.Context, snap models.Snapshot) error
	Pull(ctx context.Context) (*models.RemoteRecord, error)
}

// Coordinator reconciles the local store with remote stores.
type Coordinator struct {
	local    Local
	primary  Remote
	fallback Remote

	debounce            time.Duration
	pullTimeout         time.Duration
	pushTimeout         time.Duration
	replicateToFallback bool
	logger              *slog.Logger

	notifyCh chan struct{}
	flushCh  chan chan struct{}

	mu     sync.Mutex
	status Status
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithFallback sets the legacy store tried when the primary yields no data.
func WithFallback(r Remote) Option {
	return func(c *Coordinator) { c.fallback = r }
}

// WithFallbackReplication sends replications to the fallback while the
// primary is not configured.
func WithFallbackReplication() Option {
	return func(c *Coordinator) { c.replicateToFallback = true }
}

// WithDebounce sets the replication quiet period.
func WithDebounce(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.debounce = d
		}
	}
}

// WithPullTimeout bounds each hydration attempt.
func WithPullTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.pullTimeout = d
		}
	}
}

// WithPushTimeout bounds each push.
func WithPushTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.pushTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Coordinator. primary may be unconfigured; it is then never
// called.
func New(local Local, primary Remote, opts ...Option) *Coordinator {
	c := &Coordinator{
		local:       local,
		primary:     primary,
		debounce:    DefaultDebounce,
		pullTimeout: 10 * time.Second,
		pushTimeout: 15 * time.Second,
		logger:      slog.Default(),
		notifyCh:    make(chan struct{}, 1),
		flushCh:     make(chan chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.status.Hydration.Source = SourceNone
	return c
}

// Notify records that key changed locally. It never blocks and may be used
// directly as the local store's write hook.
func (c *Coordinator) Notify(key models.Key) {
	if !key.Synced() {
		return
	}
	select {
	case c.notifyCh <- struct{}{}:
	default:
		// A notification is already queued; it carries this one.
	}
}

// target returns the store replications go to, or nil when none is usable.
func (c *Coordinator) target() Remote {
	if c.primary != nil && c.primary.Available() {
		return c.primary
	}
	if c.replicateToFallback && c.fallback != nil && c.fallback.Available() {
		return c.fallback
	}
	return nil
}
