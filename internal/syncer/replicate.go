package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/tally/internal/apperr"
)

// Status is a point-in-time view of the coordinator.
type Status struct {
	Hydration   Hydration `json:"hydration"`
	Target      string    `json:"target,omitempty"`
	Pending     bool      `json:"pending"`
	Pushes      int       `json:"pushes"`
	Failures    int       `json:"failures"`
	LastPushAt  time.Time `json:"last_push_at,omitzero"`
	LastError   string    `json:"last_error,omitempty"`
	LastErrorAt time.Time `json:"last_error_at,omitzero"`
}

// Status returns the current coordinator status.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.status
	if t := c.target(); t != nil {
		st.Target = t.Name()
	}
	return st
}

// Run is the replication loop. It owns the debounce timer: each
// notification stops and restarts it, and only its expiry triggers a push.
// When ctx ends, a replication that is still pending is pushed once more
// with a fresh bounded context before Run returns.
func (c *Coordinator) Run(ctx context.Context) error {
	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		pending bool
	)
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(c.debounce)
			timerC = timer.C
		} else {
			timer.Reset(c.debounce)
		}
		pending = true
		c.setPending(true)
	}
	cancelTimer := func() {
		if timer != nil {
			timer.Stop()
		}
		pending = false
		c.setPending(false)
	}

	c.logger.Info("sync: replication loop started", slog.Duration("debounce", c.debounce))

	for {
		select {
		case <-ctx.Done():
			wasPending := pending || c.takeNotification()
			cancelTimer()
			if wasPending {
				c.logger.Info("sync: flushing pending replication before exit")
				c.replicate(context.Background())
			}
			c.logger.Info("sync: replication loop stopped")
			return nil

		case <-c.notifyCh:
			if c.target() == nil {
				continue
			}
			schedule()

		case <-timerC:
			pending = false
			c.setPending(false)
			c.replicate(ctx)

		case done := <-c.flushCh:
			if pending || c.takeNotification() {
				cancelTimer()
				c.replicate(ctx)
			}
			close(done)
		}
	}
}

// takeNotification consumes a notification that arrived but was not yet
// selected by the loop. It reports whether a replication is owed.
func (c *Coordinator) takeNotification() bool {
	select {
	case <-c.notifyCh:
		return c.target() != nil
	default:
		return false
	}
}

// Flush pushes a pending replication immediately and waits for it. It
// returns early if ctx ends or the loop is not running.
func (c *Coordinator) Flush(ctx context.Context) {
	done := make(chan struct{})
	select {
	case c.flushCh <- done:
	case <-ctx.Done():
		return
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// replicate pushes the full local snapshot. Failures are logged and
// recorded, never returned.
func (c *Coordinator) replicate(ctx context.Context) {
	target := c.target()
	if target == nil {
		return
	}

	snap, err := c.local.Snapshot()
	if err != nil {
		c.recordFailure(err)
		c.logger.Error("sync: snapshot failed", slog.String("error", err.Error()))
		return
	}

	// Malformed records never reach the remote row.
	if err := snap.Validate(); err != nil {
		err = fmt.Errorf("sync: %w: %v", apperr.ErrInvalid, err)
		c.recordFailure(err)
		c.logger.Error("sync: snapshot rejected", slog.String("error", err.Error()))
		return
	}

	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.pushTimeout)
	defer cancel()

	start := time.Now()
	err = target.Push(pushCtx, snap)
	switch {
	case errors.Is(err, apperr.ErrUnavailable):
		return
	case err != nil:
		c.recordFailure(err)
		c.logger.Warn("sync: push failed",
			slog.String("store", target.Name()),
			slog.String("error", err.Error()))
		return
	}

	c.mu.Lock()
	c.status.Pushes++
	c.status.LastPushAt = time.Now()
	c.mu.Unlock()

	c.logger.Debug("sync: pushed snapshot",
		slog.String("store", target.Name()),
		slog.Int("keys", len(snap.Keys())),
		slog.Duration("took", time.Since(start)))
}

func (c *Coordinator) recordFailure(err error) {
	c.mu.Lock()
	c.status.Failures++
	c.status.LastError = err.Error()
	c.status.LastErrorAt = time.Now()
	c.mu.Unlock()
}

func (c *Coordinator) setPending(p bool) {
	c.mu.Lock()
	c.status.Pending = p
	c.mu.Unlock()
}
