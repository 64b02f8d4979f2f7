// Package tracker implements the habit, note, finance and password stores
// on top of the local key-value store. Every mutation is a read-modify-write
// of one key followed by a Set, which in turn schedules replication.
package tracker

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/starford/tally/internal/localstore"
)

// Service is the domain layer shared by the HTTP API and the MCP server.
type Service struct {
	store localstore.Provider
	now   func() time.Time

	// mu serializes read-modify-write cycles on the store.
	mu sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a tracker service over store.
func NewService(store localstore.Provider, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today returns the current local day at midnight.
func (s *Service) Today() time.Time {
	return startOfDay(s.now())
}

func startOfDay(t time.Time) time.Time {
	t = t.In(time.Local)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.Local)
}

func newID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}

// cleanText trims and NFC-normalizes user supplied text so equal names
// typed on different devices compare equal.
func cleanText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
