// Package companion is the small persistence service that keeps the whole
// record store in one JSON document. It is the legacy fallback source during
// hydration and accepts full-document writes.
package companion

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/starford/tally/internal/checksum"
	"github.com/starford/tally/internal/sse"
	"github.com/starford/tally/internal/storage"
)

const maxDocumentBytes = 10 << 20

// Publisher receives change notifications for connected clients.
type Publisher interface {
	Publish(event sse.Event)
}

// Server serves GET and POST /api/data over a storage.Provider.
type Server struct {
	doc    storage.Provider
	pub    Publisher
	logger *slog.Logger

	// mu orders writes and guards lastSum, the checksum of the document as
	// last written or observed.
	mu      sync.Mutex
	lastSum string
}

// Option configures a Server.
type Option func(*Server)

// WithPublisher sends data.updated events to p.
func WithPublisher(p Publisher) Option {
	return func(s *Server) { s.pub = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a companion server over doc.
func NewServer(doc storage.Provider, opts ...Option) *Server {
	s := &Server{doc: doc, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if data, err := doc.Read(); err == nil {
		s.lastSum = checksum.Sum(data)
	}
	return s
}

// Handler returns the HTTP routes. events, if non-nil, is mounted at
// GET /api/events.
func (s *Server) Handler(events http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(corsNoCache)
	r.Get("/api/data", s.getData)
	r.Post("/api/data", s.postData)
	if events != nil {
		r.Get("/api/events", events.ServeHTTP)
	}
	return r
}

// corsNoCache opens the service to any origin and disables caching.
// Preflight requests end here with 204.
func corsNoCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// getData returns the stored document, or {} when it is missing or not
// valid JSON.
func (s *Server) getData(w http.ResponseWriter, _ *http.Request) {
	data, err := s.doc.Read()
	switch {
	case errors.Is(err, os.ErrNotExist):
		data = []byte("{}")
	case err != nil:
		s.logger.Error("companion: read failed", slog.String("error", err.Error()))
		data = []byte("{}")
	case !json.Valid(data):
		s.logger.Error("companion: stored document is not valid JSON", slog.String("path", s.doc.Path()))
		data = []byte("{}")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// postData replaces the stored document with the request body.
func (s *Server) postData(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDocumentBytes))
	if err != nil || !json.Valid(body) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON"})
		return
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON"})
		return
	}

	s.mu.Lock()
	err = s.doc.Write(pretty.Bytes())
	sum := checksum.Sum(pretty.Bytes())
	if err == nil {
		s.lastSum = sum
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("companion: write failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "write failed"})
		return
	}
	s.logger.Debug("companion: document replaced", slog.Int("bytes", pretty.Len()))
	s.publish(sum, "api")
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) publish(sum, origin string) {
	if s.pub == nil {
		return
	}
	s.pub.Publish(sse.Event{
		Type: sse.TypeDataUpdated,
		Data: map[string]string{"checksum": sum, "origin": origin},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("companion: json encode failed", slog.String("error", err.Error()))
	}
}
