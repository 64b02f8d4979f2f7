// Package api implements the tally REST API using chi.
package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/starford/tally/internal/localstore"
	"github.com/starford/tally/internal/models"
)

// Sessions issues and checks the single session token. The token lives in
// the local store under the auth key, which is never replicated.
type Sessions struct {
	store localstore.Provider
}

// NewSessions creates a session keeper over store.
func NewSessions(store localstore.Provider) *Sessions {
	return &Sessions{store: store}
}

// Issue starts a new session, replacing any previous one.
func (s *Sessions) Issue() (string, error) {
	token := uuid.NewString()
	if err := s.store.Set(models.KeyAuth, token); err != nil {
		return "", err
	}
	return token, nil
}

// Valid reports whether token is the current session token.
func (s *Sessions) Valid(token string) bool {
	current := localstore.Get(s.store, models.KeyAuth, "")
	if current == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(current)) == 1
}

// Revoke ends the current session.
func (s *Sessions) Revoke() error {
	return s.store.Delete(models.KeyAuth)
}

// AuthMiddleware rejects requests that do not carry the current session
// token as "Authorization: Bearer <token>".
func AuthMiddleware(sessions *Sessions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") || !sessions.Valid(strings.TrimPrefix(auth, "Bearer ")) {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
