package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/tally/internal/tracker"
)

// NewRouter creates a chi router with all API routes mounted.
// Login and logout are public; everything else requires the session token.
// sync and sseHandler may be nil; the SSE handler is mounted at GET /events
// inside the auth group.
func NewRouter(svc *tracker.Service, sessions *Sessions, sync SyncController, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, sessions, sync)

	r := chi.NewRouter()
	r.Post("/login", h.Login)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(sessions))

		r.Post("/logout", h.Logout)

		r.Get("/habits", h.ListHabits)
		r.Post("/habits", h.CreateHabit)
		r.Delete("/habits/{id}", h.DeleteHabit)
		r.Post("/habits/{id}/toggle", h.ToggleHabit)
		r.Get("/records", h.ListRecords)

		r.Get("/notes", h.ListNotes)
		r.Post("/notes", h.CreateNote)
		r.Put("/notes/{id}", h.UpdateNote)
		r.Delete("/notes/{id}", h.DeleteNote)

		r.Get("/finance", h.GetFinance)
		r.Post("/finance/entries", h.CreateEntry)
		r.Delete("/finance/entries/{id}", h.DeleteEntry)

		r.Put("/password", h.ChangePassword)

		r.Get("/dashboard", h.Dashboard)
		r.Get("/progress", h.Progress)

		r.Get("/sync/status", h.SyncStatus)
		r.Post("/sync/flush", h.SyncFlush)

		if sseHandler != nil {
			r.Get("/events", sseHandler.ServeHTTP)
		}
	})

	return r
}
