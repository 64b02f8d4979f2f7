package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/tally/internal/apperr"
	"github.com/starford/tally/internal/models"
	"github.com/starford/tally/internal/syncer"
	"github.com/starford/tally/internal/tracker"
)

// SyncController is the part of the sync coordinator exposed over HTTP.
type SyncController interface {
	Status() syncer.Status
	Flush(ctx context.Context)
}

const flushTimeout = 15 * time.Second

// Handler holds API route handlers.
type Handler struct {
	svc      *tracker.Service
	sessions *Sessions
	sync     SyncController
}

// NewHandler creates a new Handler. sync may be nil.
func NewHandler(svc *tracker.Service, sessions *Sessions, sync SyncController) *Handler {
	return &Handler{svc: svc, sessions: sessions, sync: sync}
}

// Login handles POST /api/login.
//
//	@Summary		Exchange the shared password for a session token
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		LoginRequest	true	"Password"
//	@Success		200		{object}	LoginResponse
//	@Failure		401		{object}	errResponse
//	@Router			/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !h.svc.CheckPassword(r.Context(), req.Password) {
		writeJSON(w, http.StatusUnauthorized, errorBody("incorrect password"))
		return
	}
	token, err := h.sessions.Issue()
	if err != nil {
		writeError(w, "login", err)
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{Token: token})
}

// Logout handles POST /api/logout.
func (h *Handler) Logout(w http.ResponseWriter, _ *http.Request) {
	if err := h.sessions.Revoke(); err != nil {
		writeError(w, "logout", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListHabits handles GET /api/habits.
//
//	@Summary		List habits with streaks
//	@Tags			habits
//	@Produce		json
//	@Success		200	{array}	HabitView
//	@Security		BearerAuth
//	@Router			/habits [get]
func (h *Handler) ListHabits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	today := h.svc.Today()
	habits := h.svc.Habits(ctx)
	out := make([]HabitView, len(habits))
	for i, hb := range habits {
		out[i] = HabitView{
			Habit:      hb,
			Streak:     h.svc.Streak(ctx, hb.ID, today),
			BestStreak: h.svc.BestStreak(ctx, hb.ID),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateHabit handles POST /api/habits.
//
//	@Summary		Create a habit
//	@Tags			habits
//	@Accept			json
//	@Produce		json
//	@Param			body	body		HabitRequest	true	"Habit"
//	@Success		201		{object}	models.Habit
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/habits [post]
func (h *Handler) CreateHabit(w http.ResponseWriter, r *http.Request) {
	var req HabitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	habit, err := h.svc.AddHabit(r.Context(), req)
	if err != nil {
		writeError(w, "create habit", err)
		return
	}
	writeJSON(w, http.StatusCreated, habit)
}

// DeleteHabit handles DELETE /api/habits/{id}.
func (h *Handler) DeleteHabit(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteHabit(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, "delete habit", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ToggleHabit handles POST /api/habits/{id}/toggle.
//
//	@Summary		Cycle the status of a habit on a day
//	@Tags			habits
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Habit ID"
//	@Param			body	body		ToggleRequest	false	"Day, defaults to today"
//	@Success		200		{object}	ToggleResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/habits/{id}/toggle [post]
func (h *Handler) ToggleHabit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req ToggleRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	day := h.svc.Today()
	if req.Date != "" {
		d, err := time.ParseInLocation(models.DayLayout, req.Date, time.Local)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("date must be YYYY-MM-DD"))
			return
		}
		day = d
	}
	st, err := h.svc.ToggleStatus(r.Context(), id, day)
	if err != nil {
		writeError(w, "toggle habit", err)
		return
	}
	writeJSON(w, http.StatusOK, ToggleResponse{Key: models.RecordKey(id, day), Status: st})
}

// ListRecords handles GET /api/records.
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Records(r.Context()))
}

// ListNotes handles GET /api/notes.
//
//	@Summary		List notes, most recently changed first
//	@Tags			notes
//	@Produce		json
//	@Success		200	{array}	models.Note
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Notes(r.Context()))
}

// CreateNote handles POST /api/notes.
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req NoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	note, err := h.svc.SaveNote(r.Context(), tracker.NoteInput{Title: req.Title, Content: req.Content})
	if err != nil {
		writeError(w, "create note", err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// UpdateNote handles PUT /api/notes/{id}.
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	var req NoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	note, err := h.svc.SaveNote(r.Context(), tracker.NoteInput{
		ID:      chi.URLParam(r, "id"),
		Title:   req.Title,
		Content: req.Content,
	})
	if err != nil {
		writeError(w, "update note", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// DeleteNote handles DELETE /api/notes/{id}.
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteNote(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, "delete note", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetFinance handles GET /api/finance.
//
//	@Summary		Get the balance and ledger
//	@Tags			finance
//	@Produce		json
//	@Success		200	{object}	FinanceResponse
//	@Security		BearerAuth
//	@Router			/finance [get]
func (h *Handler) GetFinance(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, financeResponse(h.svc.Finance(r.Context())))
}

// CreateEntry handles POST /api/finance/entries.
func (h *Handler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	var req EntryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if _, err := h.svc.AddEntry(r.Context(), req); err != nil {
		writeError(w, "create entry", err)
		return
	}
	writeJSON(w, http.StatusCreated, financeResponse(h.svc.Finance(r.Context())))
}

// DeleteEntry handles DELETE /api/finance/entries/{id}.
func (h *Handler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteEntry(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, "delete entry", err)
		return
	}
	writeJSON(w, http.StatusOK, financeResponse(h.svc.Finance(r.Context())))
}

// ChangePassword handles PUT /api/password.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req PasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.SetPassword(r.Context(), req.Password, req.Confirm); err != nil {
		writeError(w, "change password", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Dashboard handles GET /api/dashboard.
//
//	@Summary		Win/fail statistics for a period
//	@Tags			stats
//	@Produce		json
//	@Param			period	query		string	false	"Window"	Enums(week, month, all)
//	@Success		200		{object}	tracker.Dashboard
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/dashboard [get]
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	p, err := tracker.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		writeError(w, "dashboard", err)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Dashboard(r.Context(), p, h.svc.Today()))
}

// Progress handles GET /api/progress.
func (h *Handler) Progress(w http.ResponseWriter, r *http.Request) {
	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 366 {
			writeJSON(w, http.StatusBadRequest, errorBody("days must be between 1 and 366"))
			return
		}
		days = n
	}
	writeJSON(w, http.StatusOK, h.svc.Progress(r.Context(), h.svc.Today(), days))
}

// SyncStatus handles GET /api/sync/status.
//
//	@Summary		Replication status
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	SyncStatus
//	@Failure		503	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sync/status [get]
func (h *Handler) SyncStatus(w http.ResponseWriter, _ *http.Request) {
	if h.sync == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody(apperr.ErrUnavailable.Error()))
		return
	}
	writeJSON(w, http.StatusOK, h.sync.Status())
}

// SyncFlush handles POST /api/sync/flush. It pushes a pending replication
// now and returns the resulting status.
func (h *Handler) SyncFlush(w http.ResponseWriter, r *http.Request) {
	if h.sync == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody(apperr.ErrUnavailable.Error()))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), flushTimeout)
	defer cancel()
	h.sync.Flush(ctx)
	st := h.sync.Status()
	slog.Debug("api: sync flushed", slog.Int("pushes", st.Pushes), slog.Int("failures", st.Failures))
	writeJSON(w, http.StatusOK, st)
}
