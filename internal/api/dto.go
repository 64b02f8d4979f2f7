package api

import (
	"encoding/json"
	"time"

	"github.com/starford/tally/internal/models"
	"github.com/starford/tally/internal/syncer"
	"github.com/starford/tally/internal/tracker"
)

// LoginRequest is the request body for POST /login.
type LoginRequest struct {
	Password string `json:"password" example:"1234" validate:"required"`
}

// LoginResponse carries the session token.
type LoginResponse struct {
	Token string `json:"token" example:"5f0c..." validate:"required"`
}

// HabitRequest is the request body for creating a habit.
type HabitRequest = tracker.HabitInput

// HabitView is a habit with its current and best streaks.
type HabitView struct {
	models.Habit
	Streak     int `json:"streak"`
	BestStreak int `json:"best_streak"`
}

// ToggleRequest selects the day to toggle; empty means today.
type ToggleRequest struct {
	Date string `json:"date" example:"2024-03-15"`
}

// ToggleResponse is the new status of the toggled day ("" when unmarked).
type ToggleResponse struct {
	Key    string        `json:"key" validate:"required"`
	Status models.Status `json:"status"`
}

// NoteRequest is the request body for creating or editing a note.
type NoteRequest struct {
	Title   string `json:"title" example:"Groceries"`
	Content string `json:"content" example:"milk, eggs"`
}

// EntryRequest is the request body for a finance entry.
type EntryRequest = tracker.EntryInput

// FinanceResponse is the ledger with a display-formatted balance.
type FinanceResponse struct {
	Balance   json.Number `json:"balance" swaggertype:"number"`
	Formatted string      `json:"formatted" example:"R$ 1.234,56"`
	Log       []EntryView `json:"log"`
}

// EntryView is a ledger entry with a display-formatted amount.
type EntryView struct {
	ID        string      `json:"id"`
	Amount    json.Number `json:"amount" swaggertype:"number"`
	Desc      string      `json:"desc"`
	Date      time.Time   `json:"date"`
	Formatted string      `json:"formatted" example:"R$ 10,00"`
}

// PasswordRequest is the request body for PUT /password.
type PasswordRequest struct {
	Password string `json:"password" validate:"required"`
	Confirm  string `json:"confirm" validate:"required"`
}

// SyncStatus is the coordinator status returned by /sync endpoints.
type SyncStatus = syncer.Status

func financeResponse(f models.Finance) FinanceResponse {
	out := FinanceResponse{
		Balance:   json.Number(f.Balance.String()),
		Formatted: tracker.FormatMoney(f.Balance),
		Log:       make([]EntryView, len(f.Log)),
	}
	for i, e := range f.Log {
		out.Log[i] = EntryView{
			ID:        e.ID,
			Amount:    json.Number(e.Amount.String()),
			Desc:      e.Desc,
			Date:      e.Date,
			Formatted: tracker.FormatMoney(e.Amount.Abs()),
		}
	}
	return out
}
