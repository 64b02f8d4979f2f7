package tracker

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/tally/internal/apperr"
	"github.com/starford/tally/internal/localstore"
	"github.com/starford/tally/internal/models"
)

const (
	defaultIcon  = "🏋️"
	defaultColor = "#e6002a"
)

// HabitInput is the payload for AddHabit.
type HabitInput struct {
	Name  string `json:"name"`
	Icon  string `json:"icon"`
	Color string `json:"color"`
}

// Validate implements validation.Validatable.
func (in HabitInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required, validation.Length(1, 80)),
		validation.Field(&in.Icon, validation.Length(0, 16)),
		validation.Field(&in.Color, validation.Length(0, 32)),
	)
}

// Habits returns every habit in creation order.
func (s *Service) Habits(_ context.Context) []models.Habit {
	return nonNilSlice(localstore.Get(s.store, models.KeyHabits, []models.Habit(nil)))
}

// Records returns every daily record.
func (s *Service) Records(_ context.Context) models.Records {
	rec := localstore.Get(s.store, models.KeyRecords, models.Records(nil))
	if rec == nil {
		return models.Records{}
	}
	return rec
}

// AddHabit creates a habit. Icon and color fall back to defaults.
func (s *Service) AddHabit(ctx context.Context, in HabitInput) (models.Habit, error) {
	in.Name = cleanText(in.Name)
	in.Icon = strings.TrimSpace(in.Icon)
	in.Color = strings.TrimSpace(in.Color)
	if err := in.Validate(); err != nil {
		return models.Habit{}, fmt.Errorf("%w: %v", apperr.ErrInvalid, err)
	}
	if in.Icon == "" {
		in.Icon = defaultIcon
	}
	if in.Color == "" {
		in.Color = defaultColor
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	h := models.Habit{
		ID:      newID("h"),
		Name:    in.Name,
		Icon:    in.Icon,
		Color:   in.Color,
		Created: s.now().UTC(),
	}
	habits := append(s.Habits(ctx), h)
	if err := s.store.Set(models.KeyHabits, habits); err != nil {
		return models.Habit{}, fmt.Errorf("tracker: add habit: %w", err)
	}
	return h, nil
}

// DeleteHabit removes a habit and every record that belongs to it.
func (s *Service) DeleteHabit(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	habits := s.Habits(ctx)
	i := slices.IndexFunc(habits, func(h models.Habit) bool { return h.ID == id })
	if i < 0 {
		return apperr.ErrNotFound
	}
	habits = slices.Delete(habits, i, i+1)
	if err := s.store.Set(models.KeyHabits, habits); err != nil {
		return fmt.Errorf("tracker: delete habit: %w", err)
	}

	rec := s.Records(ctx)
	pruned := make(models.Records, len(rec))
	for k, st := range rec {
		if hid, _, ok := models.SplitRecordKey(k); ok && hid == id {
			continue
		}
		pruned[k] = st
	}
	if len(pruned) == len(rec) {
		return nil
	}
	if err := s.store.Set(models.KeyRecords, pruned); err != nil {
		return fmt.Errorf("tracker: prune records: %w", err)
	}
	return nil
}

// ToggleStatus advances the record of a habit on day through
// unmarked -> win -> fail -> unmarked and returns the new status ("" when
// unmarked).
func (s *Service) ToggleStatus(ctx context.Context, habitID string, day time.Time) (models.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !slices.ContainsFunc(s.Habits(ctx), func(h models.Habit) bool { return h.ID == habitID }) {
		return "", apperr.ErrNotFound
	}

	rec := s.Records(ctx)
	key := models.RecordKey(habitID, startOfDay(day))
	var next models.Status
	switch rec[key] {
	case "":
		next = models.StatusWin
	case models.StatusWin:
		next = models.StatusFail
	}
	if next == "" {
		delete(rec, key)
	} else {
		rec[key] = next
	}
	if err := s.store.Set(models.KeyRecords, rec); err != nil {
		return "", fmt.Errorf("tracker: toggle status: %w", err)
	}
	return next, nil
}

// Streak returns the run of consecutive wins ending today. When today is
// not a win yet the run ending yesterday counts.
func (s *Service) Streak(ctx context.Context, habitID string, today time.Time) int {
	return currentStreak(s.Records(ctx), habitID, startOfDay(today))
}

// BestStreak returns the longest run of consecutive winning days.
func (s *Service) BestStreak(ctx context.Context, habitID string) int {
	return bestStreak(s.Records(ctx), habitID)
}

func currentStreak(rec models.Records, habitID string, today time.Time) int {
	d := today
	if rec[models.RecordKey(habitID, d)] != models.StatusWin {
		d = d.AddDate(0, 0, -1)
	}
	n := 0
	for rec[models.RecordKey(habitID, d)] == models.StatusWin {
		n++
		d = d.AddDate(0, 0, -1)
	}
	return n
}

func bestStreak(rec models.Records, habitID string) int {
	var days []time.Time
	for k, st := range rec {
		hid, day, ok := models.SplitRecordKey(k)
		if ok && hid == habitID && st == models.StatusWin {
			days = append(days, day)
		}
	}
	if len(days) == 0 {
		return 0
	}
	slices.SortFunc(days, func(a, b time.Time) int { return a.Compare(b) })

	best, cur := 1, 1
	for i := 1; i < len(days); i++ {
		if days[i-1].AddDate(0, 0, 1).Equal(days[i]) {
			cur++
			best = max(best, cur)
		} else {
			cur = 1
		}
	}
	return best
}
