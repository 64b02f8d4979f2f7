package tracker

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/starford/tally/internal/apperr"
	"github.com/starford/tally/internal/models"
)

// Period selects the dashboard window.
type Period string

const (
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodAll   Period = "all"
)

// ParsePeriod accepts week, month or all; empty means week.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PeriodWeek, nil
	case PeriodWeek, PeriodMonth, PeriodAll:
		return p, nil
	default:
		return "", fmt.Errorf("%w: unknown period %q", apperr.ErrInvalid, s)
	}
}

// allTimeStart is where the "all" window begins.
var allTimeStart = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.Local)

// maxSeriesDays caps the daily series returned by Dashboard.
const maxSeriesDays = 60

// HabitStats is one row of the per-habit breakdown.
type HabitStats struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Icon  string `json:"icon,omitempty"`
	Color string `json:"color,omitempty"`
	Wins  int    `json:"wins"`
	Fails int    `json:"fails"`
	Rate  int    `json:"rate"`
	Grade string `json:"grade"`
}

// DayStats counts wins and fails across habits on one day.
type DayStats struct {
	Date  string `json:"date"`
	Wins  int    `json:"wins"`
	Fails int    `json:"fails"`
}

// Dashboard summarizes records within a period.
type Dashboard struct {
	Period     Period       `json:"period"`
	From       string       `json:"from"`
	To         string       `json:"to"`
	Wins       int          `json:"wins"`
	Fails      int          `json:"fails"`
	Rate       int          `json:"rate"`
	BestStreak int          `json:"best_streak"`
	Habits     []HabitStats `json:"habits"`
	Series     []DayStats   `json:"series"`
}

// ProgressPoint is the share of habits won on one day.
type ProgressPoint struct {
	Date    string `json:"date"`
	Percent int    `json:"percent"`
}

// Grade labels a success rate.
func Grade(rate int) string {
	switch {
	case rate >= 80:
		return "Excelente"
	case rate >= 60:
		return "Bom"
	case rate >= 40:
		return "Atenção"
	default:
		return "Crítico"
	}
}

func percent(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(part) * 100 / float64(total)))
}

func periodStart(p Period, today time.Time) time.Time {
	switch p {
	case PeriodMonth:
		return time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.Local)
	case PeriodAll:
		return allTimeStart
	default:
		return today.AddDate(0, 0, -6)
	}
}

// Dashboard computes totals, per-habit rates and a daily series for the
// period ending today. The best streak is computed over all records.
func (s *Service) Dashboard(ctx context.Context, p Period, today time.Time) Dashboard {
	today = startOfDay(today)
	start := periodStart(p, today)
	habits := s.Habits(ctx)
	rec := s.Records(ctx)

	d := Dashboard{
		Period: p,
		From:   start.Format(models.DayLayout),
		To:     today.Format(models.DayLayout),
		Habits: make([]HabitStats, 0, len(habits)),
		Series: []DayStats{},
	}

	perHabit := make(map[string]*HabitStats, len(habits))
	for _, h := range habits {
		d.Habits = append(d.Habits, HabitStats{ID: h.ID, Name: h.Name, Icon: h.Icon, Color: h.Color})
		d.BestStreak = max(d.BestStreak, bestStreak(rec, h.ID))
	}
	for i := range d.Habits {
		perHabit[d.Habits[i].ID] = &d.Habits[i]
	}

	for k, st := range rec {
		hid, day, ok := models.SplitRecordKey(k)
		if !ok || day.Before(start) || day.After(today) {
			continue
		}
		hs := perHabit[hid]
		switch st {
		case models.StatusWin:
			d.Wins++
			if hs != nil {
				hs.Wins++
			}
		case models.StatusFail:
			d.Fails++
			if hs != nil {
				hs.Fails++
			}
		}
	}
	d.Rate = percent(d.Wins, d.Wins+d.Fails)
	for i := range d.Habits {
		hs := &d.Habits[i]
		hs.Rate = percent(hs.Wins, hs.Wins+hs.Fails)
		hs.Grade = Grade(hs.Rate)
	}

	for day := start; !day.After(today); day = day.AddDate(0, 0, 1) {
		ds := DayStats{Date: day.Format(models.DayLayout)}
		for _, h := range habits {
			switch rec[models.RecordKey(h.ID, day)] {
			case models.StatusWin:
				ds.Wins++
			case models.StatusFail:
				ds.Fails++
			}
		}
		d.Series = append(d.Series, ds)
	}
	if len(d.Series) > maxSeriesDays {
		d.Series = d.Series[len(d.Series)-maxSeriesDays:]
	}
	return d
}

// Progress returns, for each of the last days ending today, the percentage
// of habits marked as a win.
func (s *Service) Progress(ctx context.Context, today time.Time, days int) []ProgressPoint {
	if days <= 0 {
		days = 30
	}
	today = startOfDay(today)
	habits := s.Habits(ctx)
	rec := s.Records(ctx)

	out := make([]ProgressPoint, 0, days)
	for i := days - 1; i >= 0; i-- {
		day := today.AddDate(0, 0, -i)
		wins := 0
		for _, h := range habits {
			if rec[models.RecordKey(h.ID, day)] == models.StatusWin {
				wins++
			}
		}
		out = append(out, ProgressPoint{Date: day.Format(models.DayLayout), Percent: percent(wins, len(habits))})
	}
	return out
}
