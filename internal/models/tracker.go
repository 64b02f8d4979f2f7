package models

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
)

// DayLayout is the date format used inside record keys.
const DayLayout = "2006-01-02"

// Status is the outcome recorded for a habit on one day.
type Status string

const (
	StatusWin  Status = "win"
	StatusFail Status = "fail"
)

// Validate implements validation.Validatable.
func (s Status) Validate() error {
	return validation.Validate(string(s), validation.Required, validation.In(string(StatusWin), string(StatusFail)))
}

// Habit is a tracked habit.
type Habit struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Icon    string    `json:"icon,omitempty"`
	Color   string    `json:"color,omitempty"`
	Created time.Time `json:"created,omitzero"`
}

// Validate implements validation.Validatable.
func (h Habit) Validate() error {
	return validation.ValidateStruct(&h,
		validation.Field(&h.ID, validation.Required),
		validation.Field(&h.Name, validation.Required),
	)
}

// Records maps "<habitID>_<YYYY-MM-DD>" to the status of that day.
type Records map[string]Status

// RecordKey builds the records map key for a habit and a day.
func RecordKey(habitID string, day time.Time) string {
	return habitID + "_" + day.Format(DayLayout)
}

// SplitRecordKey splits a record key into habit id and day. The day is the
// segment after the last underscore.
func SplitRecordKey(key string) (habitID string, day time.Time, ok bool) {
	i := strings.LastIndexByte(key, '_')
	if i <= 0 || i == len(key)-1 {
		return "", time.Time{}, false
	}
	d, err := time.ParseInLocation(DayLayout, key[i+1:], time.Local)
	if err != nil {
		return "", time.Time{}, false
	}
	return key[:i], d, true
}

// Validate implements validation.Validatable.
func (r Records) Validate() error {
	errs := validation.Errors{}
	for k, st := range r {
		if _, _, ok := SplitRecordKey(k); !ok {
			errs[k] = errors.New("must be <habit>_<YYYY-MM-DD>")
			continue
		}
		if err := st.Validate(); err != nil {
			errs[k] = err
		}
	}
	return errs.Filter()
}

// Note is a free-form note.
type Note struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Content string    `json:"content"`
	Created time.Time `json:"created,omitzero"`
	Updated time.Time `json:"updated,omitzero"`
}

// Validate implements validation.Validatable.
func (n Note) Validate() error {
	return validation.ValidateStruct(&n,
		validation.Field(&n.ID, validation.Required),
	)
}

// LastChange returns Updated, or Created for notes never edited.
func (n Note) LastChange() time.Time {
	if !n.Updated.IsZero() {
		return n.Updated
	}
	return n.Created
}

// Entry is one finance ledger movement. Positive amounts are income.
type Entry struct {
	ID     string          `json:"id"`
	Amount decimal.Decimal `json:"amount"`
	Desc   string          `json:"desc"`
	Date   time.Time       `json:"date"`
}

// MarshalJSON writes the amount as a plain JSON number, the form used by
// existing data files.
func (e Entry) MarshalJSON() ([]byte, error) {
	type entry Entry
	return json.Marshal(struct {
		entry
		Amount json.Number `json:"amount"`
	}{entry(e), json.Number(e.Amount.String())})
}

// Validate implements validation.Validatable.
func (e Entry) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.ID, validation.Required),
	)
}

// Finance is the running balance and its ledger, newest entry first.
type Finance struct {
	Balance decimal.Decimal `json:"balance"`
	Log     []Entry         `json:"log"`
}

// MarshalJSON writes the balance as a plain JSON number.
func (f Finance) MarshalJSON() ([]byte, error) {
	type finance Finance
	return json.Marshal(struct {
		finance
		Balance json.Number `json:"balance"`
	}{finance(f), json.Number(f.Balance.String())})
}

// Validate implements validation.Validatable.
func (f Finance) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Log),
	)
}

// DefaultFinance returns an empty ledger.
func DefaultFinance() Finance {
	return Finance{Balance: decimal.Zero, Log: []Entry{}}
}
