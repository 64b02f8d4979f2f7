package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Snapshot is the full content of every synced key at one point in time.
// A nil field means the key is absent. The session flag has no field, so it
// cannot travel in a snapshot.
type Snapshot struct {
	Password *string
	Habits   []Habit
	Records  Records
	Notes    []Note
	Finance  *Finance
}

// RemoteRecord is the single row mirrored by a remote store.
type RemoteRecord struct {
	Key       string    `json:"key"`
	Data      Snapshot  `json:"data"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsEmpty reports whether no key is present.
func (s Snapshot) IsEmpty() bool {
	return len(s.Keys()) == 0
}

// Keys lists the present keys in store order.
func (s Snapshot) Keys() []Key {
	var out []Key
	if s.Password != nil {
		out = append(out, KeyPassword)
	}
	if s.Habits != nil {
		out = append(out, KeyHabits)
	}
	if s.Records != nil {
		out = append(out, KeyRecords)
	}
	if s.Notes != nil {
		out = append(out, KeyNotes)
	}
	if s.Finance != nil {
		out = append(out, KeyFinance)
	}
	return out
}

// Validate implements validation.Validatable.
func (s Snapshot) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Password, validation.NilOrNotEmpty),
		validation.Field(&s.Habits),
		validation.Field(&s.Records),
		validation.Field(&s.Notes),
		validation.Field(&s.Finance),
	)
}

// Entries encodes every present key as its local-store JSON value.
func (s Snapshot) Entries() (map[Key]json.RawMessage, error) {
	out := make(map[Key]json.RawMessage, 5)
	put := func(k Key, v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("models: encode %s: %w", k, err)
		}
		out[k] = b
		return nil
	}
	if s.Password != nil {
		if err := put(KeyPassword, *s.Password); err != nil {
			return nil, err
		}
	}
	if s.Habits != nil {
		if err := put(KeyHabits, s.Habits); err != nil {
			return nil, err
		}
	}
	if s.Records != nil {
		if err := put(KeyRecords, s.Records); err != nil {
			return nil, err
		}
	}
	if s.Notes != nil {
		if err := put(KeyNotes, s.Notes); err != nil {
			return nil, err
		}
	}
	if s.Finance != nil {
		if err := put(KeyFinance, s.Finance); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// SnapshotFromEntries decodes local-store JSON values. Unknown keys and the
// session flag are ignored.
func SnapshotFromEntries(entries map[Key]json.RawMessage) (Snapshot, error) {
	var s Snapshot
	for k, raw := range entries {
		if err := s.set(k, raw); err != nil {
			return Snapshot{}, err
		}
	}
	return s, nil
}

func (s *Snapshot) set(k Key, raw json.RawMessage) error {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	var err error
	switch k {
	case KeyPassword:
		var p string
		err = json.Unmarshal(raw, &p)
		s.Password = &p
	case KeyHabits:
		s.Habits = []Habit{}
		err = json.Unmarshal(raw, &s.Habits)
	case KeyRecords:
		s.Records = Records{}
		err = json.Unmarshal(raw, &s.Records)
	case KeyNotes:
		s.Notes = []Note{}
		err = json.Unmarshal(raw, &s.Notes)
	case KeyFinance:
		f := DefaultFinance()
		err = json.Unmarshal(raw, &f)
		s.Finance = &f
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("models: decode %s: %w", k, err)
	}
	return nil
}

// MarshalJSON writes the wire form: an object whose values are strings. The
// password is the bare string; every other key carries its JSON text.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	entries, err := s.Entries()
	if err != nil {
		return nil, err
	}
	wire := make(map[string]string, len(entries))
	for k, raw := range entries {
		if k == KeyPassword {
			wire[string(k)] = *s.Password
			continue
		}
		wire[string(k)] = string(raw)
	}
	return json.Marshal(wire)
}

// UnmarshalJSON reads the wire form. Values may also be plain JSON instead
// of string-encoded JSON.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var wire map[string]json.RawMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("models: decode snapshot: %w", err)
	}
	*s = Snapshot{}
	for name, raw := range wire {
		k := Key(name)
		if !k.Synced() {
			continue
		}
		raw = bytes.TrimSpace(raw)
		if k != KeyPassword && len(raw) > 0 && raw[0] == '"' {
			var text string
			if err := json.Unmarshal(raw, &text); err != nil {
				return fmt.Errorf("models: decode %s: %w", k, err)
			}
			raw = json.RawMessage(text)
		}
		if err := s.set(k, raw); err != nil {
			return err
		}
	}
	return nil
}
