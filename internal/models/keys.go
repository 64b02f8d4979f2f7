// Package models defines the domain types for tally.
package models

// Key names one entry of the record store. The set is fixed; wire names are
// kept stable so existing data files and remote rows stay readable.
type Key string

const (
	KeyPassword Key = "ht_password"
	KeyHabits   Key = "ht_habits"
	KeyRecords  Key = "ht_records"
	KeyNotes    Key = "ht_notes"
	KeyFinance  Key = "ht_finance"

	// KeyAuth is the session authentication flag. It lives in the local
	// store for the current session only and is never part of a Snapshot.
	KeyAuth Key = "ht_auth"
)

// DefaultPassword is used until the user sets one.
const DefaultPassword = "1234"

var allKeys = []Key{KeyPassword, KeyHabits, KeyRecords, KeyNotes, KeyFinance, KeyAuth}

// AllKeys returns every known key, including the session flag.
func AllKeys() []Key {
	out := make([]Key, len(allKeys))
	copy(out, allKeys)
	return out
}

// SyncedKeys returns the keys that are replicated to remote stores.
func SyncedKeys() []Key {
	out := make([]Key, 0, len(allKeys)-1)
	for _, k := range allKeys {
		if k.Synced() {
			out = append(out, k)
		}
	}
	return out
}

// Synced reports whether k is replicated.
func (k Key) Synced() bool {
	return k != KeyAuth && k.Known()
}

// Known reports whether k belongs to the fixed key set.
func (k Key) Known() bool {
	for _, c := range allKeys {
		if c == k {
			return true
		}
	}
	return false
}

func (k Key) String() string { return string(k) }
