package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Shape written by the browser app and the companion server: every value is
// a string, the password bare, everything else string-encoded JSON.
const legacyDataJSON = `{
  "ht_password": "4321",
  "ht_habits": "[{\"id\":\"h_1\",\"name\":\"Run\",\"icon\":\"🏃\",\"color\":\"#e6002a\",\"created\":\"2024-01-01T10:00:00.000Z\"}]",
  "ht_records": "{\"h_1_2024-01-01\":\"win\",\"h_1_2024-01-02\":\"fail\"}",
  "ht_notes": "[]",
  "ht_finance": "{\"balance\":12.5,\"log\":[{\"id\":\"f_1\",\"amount\":12.5,\"desc\":\"Entrada\",\"date\":\"2024-01-01T10:00:00.000Z\"}]}",
  "ht_auth": "1"
}`

func TestSnapshot_DecodeLegacyShape(t *testing.T) {
	var s Snapshot
	require.NoError(t, json.Unmarshal([]byte(legacyDataJSON), &s))

	require.NotNil(t, s.Password)
	assert.Equal(t, "4321", *s.Password)
	require.Len(t, s.Habits, 1)
	assert.Equal(t, "Run", s.Habits[0].Name)
	assert.Equal(t, StatusWin, s.Records["h_1_2024-01-01"])
	assert.NotNil(t, s.Notes, "empty notes array is present, not absent")
	assert.Empty(t, s.Notes)
	require.NotNil(t, s.Finance)
	assert.True(t, s.Finance.Balance.Equal(decimal.RequireFromString("12.5")))
	assert.ElementsMatch(t, []Key{KeyPassword, KeyHabits, KeyRecords, KeyNotes, KeyFinance}, s.Keys())
	require.NoError(t, s.Validate())
}

func TestSnapshot_AcceptsPlainJSONValues(t *testing.T) {
	var s Snapshot
	require.NoError(t, json.Unmarshal([]byte(`{"ht_records":{"h_1_2024-03-04":"win"},"ht_notes":null}`), &s))
	assert.Equal(t, Records{"h_1_2024-03-04": StatusWin}, s.Records)
	assert.Nil(t, s.Notes)
}

func TestSnapshot_WireFormNeverCarriesAuth(t *testing.T) {
	pw := "x"
	s := Snapshot{Password: &pw, Records: Records{"h_1_2024-01-01": StatusWin}}
	out, err := json.Marshal(s)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(out, &wire))
	assert.NotContains(t, wire, string(KeyAuth))
	assert.Equal(t, "x", wire[string(KeyPassword)])
	assert.JSONEq(t, `{"h_1_2024-01-01":"win"}`, wire[string(KeyRecords)].(string))
}

func TestSnapshot_EntriesRoundTrip(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := Snapshot{
		Habits:  []Habit{{ID: "h_1", Name: "Run", Created: created}},
		Finance: &Finance{Balance: decimal.NewFromInt(-3), Log: []Entry{{ID: "f_1", Amount: decimal.NewFromInt(-3), Desc: "Saída"}}},
	}
	entries, err := s.Entries()
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Contains(t, string(entries[KeyFinance]), `"balance":-3`)

	back, err := SnapshotFromEntries(entries)
	require.NoError(t, err)
	assert.Equal(t, s.Habits, back.Habits)
	assert.True(t, back.Finance.Balance.Equal(decimal.NewFromInt(-3)))
}

func TestSnapshot_ValidateRejectsMalformed(t *testing.T) {
	cases := map[string]Snapshot{
		"bad record key":  {Records: Records{"nodate": StatusWin}},
		"bad status":      {Records: Records{"h_1_2024-01-01": "maybe"}},
		"habit no name":   {Habits: []Habit{{ID: "h_1"}}},
		"entry no id":     {Finance: &Finance{Log: []Entry{{Desc: "x"}}}},
		"empty password":  {Password: new(string)},
	}
	for name, s := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, s.Validate())
		})
	}
}

func TestSplitRecordKey(t *testing.T) {
	id, day, ok := SplitRecordKey("h_1700000000000_2024-02-29")
	require.True(t, ok)
	assert.Equal(t, "h_1700000000000", id)
	assert.Equal(t, "2024-02-29", day.Format(DayLayout))

	_, _, ok = SplitRecordKey("h_1_notadate")
	assert.False(t, ok)
	_, _, ok = SplitRecordKey("_2024-01-01")
	assert.False(t, ok)
}

func TestSyncedKeysExcludeAuth(t *testing.T) {
	assert.NotContains(t, SyncedKeys(), KeyAuth)
	assert.Contains(t, AllKeys(), KeyAuth)
	assert.False(t, Key("other").Synced())
}

func TestFinance_MarshalsPlainNumbers(t *testing.T) {
	f := Finance{
		Balance: decimal.RequireFromString("1234.56"),
		Log:     []Entry{{ID: "f_1", Amount: decimal.RequireFromString("-10.5"), Desc: "Café", Date: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)}},
	}
	out, err := json.Marshal(f)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"balance":1234.56,"log":[{"id":"f_1","amount":-10.5,"desc":"Café","date":"2024-03-15T00:00:00Z"}]}`,
		string(out))

	// Only tracker types change encoding; bare decimals keep the library default.
	assert.False(t, decimal.MarshalJSONWithoutQuotes)
	bare, err := json.Marshal(decimal.RequireFromString("1.5"))
	require.NoError(t, err)
	assert.Equal(t, `"1.5"`, string(bare))

	var back Finance
	require.NoError(t, json.Unmarshal(out, &back))
	assert.True(t, back.Balance.Equal(f.Balance))
	assert.True(t, back.Log[0].Amount.Equal(f.Log[0].Amount))
}
