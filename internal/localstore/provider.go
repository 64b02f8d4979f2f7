// Package localstore is the durable key-value store on the local device.
// Reads never fail visibly; every write fires the registered write hook so
// the sync coordinator can schedule replication.
package localstore

import (
	"encoding/json"

	"github.com/starford/tally/internal/models"
)

// Provider is the key-value surface the domain stores depend on.
type Provider interface {
	// Raw returns the stored JSON for key, or ok=false when absent.
	Raw(key models.Key) (json.RawMessage, bool, error)
	// Set encodes value as JSON, persists it and fires the write hook.
	Set(key models.Key, value any) error
	// Delete removes key and fires the write hook.
	Delete(key models.Key) error
}

// Get decodes key into a T. Missing keys, read errors and malformed values
// all yield def.
func Get[T any](p Provider, key models.Key, def T) T {
	raw, ok, err := p.Raw(key)
	if err != nil || !ok {
		return def
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return def
	}
	return v
}
