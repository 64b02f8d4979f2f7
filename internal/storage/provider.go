// Package storage persists the companion service's JSON document on disk.
package storage

// Provider is the interface for whole-document storage.
type Provider interface {
	// Read returns the raw document bytes. A missing document yields an
	// error wrapping os.ErrNotExist.
	Read() ([]byte, error)
	// Write atomically replaces the document.
	Write(content []byte) error
	// Path returns the absolute location of the document.
	Path() string
}
