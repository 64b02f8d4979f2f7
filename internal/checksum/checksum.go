// Package checksum fingerprints the companion document.
package checksum

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Sum returns the hex-encoded SHA-256 digest of a JSON document in compact
// form, so that re-indenting the file does not change its fingerprint.
// Bytes that are not valid JSON are hashed as they are.
func Sum(data []byte) string {
	var compact bytes.Buffer
	if err := json.Compact(&compact, data); err == nil {
		data = compact.Bytes()
	}
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
