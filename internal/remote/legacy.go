package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/starford/tally/internal/apperr"
	"github.com/starford/tally/internal/models"
)

// Legacy talks to the companion service's /api/data endpoint.
type Legacy struct {
	baseURL    string
	httpClient *http.Client
}

// NewLegacy creates a client for the companion service at baseURL. An empty
// baseURL yields an unavailable client.
func NewLegacy(baseURL string, timeout time.Duration) *Legacy {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Legacy{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name identifies the client in logs.
func (c *Legacy) Name() string { return "legacy" }

// Available reports whether a companion URL is configured.
func (c *Legacy) Available() bool { return c.baseURL != "" }

// Pull fetches the companion document. An empty document or a 404 yields
// apperr.ErrNotFound.
func (c *Legacy) Pull(ctx context.Context) (*models.RemoteRecord, error) {
	if !c.Available() {
		return nil, apperr.ErrUnavailable
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/data", nil)
	if err != nil {
		return nil, fmt.Errorf("remote: creating request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote: legacy pull: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("remote: legacy pull: %w", apperr.ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote: legacy pull: unexpected status %d", resp.StatusCode)
	}

	var snap models.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("remote: legacy decode: %w", err)
	}
	if snap.IsEmpty() {
		return nil, fmt.Errorf("remote: legacy pull: %w", apperr.ErrNotFound)
	}
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("remote: legacy invalid document: %w", err)
	}
	return &models.RemoteRecord{Key: c.Name(), Data: snap}, nil
}

// Push replaces the companion document with snap.
func (c *Legacy) Push(ctx context.Context, snap models.Snapshot) error {
	if !c.Available() {
		return apperr.ErrUnavailable
	}
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("remote: encode document: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/data", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("remote: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("remote: legacy push: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("remote: legacy push: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
