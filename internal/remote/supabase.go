// Package remote implements the clients that mirror the record store:
// a PostgREST (Supabase) table row and the legacy companion service.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/starford/tally/internal/apperr"
	"github.com/starford/tally/internal/models"
)

// PostgREST reports "JSON object requested, multiple (or no) rows returned"
// with this code when a single-object read matches zero rows.
const codeNoRows = "PGRST116"

// Placeholder values shipped in sample configs; treated as unset.
const (
	placeholderURL = "YOUR_SUPABASE_URL"
	placeholderKey = "YOUR_SUPABASE_ANON_KEY"
)

// SupabaseConfig holds the connection settings for the remote table.
type SupabaseConfig struct {
	URL       string
	Key       string
	Table     string
	RecordKey string
	Timeout   time.Duration
}

// APIError is a non-2xx PostgREST response.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("remote: status %d: %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("remote: status %d: %s", e.Status, e.Message)
}

// Supabase mirrors the record store into a single row of a PostgREST table.
type Supabase struct {
	cfg        SupabaseConfig
	httpClient *http.Client
	now        func() time.Time
}

// NewSupabase creates a client. An incomplete config yields a client whose
// Available reports false.
func NewSupabase(cfg SupabaseConfig) *Supabase {
	if cfg.Table == "" {
		cfg.Table = "user_data"
	}
	if cfg.RecordKey == "" {
		cfg.RecordKey = "default"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	return &Supabase{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		now:        time.Now,
	}
}

// Name identifies the client in logs.
func (c *Supabase) Name() string { return "supabase" }

// Available reports whether URL and key are configured.
func (c *Supabase) Available() bool {
	return c.cfg.URL != "" && c.cfg.Key != "" &&
		c.cfg.URL != placeholderURL && c.cfg.Key != placeholderKey
}

type upsertRow struct {
	Key       string          `json:"key"`
	Data      models.Snapshot `json:"data"`
	UpdatedAt string          `json:"updated_at"`
}

// Push replaces the remote row with snap and a fresh timestamp.
func (c *Supabase) Push(ctx context.Context, snap models.Snapshot) error {
	if !c.Available() {
		return apperr.ErrUnavailable
	}
	body, err := json.Marshal(upsertRow{
		Key:       c.cfg.RecordKey,
		Data:      snap,
		UpdatedAt: c.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("remote: encode row: %w", err)
	}

	q := url.Values{}
	q.Set("on_conflict", "key")
	req, err := c.newRequest(ctx, http.MethodPost, q, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "resolution=merge-duplicates,return=minimal")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("remote: push: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return decodeAPIError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Pull fetches the remote row. A missing row yields apperr.ErrNotFound.
func (c *Supabase) Pull(ctx context.Context) (*models.RemoteRecord, error) {
	if !c.Available() {
		return nil, apperr.ErrUnavailable
	}
	q := url.Values{}
	q.Set("select", "key,data,updated_at")
	q.Set("key", "eq."+c.cfg.RecordKey)
	req, err := c.newRequest(ctx, http.MethodGet, q, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.pgrst.object+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote: pull: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		apiErr := decodeAPIError(resp)
		if apiErr.Code == codeNoRows {
			return nil, fmt.Errorf("remote: pull %s: %w", c.cfg.RecordKey, apperr.ErrNotFound)
		}
		return nil, apiErr
	}

	var rec models.RemoteRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("remote: decode row: %w", err)
	}
	if err := rec.Data.Validate(); err != nil {
		return nil, fmt.Errorf("remote: invalid row: %w", err)
	}
	return &rec, nil
}

func (c *Supabase) newRequest(ctx context.Context, method string, q url.Values, body io.Reader) (*http.Request, error) {
	u := c.cfg.URL + "/rest/v1/" + url.PathEscape(c.cfg.Table) + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("remote: creating request: %w", err)
	}
	req.Header.Set("apikey", c.cfg.Key)
	req.Header.Set("Authorization", "Bearer "+c.cfg.Key)
	return req, nil
}

func decodeAPIError(resp *http.Response) *APIError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{}
	if err := json.Unmarshal(raw, apiErr); err != nil || (apiErr.Code == "" && apiErr.Message == "") {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	apiErr.Status = resp.StatusCode
	return apiErr
}
