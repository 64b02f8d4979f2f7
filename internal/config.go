package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/tally/internal/remote"
	"github.com/starford/tally/internal/syncer"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	SQLite    SQLiteConfig      `yaml:"sqlite"`
	Supabase  SupabaseConfig    `yaml:"supabase"`
	Sync      SyncConfig        `yaml:"sync"`
	Companion CompanionConfig   `yaml:"companion"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := c.SQLite.Validate(); err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	if err := c.Supabase.Validate(); err != nil {
		return fmt.Errorf("supabase: %w", err)
	}
	if err := c.Sync.Validate(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if err := c.Companion.Validate(); err != nil {
		return fmt.Errorf("companion: %w", err)
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	// LogFile, when set, receives a copy of the log stream with size-based rotation.
	LogFile string     `yaml:"log_file"`
	HTTP    HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SQLiteConfig holds the local store database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SupabaseConfig holds the remote table settings. An empty URL or key
// leaves the remote store unconfigured; the app then runs local-only.
type SupabaseConfig struct {
	URL       string        `yaml:"url"`
	Key       string        `yaml:"key"`
	Table     string        `yaml:"table"`
	RecordKey string        `yaml:"record_key"`
	Timeout   time.Duration `yaml:"timeout"`
}

// Validate validates the Supabase configuration.
func (c *SupabaseConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Table, validation.Required),
		validation.Field(&c.RecordKey, validation.Required),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	)
}

// Client builds the remote client for this configuration.
func (c *SupabaseConfig) Client() *remote.Supabase {
	return remote.NewSupabase(remote.SupabaseConfig{
		URL:       c.URL,
		Key:       c.Key,
		Table:     c.Table,
		RecordKey: c.RecordKey,
		Timeout:   c.Timeout,
	})
}

// SyncConfig controls the sync coordinator.
type SyncConfig struct {
	Debounce    time.Duration `yaml:"debounce"`
	PullTimeout time.Duration `yaml:"pull_timeout"`
	PushTimeout time.Duration `yaml:"push_timeout"`
	// LegacyURL is the companion service base URL, tried when the remote
	// table has no data.
	LegacyURL         string `yaml:"legacy_url"`
	ReplicateToLegacy bool   `yaml:"replicate_to_legacy"`
}

// Validate validates the sync configuration.
func (c *SyncConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.PullTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.PushTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.LegacyURL, validation.When(c.ReplicateToLegacy,
			validation.Required.Error("is required when replicate_to_legacy is set"))),
	)
}

// Options translates the configuration into coordinator options.
func (c *SyncConfig) Options() []syncer.Option {
	opts := []syncer.Option{
		syncer.WithDebounce(c.Debounce),
		syncer.WithPullTimeout(c.PullTimeout),
		syncer.WithPushTimeout(c.PushTimeout),
	}
	if c.LegacyURL != "" {
		opts = append(opts, syncer.WithFallback(remote.NewLegacy(c.LegacyURL, c.PullTimeout)))
		if c.ReplicateToLegacy {
			opts = append(opts, syncer.WithFallbackReplication())
		}
	}
	return opts
}

// CompanionConfig holds the companion data service configuration.
type CompanionConfig struct {
	Port     int    `yaml:"port"`
	DataFile string `yaml:"data_file"`
}

// Address returns the companion listen address.
func (c *CompanionConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the companion configuration.
func (c *CompanionConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.DataFile, validation.Required),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		SQLite: SQLiteConfig{
			Path: "./tally.db",
		},
		Supabase: SupabaseConfig{
			Table:     "user_data",
			RecordKey: "default",
			Timeout:   15 * time.Second,
		},
		Sync: SyncConfig{
			Debounce:    syncer.DefaultDebounce,
			PullTimeout: 10 * time.Second,
			PushTimeout: 15 * time.Second,
		},
		Companion: CompanionConfig{
			Port:     3030,
			DataFile: "./data.json",
		},
	}
}
