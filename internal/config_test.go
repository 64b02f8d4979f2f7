package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgconfig "github.com/starford/tally/pkg/config"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.App.HTTP.Address() != ":8080" {
		t.Errorf("address = %q", cfg.App.HTTP.Address())
	}
	if cfg.Companion.Address() != ":3030" {
		t.Errorf("companion address = %q", cfg.Companion.Address())
	}
}

func TestDefaultConfigLeavesRemoteUnconfigured(t *testing.T) {
	cfg := NewDefaultConfig()
	if cfg.Supabase.Client().Available() {
		t.Error("remote must be unconfigured without url and key")
	}
}

func TestSyncConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     SyncConfig
		wantErr string
	}{
		{name: "defaults", cfg: NewDefaultConfig().Sync},
		{name: "zero debounce", cfg: SyncConfig{}, wantErr: "Debounce"},
		{name: "negative timeout", cfg: SyncConfig{Debounce: time.Second, PushTimeout: -time.Second}, wantErr: "PushTimeout"},
		{name: "replicate without url", cfg: SyncConfig{Debounce: time.Second, ReplicateToLegacy: true}, wantErr: "LegacyURL"},
		{name: "replicate with url", cfg: SyncConfig{Debounce: time.Second, ReplicateToLegacy: true, LegacyURL: "http://localhost:3030"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestSyncConfigOptions(t *testing.T) {
	cfg := NewDefaultConfig().Sync
	if got := len(cfg.Options()); got != 3 {
		t.Errorf("options without legacy = %d, want 3", got)
	}
	cfg.LegacyURL = "http://localhost:3030"
	if got := len(cfg.Options()); got != 4 {
		t.Errorf("options with legacy = %d, want 4", got)
	}
	cfg.ReplicateToLegacy = true
	if got := len(cfg.Options()); got != 5 {
		t.Errorf("options with legacy replication = %d, want 5", got)
	}
}

func TestCompanionConfigValidate(t *testing.T) {
	cfg := CompanionConfig{Port: 70000, DataFile: "data.json"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected port range error")
	}
	cfg = CompanionConfig{Port: 3030}
	if err := cfg.Validate(); err == nil {
		t.Error("expected data_file error")
	}
}

func TestLoadConfigFile(t *testing.T) {
	t.Setenv("TALLY_TEST_SUPABASE_KEY", "anon-key")
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
app:
  log_level: debug
  http:
    port: 9090
supabase:
  url: https://example.supabase.co
  key: ${TALLY_TEST_SUPABASE_KEY}
sync:
  debounce: 250ms
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	found, err := pkgconfig.LoadOptional(path, cfg)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !found {
		t.Fatal("config file not found")
	}
	if cfg.App.HTTP.Port != 9090 || cfg.App.LogLevel.String() != "DEBUG" {
		t.Errorf("app = %+v", cfg.App)
	}
	if cfg.Supabase.Key != "anon-key" || cfg.Supabase.Table != "user_data" {
		t.Errorf("supabase = %+v", cfg.Supabase)
	}
	if cfg.Sync.Debounce != 250*time.Millisecond {
		t.Errorf("debounce = %v", cfg.Sync.Debounce)
	}
	if !cfg.Supabase.Client().Available() {
		t.Error("remote should be configured")
	}
}
