package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"mergedesk/internal/config"
)

func TestLoadDefaultConfigUsesEnvBackendAndExpandsPaths(t *testing.T) {
	t.Setenv("MERGEDESK_BACKEND_URL", "https://dupes.example.com/")
	t.Setenv("MERGEDESK_BACKEND_TOKEN", " secret ")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "mergedesk")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.Backend.BaseURL != "https://dupes.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Backend.BaseURL)
	}
	if cfg.Backend.Token != "secret" {
		t.Fatalf("expected backend token from env, got %q", cfg.Backend.Token)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7488" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.PollInterval() != 2*time.Second {
		t.Fatalf("unexpected poll interval: %s", cfg.PollInterval())
	}
	if cfg.SearchDebounce() != 300*time.Millisecond {
		t.Fatalf("unexpected search debounce: %s", cfg.SearchDebounce())
	}
	if cfg.Browser.PageSize != 12 {
		t.Fatalf("unexpected page size: %d", cfg.Browser.PageSize)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.StateDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
	if cfg.JournalPath() != filepath.Join(wantState, "journal.db") {
		t.Fatalf("unexpected journal path: %q", cfg.JournalPath())
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv("HOME", tempDir)
	t.Setenv("MERGEDESK_BACKEND_URL", "")
	configPath := filepath.Join(tempDir, "mergedesk.toml")

	type payload struct {
		Backend struct {
			BaseURL string `toml:"base_url"`
		} `toml:"backend"`
		Browser struct {
			PageSize int `toml:"page_size"`
		} `toml:"browser"`
		Scan struct {
			PollIntervalMS int `toml:"poll_interval_ms"`
		} `toml:"scan"`
	}
	custom := payload{}
	custom.Backend.BaseURL = "http://localhost:9000"
	custom.Browser.PageSize = 48
	custom.Scan.PollIntervalMS = 500

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: %q", resolved)
	}
	if cfg.Backend.BaseURL != "http://localhost:9000" {
		t.Fatalf("unexpected base url: %q", cfg.Backend.BaseURL)
	}
	if cfg.Browser.PageSize != 48 {
		t.Fatalf("unexpected page size: %d", cfg.Browser.PageSize)
	}
	if cfg.PollInterval() != 500*time.Millisecond {
		t.Fatalf("unexpected poll interval: %s", cfg.PollInterval())
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name:    "missing backend",
			mutate:  func(c *config.Config) { c.Backend.BaseURL = "" },
			wantErr: "backend.base_url is required",
		},
		{
			name:    "relative backend",
			mutate:  func(c *config.Config) { c.Backend.BaseURL = "dupes.local" },
			wantErr: "absolute http(s) URL",
		},
		{
			name:    "page size",
			mutate:  func(c *config.Config) { c.Browser.PageSize = 10 },
			wantErr: "browser.page_size",
		},
		{
			name:    "poll interval",
			mutate:  func(c *config.Config) { c.Scan.PollIntervalMS = 0 },
			wantErr: "scan.poll_interval_ms",
		},
		{
			name:    "session idle",
			mutate:  func(c *config.Config) { c.Paths.SessionIdleMinutes = -5 },
			wantErr: "paths.session_idle_minutes",
		},
		{
			name:    "log format",
			mutate:  func(c *config.Config) { c.Logging.Format = "xml" },
			wantErr: "logging.format",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Backend.BaseURL = "https://dupes.example.com"
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected error containing %q", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestRecordURL(t *testing.T) {
	cfg := config.Default()
	if got := cfg.RecordURL("003A"); got != "/lightning/r/003A/view" {
		t.Fatalf("unexpected record url: %q", got)
	}
	cfg.Backend.RecordURLTemplate = "https://crm.example.com/records/"
	if got := cfg.RecordURL("003A"); got != "https://crm.example.com/records/003A" {
		t.Fatalf("unexpected record url without placeholder: %q", got)
	}
	if got := cfg.RecordURL(""); got != "" {
		t.Fatalf("expected empty url for empty id, got %q", got)
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv("HOME", tempDir)
	t.Setenv("MERGEDESK_BACKEND_URL", "https://dupes.example.com")
	target := filepath.Join(tempDir, "nested", "config.toml")
	if err := config.CreateSample(target); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(target)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.Browser.SearchDebounceMS != 300 {
		t.Fatalf("unexpected debounce in sample: %d", cfg.Browser.SearchDebounceMS)
	}
}
