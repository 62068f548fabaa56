package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
	// SessionIdleMinutes closes API sessions nobody touched for this long. Zero keeps them until deleted.
	SessionIdleMinutes int `toml:"session_idle_minutes"`
}

// Backend contains connection settings for the remote duplicate service.
type Backend struct {
	BaseURL        string `toml:"base_url"`
	Token          string `toml:"token"`
	RequestTimeout int    `toml:"request_timeout"`
	// RecordURLTemplate builds a link to a record; %s is replaced by the record id.
	RecordURLTemplate string `toml:"record_url_template"`
}

// Browser contains listing defaults for the duplicate set browser.
type Browser struct {
	PageSize         int `toml:"page_size"`
	SearchDebounceMS int `toml:"search_debounce_ms"`
}

// Scan contains scan job polling configuration.
type Scan struct {
	PollIntervalMS int `toml:"poll_interval_ms"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Scans          bool   `toml:"scans"`
	Merges         bool   `toml:"merges"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for mergedesk.
//
// Configuration sections by subsystem:
//   - Paths: state/log directories and API bind address
//   - Backend: remote duplicate service endpoint and credentials
//   - Browser: page size and search debounce
//   - Scan: job poll interval
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Backend       Backend       `toml:"backend"`
	Browser       Browser       `toml:"browser"`
	Scan          Scan          `toml:"scan"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/mergedesk/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("mergedesk.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// JournalPath is the SQLite audit journal location.
func (c *Config) JournalPath() string {
	return filepath.Join(c.Paths.StateDir, "journal.db")
}

// LockPath is the lock file guarding a single API server per state directory.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "mergedesk.lock")
}

// LogPath is the log file written next to console output.
func (c *Config) LogPath() string {
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return ""
	}
	return filepath.Join(c.Paths.LogDir, "mergedesk.log")
}

// BackendTimeout returns the HTTP timeout for remote calls.
func (c *Config) BackendTimeout() time.Duration {
	return time.Duration(c.Backend.RequestTimeout) * time.Second
}

// PollInterval returns the scan job poll interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Scan.PollIntervalMS) * time.Millisecond
}

// SessionIdleTimeout returns how long an unused API session is kept.
func (c *Config) SessionIdleTimeout() time.Duration {
	return time.Duration(c.Paths.SessionIdleMinutes) * time.Minute
}

// SearchDebounce returns the keystroke silence required before a search fetch.
func (c *Config) SearchDebounce() time.Duration {
	return time.Duration(c.Browser.SearchDebounceMS) * time.Millisecond
}

// RecordURL renders the configured record link for id.
func (c *Config) RecordURL(id string) string {
	id = strings.TrimSpace(id)
	tmpl := strings.TrimSpace(c.Backend.RecordURLTemplate)
	if id == "" || tmpl == "" {
		return ""
	}
	if !strings.Contains(tmpl, "%s") {
		return strings.TrimRight(tmpl, "/") + "/" + id
	}
	return fmt.Sprintf(tmpl, id)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
