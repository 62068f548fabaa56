package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateBackend(); err != nil {
		return err
	}
	if c.Paths.SessionIdleMinutes < 0 {
		return errors.New("paths.session_idle_minutes must not be negative")
	}
	if err := c.validateBrowser(); err != nil {
		return err
	}
	if err := c.validateScan(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateBackend() error {
	if c.Backend.BaseURL == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/mergedesk/config.toml"
		}
		return fmt.Errorf("backend.base_url is required. Set MERGEDESK_BACKEND_URL env var or edit %s (create with 'mergedesk config init')", defaultPath)
	}
	parsed, err := url.Parse(c.Backend.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("backend.base_url %q must be an absolute http(s) URL", c.Backend.BaseURL)
	}
	if c.Backend.RequestTimeout <= 0 {
		return errors.New("backend.request_timeout must be positive (seconds)")
	}
	return nil
}

func (c *Config) validateBrowser() error {
	if !ValidPageSize(c.Browser.PageSize) {
		return fmt.Errorf("browser.page_size must be one of %v", PageSizes)
	}
	if c.Browser.SearchDebounceMS <= 0 {
		return errors.New("browser.search_debounce_ms must be positive")
	}
	return nil
}

func (c *Config) validateScan() error {
	if c.Scan.PollIntervalMS <= 0 {
		return errors.New("scan.poll_interval_ms must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", strings.TrimSpace(c.Logging.Level))
	}
	return nil
}
