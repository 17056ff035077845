// Package config handles configuration loading and defaults.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/Makepad-fr/tada/internal/ui"
)

// Default values.
const (
	DefaultAPIURL           = "http://127.0.0.1:8080"
	DefaultLogLevel         = "warn"
	DefaultTheme            = "classic"
	DefaultErrorTTL         = 3 * time.Second
	DefaultPurgeParallelism = 4

	homeDirName    = ".tada"
	configFileName = "config.toml"
)

// Config holds the full configuration for tada.
type Config struct {
	// Remote API
	APIURL string `toml:"api_url"`
	UserID int    `toml:"user_id"` // 0 means "take it from the token"

	// Logging
	LogLevel string `toml:"log_level"`
	LogFile  string `toml:"log_file"` // used by the TUI; empty means ~/.tada/tada.log

	// Output
	Theme   string `toml:"theme"`
	Group   bool   `toml:"group"`
	NoColor bool   `toml:"no_color"`

	// Controller
	ErrorTTL         time.Duration `toml:"error_ttl"`
	PurgeParallelism int           `toml:"purge_parallelism"`
}

func setDefaults(cfg *Config) {
	cfg.APIURL = DefaultAPIURL
	cfg.LogLevel = DefaultLogLevel
	cfg.Theme = DefaultTheme
	cfg.ErrorTTL = DefaultErrorTTL
	cfg.PurgeParallelism = DefaultPurgeParallelism
}

// Validate checks values that cannot be fixed by falling back to defaults.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil {
		return fmt.Errorf("api_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api_url: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("api_url: missing host")
	}
	if c.UserID < 0 {
		return fmt.Errorf("user_id: must not be negative, got %d", c.UserID)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if !slices.Contains(ui.Themes, strings.ToLower(c.Theme)) {
		return fmt.Errorf("theme: unknown theme %q (want one of %s)", c.Theme, strings.Join(ui.Themes, ", "))
	}
	if c.ErrorTTL < 0 {
		return fmt.Errorf("error_ttl: must not be negative, got %s", c.ErrorTTL)
	}
	if c.PurgeParallelism < 1 {
		return fmt.Errorf("purge_parallelism: must be at least 1, got %d", c.PurgeParallelism)
	}
	return nil
}

// HomeDir returns the tada state directory (~/.tada, or $TADA_HOME when set).
func HomeDir() (string, error) {
	if v := strings.TrimSpace(os.Getenv("TADA_HOME")); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home: %w", err)
	}
	return filepath.Join(home, homeDirName), nil
}

// ResolvedLogFile returns LogFile, defaulting to tada.log in the state directory.
func (c *Config) ResolvedLogFile() (string, error) {
	if c.LogFile != "" {
		return expandHome(c.LogFile)
	}
	dir, err := HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "tada.log"), nil
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}
