// Copyright (c) 2025 Surya Hanjaya
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config handles dora's configuration: a TOML file under
// ~/.dora/config.toml with environment overrides and optional .env
// loading for local development.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/suryahanjaya/lenrag-sub000/internal/util"
)

// =============================================================================
// CONFIG STRUCTURE
// =============================================================================

// Config is the top-level configuration.
type Config struct {
	Backend BackendConfig `toml:"backend" json:"backend"`
	OAuth   OAuthConfig   `toml:"oauth" json:"oauth"`
	UI      UIConfig      `toml:"ui" json:"ui"`
	Storage StorageConfig `toml:"storage" json:"storage"`
}

// BackendConfig points at the RAG backend and sets transport limits.
type BackendConfig struct {
	// URL is the backend base URL, no trailing slash.
	URL string `toml:"url" json:"url"`

	// RequestTimeout bounds every plain request/response call.
	RequestTimeout time.Duration `toml:"request_timeout" json:"request_timeout"`

	// RefreshTimeout bounds the token refresh call specifically.
	RefreshTimeout time.Duration `toml:"refresh_timeout" json:"refresh_timeout"`

	// KBRefetchPerSecond rate-limits knowledge-base refetches triggered
	// by per-item upload events.
	KBRefetchPerSecond float64 `toml:"kb_refetch_per_second" json:"kb_refetch_per_second"`
}

// OAuthConfig holds the Google sign-in settings. The client secret stays
// on the backend; only the public client ID lives here.
type OAuthConfig struct {
	ClientID     string `toml:"client_id" json:"client_id"`
	CallbackPort int    `toml:"callback_port" json:"callback_port"`
}

// UIConfig holds presentation settings.
type UIConfig struct {
	Theme    string `toml:"theme" json:"theme"` // "dark" or "light"
	Markdown bool   `toml:"markdown" json:"markdown"`
}

// StorageConfig holds local persistence settings.
type StorageConfig struct {
	// Dir overrides the default ~/.dora data directory.
	Dir string `toml:"dir" json:"dir"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			URL:                "http://localhost:8000",
			RequestTimeout:     30 * time.Second,
			RefreshTimeout:     15 * time.Second,
			KBRefetchPerSecond: 1,
		},
		OAuth: OAuthConfig{
			CallbackPort: 8910,
		},
		UI: UIConfig{
			Theme:    "dark",
			Markdown: true,
		},
	}
}

// =============================================================================
// PATHS
// =============================================================================

// Dir returns the dora config/data directory, honoring StorageConfig.Dir
// when set and DORA_HOME always.
func Dir() (string, error) {
	if dir := os.Getenv("DORA_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".dora"), nil
}

// Path returns the TOML config file path.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load reads the config file, fills defaults, and applies environment
// overrides. A missing file is not an error; defaults are returned.
func Load() (*Config, error) {
	// .env is a development convenience; absence is fine.
	_ = godotenv.Load()

	cfg := Default()

	path, err := Path()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	cfg.fillDefaults()
	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// Save writes the config as TOML with owner-only permissions.
func Save(cfg *Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return util.AtomicWriteFile(path, buf.Bytes(), 0600)
}

func (c *Config) fillDefaults() {
	def := Default()
	if c.Backend.URL == "" {
		c.Backend.URL = def.Backend.URL
	}
	if c.Backend.RequestTimeout <= 0 {
		c.Backend.RequestTimeout = def.Backend.RequestTimeout
	}
	if c.Backend.RefreshTimeout <= 0 {
		c.Backend.RefreshTimeout = def.Backend.RefreshTimeout
	}
	if c.Backend.KBRefetchPerSecond <= 0 {
		c.Backend.KBRefetchPerSecond = def.Backend.KBRefetchPerSecond
	}
	if c.OAuth.CallbackPort <= 0 {
		c.OAuth.CallbackPort = def.OAuth.CallbackPort
	}
	if c.UI.Theme == "" {
		c.UI.Theme = def.UI.Theme
	}
}

// ApplyEnvOverrides lets the environment win over the file. GOOGLE_CLIENT_ID
// is accepted without the DORA_ prefix because that is the name the backend
// deployment already uses.
func (c *Config) ApplyEnvOverrides() {
	if url := os.Getenv("DORA_BACKEND_URL"); url != "" {
		c.Backend.URL = url
	}
	if id := os.Getenv("GOOGLE_CLIENT_ID"); id != "" {
		c.OAuth.ClientID = id
	}
	if id := os.Getenv("DORA_CLIENT_ID"); id != "" {
		c.OAuth.ClientID = id
	}
	if port := os.Getenv("DORA_CALLBACK_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil && p > 0 {
			c.OAuth.CallbackPort = p
		}
	}
	if theme := os.Getenv("DORA_THEME"); theme != "" {
		c.UI.Theme = theme
	}
	if dir := os.Getenv("DORA_DATA_DIR"); dir != "" {
		c.Storage.Dir = dir
	}
}

// DataDir returns the directory for durable state (token store, chat
// database), falling back to the config directory.
func (c *Config) DataDir() (string, error) {
	if c.Storage.Dir != "" {
		return c.Storage.Dir, nil
	}
	return Dir()
}

// Validate reports configuration the client cannot run with.
func (c *Config) Validate() error {
	if c.Backend.URL == "" {
		return fmt.Errorf("backend.url must not be empty")
	}
	return nil
}
