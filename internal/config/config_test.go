// Copyright (c) 2025 Surya Hanjaya
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	t.Setenv("DORA_HOME", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000", cfg.Backend.URL)
	assert.Equal(t, 30*time.Second, cfg.Backend.RequestTimeout)
	assert.Equal(t, 15*time.Second, cfg.Backend.RefreshTimeout)
	assert.Equal(t, 8910, cfg.OAuth.CallbackPort)
	assert.Equal(t, "dark", cfg.UI.Theme)
	assert.True(t, cfg.UI.Markdown)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DORA_HOME", dir)

	content := `
[backend]
url = "https://rag.example.com"

[ui]
theme = "light"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://rag.example.com", cfg.Backend.URL)
	assert.Equal(t, "light", cfg.UI.Theme)
	// Unset fields keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.Backend.RequestTimeout)
}

func TestLoad_EnvWinsOverFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DORA_HOME", dir)

	content := `
[backend]
url = "https://from-file.example.com"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0600))

	t.Setenv("DORA_BACKEND_URL", "https://from-env.example.com")
	t.Setenv("GOOGLE_CLIENT_ID", "google-id")
	t.Setenv("DORA_CALLBACK_PORT", "9999")
	t.Setenv("DORA_THEME", "light")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://from-env.example.com", cfg.Backend.URL)
	assert.Equal(t, "google-id", cfg.OAuth.ClientID)
	assert.Equal(t, 9999, cfg.OAuth.CallbackPort)
	assert.Equal(t, "light", cfg.UI.Theme)
}

func TestApplyEnvOverrides_DoraClientIDWins(t *testing.T) {
	t.Setenv("GOOGLE_CLIENT_ID", "generic")
	t.Setenv("DORA_CLIENT_ID", "specific")

	cfg := Default()
	cfg.ApplyEnvOverrides()
	assert.Equal(t, "specific", cfg.OAuth.ClientID)
}

func TestApplyEnvOverrides_BadPortIgnored(t *testing.T) {
	t.Setenv("DORA_CALLBACK_PORT", "not-a-port")

	cfg := Default()
	cfg.ApplyEnvOverrides()
	assert.Equal(t, 8910, cfg.OAuth.CallbackPort)
}

func TestSaveLoad_Roundtrip(t *testing.T) {
	t.Setenv("DORA_HOME", t.TempDir())

	cfg := Default()
	cfg.Backend.URL = "https://saved.example.com"
	cfg.OAuth.ClientID = "client-1"
	cfg.UI.Theme = "light"
	require.NoError(t, Save(cfg))

	loaded, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://saved.example.com", loaded.Backend.URL)
	assert.Equal(t, "client-1", loaded.OAuth.ClientID)
	assert.Equal(t, "light", loaded.UI.Theme)
}

func TestLoad_MalformedFileErrors(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DORA_HOME", dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[backend\nbroken"), 0600))

	_, err := Load()
	assert.Error(t, err)
}

func TestDataDir_StorageDirWins(t *testing.T) {
	t.Setenv("DORA_HOME", "/tmp/dora-home")

	cfg := Default()
	dir, err := cfg.DataDir()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/dora-home", dir)

	cfg.Storage.Dir = "/tmp/elsewhere"
	dir, err = cfg.DataDir()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/elsewhere", dir)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
	cfg.Backend.URL = ""
	assert.Error(t, cfg.Validate())
}
