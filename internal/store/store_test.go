// Copyright (c) 2025 Surya Hanjaya
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_PutGetRemove(t *testing.T) {
	s := Open(t.TempDir())
	require.True(t, s.Available())

	assert.Empty(t, s.Get(KeyAccessToken))

	s.Put(KeyAccessToken, "tok")
	assert.Equal(t, "tok", s.Get(KeyAccessToken))

	s.Remove(KeyAccessToken)
	assert.Empty(t, s.Get(KeyAccessToken))
}

func TestStore_DurableAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	first := Open(dir)
	first.Put(KeyRefreshToken, "refresh")
	first.Put(KeyTheme, "dark")

	second := Open(dir)
	assert.Equal(t, "refresh", second.Get(KeyRefreshToken))
	assert.Equal(t, "dark", second.Get(KeyTheme))
}

func TestStore_ClearAll(t *testing.T) {
	dir := t.TempDir()
	s := Open(dir)
	s.Put(KeyAccessToken, "a")
	s.Put(KeyRefreshToken, "b")

	s.ClearAll()
	assert.Empty(t, s.Get(KeyAccessToken))
	assert.Empty(t, s.Get(KeyRefreshToken))

	// The wipe is durable too.
	reopened := Open(dir)
	assert.Empty(t, reopened.Get(KeyAccessToken))
}

func TestStore_UnavailableDegradesToNoops(t *testing.T) {
	// A file where the directory should be makes MkdirAll fail.
	dir := t.TempDir()
	blocked := filepath.Join(dir, "occupied")
	require.NoError(t, os.WriteFile(blocked, []byte("x"), 0600))

	s := Open(filepath.Join(blocked, "nested"))
	assert.False(t, s.Available())

	// All operations are tolerated; Get just returns empty.
	s.Put(KeyAccessToken, "tok")
	assert.Equal(t, "tok", s.Get(KeyAccessToken), "in-memory value still readable this session")
	s.ClearAll()
	assert.Empty(t, s.Get(KeyAccessToken))
}

func TestStore_CorruptedFileDropped(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "state.json"), []byte("{broken"), 0600))

	s := Open(dir)
	assert.True(t, s.Available())
	assert.Empty(t, s.Get(KeyAccessToken))

	// Writes still work after dropping the corrupt file.
	s.Put(KeyAccessToken, "tok")
	assert.Equal(t, "tok", Open(dir).Get(KeyAccessToken))
}
