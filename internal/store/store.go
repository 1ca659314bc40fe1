// Copyright (c) 2025 Surya Hanjaya
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store implements the persistent token store: a dumb durable
// string map keyed by fixed names, backed by a JSON file under the user
// config directory. It is the terminal analog of browser localStorage and
// no component touches tokens except through it.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/suryahanjaya/lenrag-sub000/internal/util"
)

// Fixed storage keys. Other components address the store only through
// these names.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyTokenExpiry  = "token_expiry"
	KeyUser         = "user"
	KeyTheme        = "theme"
	KeyUploadState  = "bulk_upload_state"
	KeyActiveChatID = "activeChatId"
)

const stateFileName = "state.json"

// Store is a durable key-value map. All operations are safe for
// concurrent use.
//
// RELIABILITY: when the backing directory cannot be created or read, the
// store degrades to in-memory no-ops and Get returns empty strings.
// Callers must tolerate that, the same way the web client tolerated
// storage being unavailable.
type Store struct {
	mu        sync.Mutex
	path      string
	values    map[string]string
	available bool
}

// Open loads (or initializes) the store under dir. A failure to prepare
// the directory does not return an error; it yields a degraded store.
func Open(dir string) *Store {
	s := &Store{
		path:   filepath.Join(dir, stateFileName),
		values: make(map[string]string),
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return s
	}
	s.available = true

	data, err := os.ReadFile(s.path)
	if err != nil {
		return s
	}
	// A corrupted state file is dropped rather than propagated; the user
	// re-authenticates and the file is rewritten on the next Put.
	var values map[string]string
	if err := json.Unmarshal(data, &values); err == nil && values != nil {
		s.values = values
	}
	return s
}

// Put stores value under key and persists the map durably.
func (s *Store) Put(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	s.persistLocked()
}

// Get returns the stored value, or "" when absent or unavailable.
func (s *Store) Get(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key]
}

// Remove deletes one key and persists.
func (s *Store) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	s.persistLocked()
}

// ClearAll wipes every key and persists the empty map.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]string)
	s.persistLocked()
}

// Available reports whether writes actually reach disk.
func (s *Store) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.available
}

func (s *Store) persistLocked() {
	if !s.available {
		return
	}
	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return
	}
	// Tokens live in this file, keep it owner-only.
	if err := util.AtomicWriteFile(s.path, data, 0600); err != nil {
		// Disk went away mid-session; degrade instead of failing callers.
		s.available = false
	}
}
