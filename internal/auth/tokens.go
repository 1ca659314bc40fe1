// Copyright (c) 2025 Surya Hanjaya
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth owns the credential lifecycle: the token manager that
// keeps the access token fresh with a single scheduled refresh, and the
// Google sign-in flow that produces the initial tokens.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/suryahanjaya/lenrag-sub000/internal/store"
)

// =============================================================================
// CONSTANTS & ERRORS
// =============================================================================

const (
	// RefreshBuffer is subtracted from the nominal token lifetime so the
	// refresh fires while the old token is still valid.
	RefreshBuffer = 5 * time.Minute

	// NominalTokenLifetime is assumed when the code exchange does not
	// report an explicit expires_in.
	NominalTokenLifetime = time.Hour

	defaultRefreshTimeout = 15 * time.Second
)

var (
	ErrNoRefreshToken = errors.New("no refresh token stored")
	ErrRefreshFailed  = errors.New("token refresh failed")
)

// =============================================================================
// TOKEN MANAGER
// =============================================================================

// Manager schedules silent access-token refreshes. One instance is
// constructed at startup and shared by reference; it owns the only
// refresh timer in the process.
//
// Every SaveTokens cancels the previous timer before arming a new one,
// so two refresh chains can never run concurrently. A generation counter
// guards against a timer that fired while being replaced.
type Manager struct {
	mu         sync.Mutex
	store      *store.Store
	sealer     *Sealer
	baseURL    string
	httpClient *http.Client

	timer      *time.Timer
	generation uint64

	// onSessionExpired runs after an irrecoverable refresh failure has
	// cleared the credentials. It is the sign-in redirect analog.
	onSessionExpired func(err error)

	nowFunc func() time.Time
}

// NewManager creates a token manager over the given store and backend
// base URL. sealer may be nil, in which case the refresh token is stored
// unencrypted.
func NewManager(st *store.Store, baseURL string, sealer *Sealer) *Manager {
	return &Manager{
		store:      st,
		sealer:     sealer,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultRefreshTimeout},
		nowFunc:    time.Now,
	}
}

// WithRefreshTimeout overrides the timeout applied to refresh calls.
func (m *Manager) WithRefreshTimeout(d time.Duration) *Manager {
	if d > 0 {
		m.httpClient.Timeout = d
	}
	return m
}

// SetSessionExpiredCallback registers the handler invoked when a refresh
// fails irrecoverably and the session must re-authenticate.
func (m *Manager) SetSessionExpiredCallback(fn func(err error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSessionExpired = fn
}

// SaveTokens persists a new credential record and (re)starts the refresh
// schedule. Expiry is recorded as issue time plus lifetime minus the
// fixed safety buffer, in epoch milliseconds. refresh may be empty when
// the provider did not return one.
func (m *Manager) SaveTokens(access, refresh string, expiresIn time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	expiry := m.nowFunc().Add(expiresIn - RefreshBuffer).UnixMilli()

	m.store.Put(store.KeyAccessToken, access)
	m.store.Put(store.KeyTokenExpiry, strconv.FormatInt(expiry, 10))
	if refresh != "" {
		m.store.Put(store.KeyRefreshToken, m.seal(refresh))
	}

	m.armLocked()
}

// AccessToken returns the stored access token, empty when signed out.
func (m *Manager) AccessToken() string {
	return m.store.Get(store.KeyAccessToken)
}

// RefreshToken returns the stored refresh token, unsealed.
func (m *Manager) RefreshToken() string {
	value := m.store.Get(store.KeyRefreshToken)
	if value == "" || m.sealer == nil {
		return value
	}
	plain, err := m.sealer.Open(value)
	if err != nil {
		log.Printf("auth: failed to unseal refresh token: %v", err)
		return ""
	}
	return plain
}

// IsExpired reports whether the recorded expiry has passed. A missing
// expiry counts as expired.
func (m *Manager) IsExpired() bool {
	raw := m.store.Get(store.KeyTokenExpiry)
	if raw == "" {
		return true
	}
	expiry, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return true
	}
	return m.nowFunc().UnixMilli() >= expiry
}

// refreshResponse is the backend's answer to POST /auth/refresh.
type refreshResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"` // seconds
}

// Refresh exchanges the stored refresh token for a new access token.
//
// With no refresh token stored it fails immediately and performs no
// network call. Any other failure, HTTP or transport, is fatal to the
// session: all credentials are cleared and the caller must send the user
// back through sign-in. On success the new access token is saved with
// the SAME refresh token (the backend does not rotate them), which also
// re-arms the schedule.
func (m *Manager) Refresh(ctx context.Context) error {
	refresh := m.RefreshToken()
	if refresh == "" {
		return ErrNoRefreshToken
	}

	body, _ := json.Marshal(map[string]string{"refresh_token": refresh})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/auth/refresh", bytes.NewReader(body))
	if err != nil {
		m.ClearTokens()
		return fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		// Transport errors are treated the same as auth failures: the
		// session ends rather than retrying against an unknown state.
		m.ClearTokens()
		return fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		m.ClearTokens()
		return fmt.Errorf("%w: status %d", ErrRefreshFailed, resp.StatusCode)
	}

	var parsed refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil || parsed.AccessToken == "" {
		m.ClearTokens()
		return fmt.Errorf("%w: invalid response", ErrRefreshFailed)
	}

	expiresIn := time.Duration(parsed.ExpiresIn) * time.Second
	if parsed.ExpiresIn <= 0 {
		expiresIn = NominalTokenLifetime
	}
	m.SaveTokens(parsed.AccessToken, refresh, expiresIn)
	return nil
}

// StartAutoRefresh arms the refresh schedule from the stored expiry. If
// the refresh point has already passed, it refreshes immediately instead
// of arming a timer.
func (m *Manager) StartAutoRefresh() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.armLocked()
}

// armLocked cancels any armed timer and schedules the next refresh.
// Caller holds m.mu.
func (m *Manager) armLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.generation++
	gen := m.generation

	raw := m.store.Get(store.KeyTokenExpiry)
	if raw == "" {
		return
	}
	expiry, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return
	}

	delay := time.Duration(expiry-m.nowFunc().UnixMilli()) * time.Millisecond
	if delay <= 0 {
		go m.fire(gen)
		return
	}
	m.timer = time.AfterFunc(delay, func() { m.fire(gen) })
}

// fire runs one link of the refresh chain. A stale generation means the
// timer was replaced between scheduling and firing; it does nothing.
func (m *Manager) fire(gen uint64) {
	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return
	}
	onExpired := m.onSessionExpired
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.httpClient.Timeout)
	defer cancel()

	if err := m.Refresh(ctx); err != nil {
		log.Printf("auth: scheduled refresh failed: %v", err)
		if onExpired != nil {
			onExpired(err)
		}
		return
	}
	// Success re-armed the chain through SaveTokens.
}

// Initialize restores the refresh schedule at startup. With both tokens
// present it either refreshes immediately (already expired) or arms the
// timer; otherwise it leaves the session signed out. Safe to call more
// than once, each call cancels before arming.
func (m *Manager) Initialize(ctx context.Context) error {
	if m.AccessToken() == "" || m.RefreshToken() == "" {
		return nil
	}
	if m.IsExpired() {
		return m.Refresh(ctx)
	}
	m.StartAutoRefresh()
	return nil
}

// ClearTokens removes every credential key, cancels the armed timer, and
// drops the persisted user profile.
func (m *Manager) ClearTokens() {
	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.generation++
	m.mu.Unlock()

	m.store.Remove(store.KeyAccessToken)
	m.store.Remove(store.KeyRefreshToken)
	m.store.Remove(store.KeyTokenExpiry)
	m.store.Remove(store.KeyUser)
}

// HasTimer reports whether a refresh timer is currently armed.
func (m *Manager) HasTimer() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timer != nil
}

func (m *Manager) seal(value string) string {
	if m.sealer == nil {
		return value
	}
	sealed, err := m.sealer.Seal(value)
	if err != nil {
		log.Printf("auth: failed to seal refresh token: %v", err)
		return value
	}
	return sealed
}
