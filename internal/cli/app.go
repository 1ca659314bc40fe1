// Copyright (c) 2025 Surya Hanjaya
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/suryahanjaya/lenrag-sub000/internal/auth"
	"github.com/suryahanjaya/lenrag-sub000/internal/backend"
	"github.com/suryahanjaya/lenrag-sub000/internal/config"
	"github.com/suryahanjaya/lenrag-sub000/internal/session"
	"github.com/suryahanjaya/lenrag-sub000/internal/storage"
	"github.com/suryahanjaya/lenrag-sub000/internal/store"
)

// App wires the client components together: config, token store, token
// manager, backend client, chat persistence, and the session container.
type App struct {
	Cfg       *config.Config
	Store     *store.Store
	Tokens    *auth.Manager
	Client    *backend.Client
	Sessions  *storage.SessionStore
	Container *session.Container
}

// NewApp builds the full component graph and restores the token refresh
// schedule. Background logging goes to a file so it never corrupts the
// terminal UI.
func NewApp() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dataDir, err := cfg.DataDir()
	if err != nil {
		return nil, err
	}

	st := store.Open(dataDir)

	if logFile, err := os.OpenFile(filepath.Join(dataDir, "dora.log"),
		os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600); err == nil {
		log.SetOutput(logFile)
	}

	sealer, err := auth.NewSealer(dataDir)
	if err != nil {
		// Sealing is defense in depth; a read-only disk already degraded
		// the store itself.
		log.Printf("cli: refresh token sealing unavailable: %v", err)
		sealer = nil
	}

	tokens := auth.NewManager(st, cfg.Backend.URL, sealer).
		WithRefreshTimeout(cfg.Backend.RefreshTimeout)

	client := backend.NewClient(cfg.Backend.URL, tokens).
		WithTimeout(cfg.Backend.RequestTimeout)

	sessions, err := storage.Open(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open chat storage: %w", err)
	}

	container := session.New(client, st, sessions, cfg.Backend.KBRefetchPerSecond)

	return &App{
		Cfg:       cfg,
		Store:     st,
		Tokens:    tokens,
		Client:    client,
		Sessions:  sessions,
		Container: container,
	}, nil
}

// Close releases held resources.
func (a *App) Close() {
	if a.Sessions != nil {
		a.Sessions.Close()
	}
}

// NewFlow builds the sign-in flow from the app's configuration.
func (a *App) NewFlow() (*auth.Flow, error) {
	return auth.NewFlow(a.Cfg.OAuth.ClientID, a.Cfg.OAuth.CallbackPort,
		a.Cfg.Backend.URL, a.Tokens, a.Store)
}
