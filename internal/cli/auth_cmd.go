// Copyright (c) 2025 Surya Hanjaya
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/suryahanjaya/lenrag-sub000/internal/auth"
	"github.com/suryahanjaya/lenrag-sub000/internal/model"
	"github.com/suryahanjaya/lenrag-sub000/internal/store"
)

// HandleLogin runs the browser sign-in flow and stores the resulting
// tokens.
func HandleLogin(app *App) error {
	flow, err := app.NewFlow()
	if err != nil {
		if errors.Is(err, auth.ErrMissingClientID) {
			return errors.New("GOOGLE_CLIENT_ID is not set; configure oauth.client_id or the environment variable")
		}
		return err
	}

	fmt.Println("Opening your browser for Google sign-in...")
	fmt.Println("If it does not open, sign in at the URL printed below.")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	user, err := flow.SignIn(ctx)
	if err != nil {
		return fmt.Errorf("sign-in failed: %w", err)
	}
	if user != nil {
		fmt.Printf("Signed in as %s <%s>\n", user.Name, user.Email)
	} else {
		fmt.Println("Signed in.")
	}
	return nil
}

// HandleLogout clears every stored credential.
func HandleLogout(app *App) {
	app.Tokens.ClearTokens()
	fmt.Println("Signed out. Stored credentials removed.")
}

// HandleStatus reports sign-in state and knowledge-base size.
func HandleStatus(app *App) {
	if app.Tokens.AccessToken() == "" {
		fmt.Println("Status: signed out. Run 'dora login' to sign in.")
		return
	}

	state := "valid"
	if app.Tokens.IsExpired() {
		state = "expired (will refresh on next use)"
	}
	fmt.Printf("Status: signed in, access token %s\n", state)

	ctx, cancel := context.WithTimeout(context.Background(), app.Cfg.Backend.RequestTimeout)
	defer cancel()

	printAccount(ctx, app)
	kb, err := app.Client.KnowledgeBase(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Knowledge base: unavailable (%v)\n", err)
		return
	}
	chunks := 0
	for _, doc := range kb {
		chunks += doc.ChunkCount
	}
	fmt.Printf("Knowledge base: %d documents, %d chunks\n", len(kb), chunks)
}

// printAccount prefers the locally stored profile and falls back to the
// backend profile endpoint.
func printAccount(ctx context.Context, app *App) {
	if raw := app.Store.Get(store.KeyUser); raw != "" {
		var user model.User
		if json.Unmarshal([]byte(raw), &user) == nil && user.Email != "" {
			fmt.Printf("Account: %s <%s>\n", user.Name, user.Email)
			return
		}
	}
	if user, err := app.Client.UserProfile(ctx); err == nil && user.Email != "" {
		fmt.Printf("Account: %s <%s>\n", user.Name, user.Email)
	}
}
