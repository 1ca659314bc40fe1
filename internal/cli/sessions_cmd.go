// Copyright (c) 2025 Surya Hanjaya
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/suryahanjaya/lenrag-sub000/internal/config"
)

// HandleSessions lists saved chat sessions, or deletes one with
// "sessions rm ID".
func HandleSessions(app *App, args []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if len(args) >= 2 && args[0] == "rm" {
		if err := app.Sessions.Delete(ctx, args[1]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return
		}
		fmt.Println("Deleted.")
		return
	}

	sessions, err := app.Sessions.List(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return
	}
	if len(sessions) == 0 {
		fmt.Println("No saved sessions.")
		return
	}
	for _, s := range sessions {
		fmt.Printf("  %s  %s  %3d msgs  %s\n",
			s.ID,
			runewidth.FillRight(runewidth.Truncate(s.Title, 40, "..."), 40),
			s.MessageCount,
			s.UpdatedAt.Format("2006-01-02 15:04"))
	}
}

// HandleConfig prints the active configuration.
func HandleConfig(app *App) {
	path, _ := config.Path()
	fmt.Printf("Config file:  %s\n", path)
	fmt.Printf("Backend URL:  %s\n", app.Cfg.Backend.URL)
	fmt.Printf("Client ID:    %s\n", maskSecret(app.Cfg.OAuth.ClientID))
	fmt.Printf("Theme:        %s\n", app.Cfg.UI.Theme)
	fmt.Printf("Timeouts:     request %s, refresh %s\n",
		app.Cfg.Backend.RequestTimeout, app.Cfg.Backend.RefreshTimeout)
}

func maskSecret(value string) string {
	if value == "" {
		return "(not set)"
	}
	if len(value) <= 12 {
		return "***"
	}
	return value[:8] + "..." + value[len(value)-4:]
}
