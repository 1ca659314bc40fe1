// dora - terminal client for a document-retrieval chat assistant.
//
// Copyright (c) 2025 Surya Hanjaya
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/suryahanjaya/lenrag-sub000/internal/cli"
	"github.com/suryahanjaya/lenrag-sub000/internal/config"
	"github.com/suryahanjaya/lenrag-sub000/internal/store"
	"github.com/suryahanjaya/lenrag-sub000/internal/ui"
	"github.com/suryahanjaya/lenrag-sub000/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse()

	switch cmd {
	case cli.CmdVersion:
		cli.HandleVersion()
		return
	case cli.CmdHelp:
		cli.HandleHelp()
		return
	}

	app, err := cli.NewApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	switch cmd {
	case cli.CmdLogin:
		if err := cli.HandleLogin(app); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case cli.CmdLogout:
		cli.HandleLogout(app)
	case cli.CmdStatus:
		initTokens(app)
		cli.HandleStatus(app)
	case cli.CmdChat:
		initTokens(app)
		if err := cli.HandleChat(app); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case cli.CmdDocs:
		initTokens(app)
		if err := cli.HandleDocs(app, args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case cli.CmdUpload:
		initTokens(app)
		if err := cli.HandleUpload(app, args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case cli.CmdSessions:
		cli.HandleSessions(app, args)
	case cli.CmdConfig:
		cli.HandleConfig(app)
	default:
		runTUI(app)
	}
}

// initTokens restores the refresh schedule before any backend call.
func initTokens(app *cli.App) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := app.Tokens.Initialize(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Warning: token refresh failed; run 'dora login' to sign in again.")
	}
}

func runTUI(app *cli.App) {
	initTokens(app)

	app.Tokens.SetSessionExpiredCallback(func(err error) {
		ui.NotifySessionExpired(err)
	})
	app.Container.SetChangeCallback(ui.Notify)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	app.Container.RestoreActiveSession(ctx)
	cancel()

	// Surface an interrupted upload from a previous run, if any.
	app.Container.RestoreUploadState(10 * time.Second)

	// The last used theme wins over the config default, and the choice is
	// persisted for the next run.
	themeName := app.Store.Get(store.KeyTheme)
	if themeName == "" {
		themeName = app.Cfg.UI.Theme
	}
	app.Store.Put(store.KeyTheme, themeName)

	theme := styles.NewTheme(themeName)
	program := tea.NewProgram(
		ui.New(theme, app.Container, app.Tokens),
		tea.WithAltScreen(),
	)
	ui.SetProgram(program)

	// Config edits (theme, backend URL) apply live where they can.
	watcher, err := config.Watch(func(cfg *config.Config) {
		app.Cfg.UI.Theme = cfg.UI.Theme
		app.Store.Put(store.KeyTheme, cfg.UI.Theme)
		ui.Notify()
	})
	if err == nil {
		defer watcher.Close()
	} else {
		log.Printf("main: config watch unavailable: %v", err)
	}

	if _, err := program.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
