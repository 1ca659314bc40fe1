// Copyright (c) 2025 Surya Hanjaya
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli parses dora's command line and implements the non-TUI
// command handlers.
package cli

import (
	"fmt"
	"os"
)

// Version information, set at build time from main.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command is a top-level subcommand.
type Command int

const (
	CmdTUI Command = iota // default: launch the dashboard
	CmdLogin
	CmdLogout
	CmdStatus
	CmdChat
	CmdDocs
	CmdUpload
	CmdSessions
	CmdConfig
	CmdVersion
	CmdHelp
)

// Parse maps os.Args onto a command and its remaining arguments.
func Parse() (Command, []string) {
	if len(os.Args) < 2 {
		return CmdTUI, nil
	}
	args := os.Args[2:]
	switch os.Args[1] {
	case "login", "signin":
		return CmdLogin, args
	case "logout":
		return CmdLogout, args
	case "status":
		return CmdStatus, args
	case "chat":
		return CmdChat, args
	case "docs", "documents":
		return CmdDocs, args
	case "upload":
		return CmdUpload, args
	case "sessions":
		return CmdSessions, args
	case "config":
		return CmdConfig, args
	case "version", "--version", "-v":
		return CmdVersion, args
	case "help", "--help", "-h":
		return CmdHelp, args
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		return CmdHelp, nil
	}
}

// HandleVersion prints build information.
func HandleVersion() {
	fmt.Printf("dora %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
}

// HandleHelp prints usage.
func HandleHelp() {
	fmt.Print(`dora - terminal client for your document chat assistant

Usage:
  dora                 Launch the dashboard TUI
  dora login           Sign in with Google
  dora logout          Sign out and clear stored credentials
  dora status          Show sign-in and knowledge-base status
  dora chat            Interactive chat REPL
  dora docs            List recent documents
  dora docs tree       Show the full folder hierarchy
  dora docs scan URL   Recursively list a folder
  dora upload URL      Recursively ingest a folder into the knowledge base
  dora sessions        List saved chat sessions
  dora config          Show the active configuration
  dora version         Print version information

Environment:
  DORA_BACKEND_URL     Backend base URL
  GOOGLE_CLIENT_ID     OAuth client ID for sign-in
  DORA_HOME            Config/data directory (default ~/.dora)
`)
}
