// Copyright (c) 2025 Surya Hanjaya
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat REPL for the dora CLI.
//
// Commands during chat:
//   /new            Start a new chat session
//   /sessions       List saved sessions
//   /switch ID      Switch to a saved session
//   /sources        Show sources for the last answer
//   /quit, /q       Exit chat
//   Ctrl+D          Exit chat
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/peterh/liner"
	"golang.org/x/term"

	"github.com/suryahanjaya/lenrag-sub000/internal/model"
)

// HandleChat runs the liner-based chat REPL.
func HandleChat(app *App) error {
	if app.Tokens.AccessToken() == "" {
		return fmt.Errorf("not signed in; run 'dora login' first")
	}

	interactive := term.IsTerminal(int(os.Stdin.Fd()))

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	historyPath := ""
	if dir, err := app.Cfg.DataDir(); err == nil {
		historyPath = filepath.Join(dir, "chat_history")
		if f, err := os.Open(historyPath); err == nil {
			line.ReadHistory(f)
			f.Close()
		}
	}
	defer func() {
		if historyPath == "" {
			return
		}
		if f, err := os.Create(historyPath); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()

	if interactive {
		fmt.Println("dora chat. Ask about your documents; /quit to exit.")
	}

	ctx := context.Background()
	app.Container.RestoreActiveSession(ctx)

	var lastSources []model.SourceRef
	for {
		input, err := line.Prompt("you> ")
		if err != nil {
			// liner returns io.EOF on Ctrl+D and ErrPromptAborted on Ctrl+C.
			fmt.Println()
			return nil
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			if quit := handleChatCommand(ctx, app, input, lastSources); quit {
				return nil
			}
			continue
		}

		reply, err := app.Container.SendMessage(ctx, input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", describeErr(err))
			continue
		}
		if reply == nil {
			continue
		}
		lastSources = reply.Sources
		printAnswer(reply.Content, interactive)
	}
}

func handleChatCommand(ctx context.Context, app *App, input string, lastSources []model.SourceRef) bool {
	fields := strings.Fields(input)
	switch fields[0] {
	case "/quit", "/q", "/exit":
		return true
	case "/new":
		app.Container.NewSession()
		fmt.Println("Started a new chat.")
	case "/sessions":
		HandleSessions(app, nil)
	case "/switch":
		if len(fields) < 2 {
			fmt.Println("usage: /switch SESSION_ID")
			return false
		}
		if err := app.Container.SwitchSession(ctx, fields[1]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return false
		}
		fmt.Println("Switched session.")
	case "/sources":
		if len(lastSources) == 0 {
			fmt.Println("No sources for the last answer.")
			return false
		}
		for _, s := range lastSources {
			fmt.Printf("  - %s\n", s.DocumentName)
		}
	default:
		fmt.Println("Commands: /new /sessions /switch ID /sources /quit")
	}
	return false
}

// printAnswer writes the assistant reply, syntax-highlighting fenced
// code blocks when attached to a terminal.
func printAnswer(content string, interactive bool) {
	if !interactive {
		fmt.Println(content)
		return
	}
	for _, segment := range splitFences(content) {
		if segment.lang == "" {
			fmt.Println(segment.text)
			continue
		}
		if err := quick.Highlight(os.Stdout, segment.text, segment.lang, "terminal256", "monokai"); err != nil {
			fmt.Println(segment.text)
		}
		fmt.Println()
	}
}

type fenceSegment struct {
	lang string // empty for prose
	text string
}

// splitFences separates ```lang fenced blocks from prose.
func splitFences(content string) []fenceSegment {
	var segments []fenceSegment
	var prose, code strings.Builder
	lang := ""
	inFence := false

	flushProse := func() {
		if prose.Len() > 0 {
			segments = append(segments, fenceSegment{text: strings.TrimRight(prose.String(), "\n")})
			prose.Reset()
		}
	}

	for _, lineText := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(lineText)
		if strings.HasPrefix(trimmed, "```") {
			if inFence {
				segments = append(segments, fenceSegment{lang: lang, text: code.String()})
				code.Reset()
				inFence = false
				lang = ""
			} else {
				flushProse()
				inFence = true
				lang = strings.TrimPrefix(trimmed, "```")
				if lang == "" {
					lang = "text"
				}
			}
			continue
		}
		if inFence {
			code.WriteString(lineText + "\n")
		} else {
			prose.WriteString(lineText + "\n")
		}
	}
	if inFence {
		segments = append(segments, fenceSegment{lang: lang, text: code.String()})
	}
	flushProse()
	return segments
}
