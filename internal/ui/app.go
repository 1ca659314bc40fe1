// Copyright (c) 2025 Surya Hanjaya
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui implements the dora dashboard TUI: document browser,
// knowledge base view, chat transcript, and upload progress.
package ui

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/suryahanjaya/lenrag-sub000/internal/auth"
	"github.com/suryahanjaya/lenrag-sub000/internal/session"
	"github.com/suryahanjaya/lenrag-sub000/internal/ui/styles"
)

// =============================================================================
// MESSAGES
// =============================================================================

// stateChangedMsg means the session container mutated; re-render.
type stateChangedMsg struct{}

// opDoneMsg reports a finished background operation.
type opDoneMsg struct{ err error }

// sessionExpiredMsg means the refresh chain failed and the user must
// sign in again.
type sessionExpiredMsg struct{ err error }

// Tab identifies the active view.
type Tab int

const (
	TabDocuments Tab = iota
	TabKnowledge
	TabChat
)

// inputMode says what the text input currently collects.
type inputMode int

const (
	inputNone inputMode = iota
	inputChat
	inputFolderScan
	inputFolderUpload
)

// =============================================================================
// MODEL
// =============================================================================

// Model is the Bubble Tea model for the dashboard.
type Model struct {
	theme     *styles.Theme
	container *session.Container
	tokens    *auth.Manager

	width  int
	height int

	tab      Tab
	cursor   int
	mode     inputMode
	input    textinput.Model
	progress progress.Model
	spinner  spinner.Model
	busy     bool

	statusErr bool
	quitting  bool
}

// program is used by background callbacks to wake the UI loop.
var (
	program   *tea.Program
	programMu sync.Mutex
)

// SetProgram registers the running program so container callbacks can
// push stateChangedMsg into the loop.
func SetProgram(p *tea.Program) {
	programMu.Lock()
	program = p
	programMu.Unlock()
}

// Notify wakes the UI loop after out-of-band state changes.
func Notify() {
	programMu.Lock()
	p := program
	programMu.Unlock()
	if p != nil {
		p.Send(stateChangedMsg{})
	}
}

// NotifySessionExpired pushes a sign-in-required notice into the loop.
func NotifySessionExpired(err error) {
	programMu.Lock()
	p := program
	programMu.Unlock()
	if p != nil {
		p.Send(sessionExpiredMsg{err: err})
	}
}

// New creates the dashboard model.
func New(theme *styles.Theme, container *session.Container, tokens *auth.Manager) Model {
	input := textinput.New()
	input.CharLimit = 4000

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		theme:     theme,
		container: container,
		tokens:    tokens,
		tab:       TabDocuments,
		input:     input,
		progress:  progress.New(progress.WithDefaultGradient()),
		spinner:   sp,
	}
}

// Init loads the initial document and knowledge-base listings.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.runOp(func(ctx context.Context) error {
			if err := m.container.RefreshDocuments(ctx); err != nil {
				return err
			}
			return m.container.RefreshKnowledgeBase(ctx)
		}),
	)
}

// runOp executes a container operation off the UI loop.
func (m Model) runOp(op func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		return opDoneMsg{err: op(ctx)}
	}
}

// =============================================================================
// UPDATE
// =============================================================================

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = max(10, msg.Width-20)
		return m, nil

	case stateChangedMsg:
		return m, nil

	case opDoneMsg:
		m.busy = false
		m.statusErr = msg.err != nil
		return m, nil

	case sessionExpiredMsg:
		m.container.SetStatus("Session expired, run 'dora login' to sign in again")
		m.statusErr = true
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	if m.mode != inputNone {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Text entry swallows everything except enter and escape.
	if m.mode != inputNone {
		switch msg.Type {
		case tea.KeyEnter:
			return m.submitInput()
		case tea.KeyEsc:
			m.mode = inputNone
			m.input.Blur()
			return m, nil
		default:
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}
	}

	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "tab":
		m.tab = (m.tab + 1) % 3
		m.cursor = 0
		return m, nil
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case "down", "j":
		m.cursor++
		if limit := m.cursorLimit(); m.cursor > limit {
			m.cursor = limit
		}
		return m, nil
	case " ":
		if m.tab == TabDocuments {
			docs := m.container.Documents()
			if m.cursor < len(docs) {
				m.container.ToggleSelect(docs[m.cursor].ID)
			}
		}
		return m, nil
	case "a":
		if m.tab == TabDocuments {
			m.busy = true
			return m, m.runOp(m.container.AddSelectedToKnowledgeBase)
		}
		return m, nil
	case "d":
		if m.tab == TabKnowledge {
			kb := m.container.KnowledgeBase()
			if m.cursor < len(kb) {
				id := kb[m.cursor].ID
				m.busy = true
				return m, m.runOp(func(ctx context.Context) error {
					return m.container.RemoveFromKnowledgeBase(ctx, id)
				})
			}
		}
		return m, nil
	case "C":
		if m.tab == TabKnowledge {
			m.busy = true
			return m, m.runOp(m.container.ClearKnowledgeBase)
		}
		return m, nil
	case "r":
		m.busy = true
		switch m.tab {
		case TabKnowledge:
			return m, m.runOp(m.container.RefreshKnowledgeBase)
		default:
			return m, m.runOp(m.container.RefreshDocuments)
		}
	case "s":
		return m.enterInput(inputFolderScan, "Folder URL to scan"), nil
	case "u":
		return m.enterInput(inputFolderUpload, "Folder URL to upload"), nil
	case "enter", "i":
		if m.tab == TabChat {
			return m.enterInput(inputChat, "Ask about your documents"), nil
		}
		return m, nil
	case "[":
		if m.tab == TabChat {
			m.container.NavigateVersion(m.cursor, -1)
		}
		return m, nil
	case "]":
		if m.tab == TabChat {
			m.container.NavigateVersion(m.cursor, +1)
		}
		return m, nil
	case "n":
		if m.tab == TabChat {
			m.container.NewSession()
		}
		return m, nil
	}
	return m, nil
}

func (m Model) enterInput(mode inputMode, placeholder string) Model {
	m.mode = mode
	m.input.Placeholder = placeholder
	m.input.SetValue("")
	m.input.Focus()
	return m
}

func (m Model) submitInput() (tea.Model, tea.Cmd) {
	value := m.input.Value()
	mode := m.mode
	m.mode = inputNone
	m.input.Blur()
	if value == "" {
		return m, nil
	}

	m.busy = true
	switch mode {
	case inputChat:
		return m, m.runOp(func(ctx context.Context) error {
			_, err := m.container.SendMessage(ctx, value)
			return err
		})
	case inputFolderScan:
		return m, m.runOp(func(ctx context.Context) error {
			return m.container.ScanFolder(ctx, value)
		})
	case inputFolderUpload:
		return m, m.runOp(func(ctx context.Context) error {
			return m.container.StartBulkUpload(ctx, value)
		})
	}
	return m, nil
}

func (m Model) cursorLimit() int {
	switch m.tab {
	case TabDocuments:
		return max(0, len(m.container.Documents())-1)
	case TabKnowledge:
		return max(0, len(m.container.KnowledgeBase())-1)
	default:
		return max(0, len(m.container.Transcript())-1)
	}
}
