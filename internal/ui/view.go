// Copyright (c) 2025 Surya Hanjaya
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-runewidth"

	"github.com/suryahanjaya/lenrag-sub000/internal/model"
)

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	switch m.tab {
	case TabDocuments:
		b.WriteString(m.renderDocuments())
	case TabKnowledge:
		b.WriteString(m.renderKnowledgeBase())
	case TabChat:
		b.WriteString(m.renderChat())
	}

	if p := m.container.Progress(); p != nil {
		b.WriteString("\n")
		b.WriteString(m.renderProgress(p))
	}

	b.WriteString("\n")
	b.WriteString(m.renderStatus())
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderHeader() string {
	signedIn := "signed out"
	if m.tokens.AccessToken() != "" {
		signedIn = "signed in"
	}
	tabs := []string{"Documents", "Knowledge Base", "Chat"}
	var parts []string
	for i, name := range tabs {
		if Tab(i) == m.tab {
			parts = append(parts, m.theme.TabActive.Render(name))
		} else {
			parts = append(parts, m.theme.TabIdle.Render(name))
		}
	}
	return m.theme.Header.Render("dora") + " " +
		strings.Join(parts, " ") + " " +
		m.theme.StatusInfo.Render("("+signedIn+")")
}

func (m Model) renderDocuments() string {
	docs := m.container.Documents()
	if len(docs) == 0 {
		return m.theme.StatusInfo.Render("  No documents. Press r to refresh or s to scan a folder.")
	}

	selected := make(map[string]bool)
	for _, id := range m.container.Selected() {
		selected[id] = true
	}

	maxName := 60
	if m.width > 0 && m.width-20 < maxName {
		maxName = m.width - 20
	}

	var b strings.Builder
	for i, doc := range docs {
		cursor := "  "
		if i == m.cursor {
			cursor = "> "
		}
		mark := "[ ]"
		if selected[doc.ID] {
			mark = "[x]"
		}
		name := runewidth.Truncate(doc.Name, maxName, "...")
		style := m.theme.DocName
		if doc.IsFolder {
			style = m.theme.DocFolder
		}
		if selected[doc.ID] {
			style = m.theme.DocSelected
		}
		fmt.Fprintf(&b, "%s%s %s\n", cursor, mark, style.Render(name))
	}
	return b.String()
}

func (m Model) renderKnowledgeBase() string {
	kb := m.container.KnowledgeBase()
	if len(kb) == 0 {
		return m.theme.StatusInfo.Render("  Knowledge base is empty. Add documents from the Documents tab.")
	}

	var b strings.Builder
	for i, doc := range kb {
		cursor := "  "
		if i == m.cursor {
			cursor = "> "
		}
		name := runewidth.Truncate(doc.Name, 60, "...")
		fmt.Fprintf(&b, "%s%s %s\n", cursor,
			m.theme.DocName.Render(name),
			m.theme.SourceNote.Render(fmt.Sprintf("(%d chunks)", doc.ChunkCount)))
	}
	return b.String()
}

func (m Model) renderChat() string {
	messages := m.container.Transcript()
	if len(messages) == 0 && m.mode != inputChat {
		return m.theme.StatusInfo.Render("  No messages yet. Press enter to ask a question.")
	}

	var b strings.Builder
	for i, msg := range messages {
		cursor := "  "
		if i == m.cursor {
			cursor = "> "
		}
		b.WriteString(cursor)
		switch msg.Role {
		case model.RoleUser:
			b.WriteString(m.theme.UserBubble.Render("You: ") + msg.Content)
		default:
			b.WriteString(m.theme.AssistantBubble.Render(m.renderMarkdown(msg.Content)))
			if len(msg.Sources) > 0 {
				b.WriteString("\n  " + m.theme.SourceNote.Render(renderSources(msg.Sources)))
			}
		}
		if msg.VersionCount() > 1 {
			b.WriteString(" " + m.theme.VersionNote.Render(
				fmt.Sprintf("[v%d/%d]", msg.CurrentVersionIndex+1, msg.VersionCount())))
		}
		b.WriteString("\n")
	}

	if m.mode == inputChat {
		b.WriteString("\n" + m.input.View())
	}

	return b.String()
}

// renderMarkdown runs assistant answers through glamour; on failure the
// raw text is shown.
func (m Model) renderMarkdown(content string) string {
	style := "dark"
	if !m.theme.IsDark {
		style = "light"
	}
	width := 80
	if m.width > 0 && m.width-4 < width {
		width = m.width - 4
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}
	rendered, err := renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(rendered, "\n")
}

func renderSources(sources []model.SourceRef) string {
	names := make([]string, 0, len(sources))
	for _, s := range sources {
		if s.DocumentName != "" {
			names = append(names, s.DocumentName)
		}
	}
	if len(names) == 0 {
		return ""
	}
	return "Sources: " + strings.Join(names, ", ")
}

func (m Model) renderProgress(p *model.UploadProgress) string {
	label := p.Status
	if p.Interrupted {
		label = m.theme.StatusError.Render(p.Status)
	}
	bar := m.progress.ViewAs(float64(p.Percentage) / 100)
	return fmt.Sprintf("  %s %d/%d\n  %s", bar, p.Current, p.Total, label)
}

func (m Model) renderStatus() string {
	status := m.container.Status()
	if status == "" && m.busy {
		status = m.spinner.View() + " working..."
	}
	if m.statusErr {
		return m.theme.StatusError.Render(status)
	}
	return m.theme.StatusInfo.Render(status)
}

func (m Model) renderFooter() string {
	switch m.mode {
	case inputFolderScan, inputFolderUpload:
		return m.input.View()
	}
	return m.theme.Help.Render(
		"tab: switch view  space: select  a: add  d: remove  C: clear  s: scan  u: upload  [/]: versions  n: new chat  q: quit")
}
