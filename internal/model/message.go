// Copyright (c) 2025 Surya Hanjaya
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model defines the shared data model for the dora client:
// chat messages with their version history, chat sessions, documents,
// and upload progress records.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// SourceRef is one retrieval source cited by an assistant answer.
type SourceRef struct {
	DocumentID   string `json:"document_id,omitempty"`
	DocumentName string `json:"document_name,omitempty"`
	Snippet      string `json:"snippet,omitempty"`
}

// MessageVersion is one historical (content, sources) pair of a message.
// Editing a user message or regenerating an assistant answer appends a
// version; history is never deleted.
type MessageVersion struct {
	Content string      `json:"content"`
	Sources []SourceRef `json:"sources,omitempty"`
}

// ChatMessage is one entry in a chat transcript.
//
// Content and Sources mirror the version selected by CurrentVersionIndex.
// A message starts with a single version (its original content); every
// edit or regeneration appends another and advances the index to it.
type ChatMessage struct {
	ID                  string           `json:"id"`
	Role                Role             `json:"role"`
	Content             string           `json:"content"`
	Sources             []SourceRef      `json:"sources,omitempty"`
	Versions            []MessageVersion `json:"versions"`
	CurrentVersionIndex int              `json:"current_version_index"`
	CreatedAt           time.Time        `json:"created_at"`
}

// NewChatMessage creates a message with its content as the sole version.
func NewChatMessage(role Role, content string, sources []SourceRef) *ChatMessage {
	return &ChatMessage{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Sources:   sources,
		Versions:  []MessageVersion{{Content: content, Sources: sources}},
		CreatedAt: time.Now(),
	}
}

// AddVersion appends a new (content, sources) pair and makes it current.
// Prior versions stay navigable.
func (m *ChatMessage) AddVersion(content string, sources []SourceRef) {
	m.Versions = append(m.Versions, MessageVersion{Content: content, Sources: sources})
	m.CurrentVersionIndex = len(m.Versions) - 1
	m.Content = content
	m.Sources = sources
}

// VersionCount returns how many versions the message carries.
func (m *ChatMessage) VersionCount() int {
	return len(m.Versions)
}

// Clone returns a deep copy, safe to read while the original keeps
// changing under its owner's lock.
func (m *ChatMessage) Clone() *ChatMessage {
	cp := *m
	cp.Sources = append([]SourceRef(nil), m.Sources...)
	cp.Versions = append([]MessageVersion(nil), m.Versions...)
	return &cp
}

// SetVersionIndex selects an existing version as current. Out-of-range
// indexes are ignored.
func (m *ChatMessage) SetVersionIndex(idx int) {
	if idx < 0 || idx >= len(m.Versions) {
		return
	}
	m.CurrentVersionIndex = idx
	m.Content = m.Versions[idx].Content
	m.Sources = m.Versions[idx].Sources
}

// PrevVersion steps to the previous version, wrapping to the newest when
// already on the oldest.
func (m *ChatMessage) PrevVersion() {
	if len(m.Versions) < 2 {
		return
	}
	idx := m.CurrentVersionIndex - 1
	if idx < 0 {
		idx = len(m.Versions) - 1
	}
	m.SetVersionIndex(idx)
}

// NextVersion steps to the next version, wrapping to the oldest when
// already on the newest.
func (m *ChatMessage) NextVersion() {
	if len(m.Versions) < 2 {
		return
	}
	idx := m.CurrentVersionIndex + 1
	if idx >= len(m.Versions) {
		idx = 0
	}
	m.SetVersionIndex(idx)
}

// ChatSession is an ordered transcript with identity and timestamps.
// Exactly one session is active at a time; the active ID is persisted
// separately so it survives restarts.
type ChatSession struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Messages  []*ChatMessage `json:"messages"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// NewChatSession creates an empty session with a fresh ID.
func NewChatSession(title string) *ChatSession {
	now := time.Now()
	return &ChatSession{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append adds a message to the transcript and bumps UpdatedAt.
func (s *ChatSession) Append(msg *ChatMessage) {
	s.Messages = append(s.Messages, msg)
	s.UpdatedAt = time.Now()
}

// Clone returns a deep copy of the session and its messages.
func (s *ChatSession) Clone() *ChatSession {
	cp := *s
	cp.Messages = make([]*ChatMessage, len(s.Messages))
	for i, msg := range s.Messages {
		cp.Messages[i] = msg.Clone()
	}
	return &cp
}

// TitleFromFirstMessage derives a session title from the first user
// message, truncated to max runes.
func (s *ChatSession) TitleFromFirstMessage(max int) string {
	for _, msg := range s.Messages {
		if msg.Role != RoleUser {
			continue
		}
		runes := []rune(msg.Content)
		if len(runes) > max {
			return string(runes[:max]) + "..."
		}
		return msg.Content
	}
	return "New chat"
}
