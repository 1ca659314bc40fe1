// Copyright (c) 2025 Surya Hanjaya
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"log"

	"golang.org/x/text/unicode/norm"

	"github.com/suryahanjaya/lenrag-sub000/internal/model"
	"github.com/suryahanjaya/lenrag-sub000/internal/store"
)

// =============================================================================
// SESSION LIFECYCLE
// =============================================================================

// ActiveSession returns the active chat session, creating one on first
// use. The returned pointer is the live session; concurrent renderers
// must go through Transcript instead.
func (c *Container) ActiveSession() *model.ChatSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		c.active = model.NewChatSession("New chat")
	}
	return c.active
}

// Transcript returns a deep-copied snapshot of the active session's
// messages, safe to iterate while chat operations keep mutating the
// transcript on other goroutines.
func (c *Container) Transcript() []*model.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return nil
	}
	out := make([]*model.ChatMessage, len(c.active.Messages))
	for i, msg := range c.active.Messages {
		out[i] = msg.Clone()
	}
	return out
}

// NewSession starts a fresh session and makes it active. In-flight chat
// responses for the old session are invalidated.
func (c *Container) NewSession() *model.ChatSession {
	c.mu.Lock()
	c.active = model.NewChatSession("New chat")
	c.generation++
	id := c.active.ID
	c.mu.Unlock()

	c.store.Put(store.KeyActiveChatID, id)
	c.notify()
	return c.active
}

// SwitchSession loads a persisted session and makes it active.
func (c *Container) SwitchSession(ctx context.Context, id string) error {
	loaded, err := c.sessions.Load(ctx, id)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.active = loaded
	c.generation++
	c.mu.Unlock()

	c.store.Put(store.KeyActiveChatID, id)
	c.notify()
	return nil
}

// RestoreActiveSession reloads the session that was active before the
// last shutdown, if any.
func (c *Container) RestoreActiveSession(ctx context.Context) {
	id := c.store.Get(store.KeyActiveChatID)
	if id == "" {
		return
	}
	if err := c.SwitchSession(ctx, id); err != nil {
		log.Printf("session: failed to restore chat %s: %v", id, err)
		c.store.Remove(store.KeyActiveChatID)
	}
}

// persistActive saves a snapshot of the active session, logging rather
// than failing; chat history loss is not worth aborting the
// conversation over. Saving a clone keeps the database write off the
// live transcript.
func (c *Container) persistActive(ctx context.Context) {
	c.mu.Lock()
	if c.active == nil {
		c.mu.Unlock()
		return
	}
	if c.active.Title == "New chat" {
		c.active.Title = c.active.TitleFromFirstMessage(50)
	}
	snapshot := c.active.Clone()
	c.mu.Unlock()

	if err := c.sessions.Save(ctx, snapshot); err != nil {
		log.Printf("session: failed to persist chat %s: %v", snapshot.ID, err)
	}
}

// =============================================================================
// CHAT OPERATIONS
// =============================================================================

// SendMessage appends a user message, asks the backend, and appends the
// assistant answer. A response arriving after the user switched sessions
// is discarded silently; that race is expected, not an error.
func (c *Container) SendMessage(ctx context.Context, text string) (*model.ChatMessage, error) {
	// Normalize to NFC so composed and decomposed input embed the same.
	text = norm.NFC.String(text)

	session := c.ActiveSession()

	c.mu.Lock()
	gen := c.generation
	userMsg := model.NewChatMessage(model.RoleUser, text, nil)
	session.Append(userMsg)
	c.mu.Unlock()
	c.notify()

	answer, err := c.client.Chat(ctx, text)
	if err != nil {
		c.SetStatus("Chat failed: %v", err)
		return nil, err
	}

	c.mu.Lock()
	if gen != c.generation {
		// Stale response for a session the user already left.
		c.mu.Unlock()
		return nil, nil
	}
	reply := model.NewChatMessage(model.RoleAssistant, answer.Message, answer.Sources)
	session.Append(reply)
	c.mu.Unlock()
	c.notify()

	c.persistActive(ctx)
	return reply, nil
}

// EditMessage rewrites the user message at index, keeping the old text
// as a navigable version, and regenerates the paired assistant answer as
// a new version on its message.
func (c *Container) EditMessage(ctx context.Context, index int, newText string) error {
	newText = norm.NFC.String(newText)
	session := c.ActiveSession()

	c.mu.Lock()
	if index < 0 || index >= len(session.Messages) || session.Messages[index].Role != model.RoleUser {
		c.mu.Unlock()
		return nil
	}
	gen := c.generation
	session.Messages[index].AddVersion(newText, nil)
	c.mu.Unlock()
	c.notify()

	answer, err := c.client.Chat(ctx, newText)
	if err != nil {
		c.SetStatus("Chat failed: %v", err)
		return err
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return nil
	}
	if paired := index + 1; paired < len(session.Messages) && session.Messages[paired].Role == model.RoleAssistant {
		session.Messages[paired].AddVersion(answer.Message, answer.Sources)
	} else {
		session.Append(model.NewChatMessage(model.RoleAssistant, answer.Message, answer.Sources))
	}
	c.mu.Unlock()
	c.notify()

	c.persistActive(ctx)
	return nil
}

// RegenerateResponse asks the backend again for the assistant message at
// index, appending the fresh answer as a new version.
func (c *Container) RegenerateResponse(ctx context.Context, index int) error {
	session := c.ActiveSession()

	c.mu.Lock()
	if index <= 0 || index >= len(session.Messages) || session.Messages[index].Role != model.RoleAssistant {
		c.mu.Unlock()
		return nil
	}
	gen := c.generation
	question := session.Messages[index-1].Content
	c.mu.Unlock()

	answer, err := c.client.Chat(ctx, question)
	if err != nil {
		c.SetStatus("Chat failed: %v", err)
		return err
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return nil
	}
	session.Messages[index].AddVersion(answer.Message, answer.Sources)
	c.mu.Unlock()
	c.notify()

	c.persistActive(ctx)
	return nil
}

// NavigateVersion steps the message at index through its version history
// (delta -1 for previous, +1 for next, with wraparound) and
// re-synchronizes the paired message of the other role to the same
// version index when it exists there.
func (c *Container) NavigateVersion(index, delta int) {
	session := c.ActiveSession()

	c.mu.Lock()
	defer func() {
		c.mu.Unlock()
		c.notify()
	}()

	if index < 0 || index >= len(session.Messages) {
		return
	}
	msg := session.Messages[index]
	if delta < 0 {
		msg.PrevVersion()
	} else {
		msg.NextVersion()
	}

	paired := index + 1
	if msg.Role == model.RoleAssistant {
		paired = index - 1
	}
	if paired < 0 || paired >= len(session.Messages) {
		return
	}
	other := session.Messages[paired]
	if other.Role != msg.Role && msg.CurrentVersionIndex < other.VersionCount() {
		other.SetVersionIndex(msg.CurrentVersionIndex)
	}
}
