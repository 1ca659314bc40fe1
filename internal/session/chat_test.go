// Copyright (c) 2025 Surya Hanjaya
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suryahanjaya/lenrag-sub000/internal/model"
)

// chatServer answers every /chat call with a canned or per-call answer.
func chatServer(t *testing.T, answer func(n int32, message string) string) *httptest.Server {
	t.Helper()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat" {
			http.NotFound(w, r)
			return
		}
		var body struct {
			Message string `json:"message"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		n := calls.Add(1)
		resp := map[string]any{
			"message":        answer(n, body.Message),
			"sources":        []map[string]string{{"document_name": "doc-a"}},
			"from_documents": true,
		}
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestSendMessage_AppendsPair(t *testing.T) {
	server := chatServer(t, func(n int32, msg string) string {
		return "answer to: " + msg
	})
	c, _ := newTestContainer(t, server.URL)

	reply, err := c.SendMessage(context.Background(), "what is in the report?")
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, "answer to: what is in the report?", reply.Content)

	messages := c.ActiveSession().Messages
	require.Len(t, messages, 2)
	assert.Equal(t, model.RoleUser, messages[0].Role)
	assert.Equal(t, model.RoleAssistant, messages[1].Role)
	assert.Equal(t, "doc-a", messages[1].Sources[0].DocumentName)
}

// TestSendMessage_StaleResponseDiscarded pins the generation counter: an
// answer that lands after the user switched sessions is dropped
// silently, not applied to the new session.
func TestSendMessage_StaleResponseDiscarded(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		fmt.Fprint(w, `{"message":"late answer","from_documents":true}`)
	}))
	defer server.Close()

	c, _ := newTestContainer(t, server.URL)
	c.ActiveSession()

	var wg sync.WaitGroup
	wg.Add(1)
	var reply *model.ChatMessage
	go func() {
		defer wg.Done()
		reply, _ = c.SendMessage(context.Background(), "slow question")
	}()

	// Switch away while the request is in flight, then let it finish.
	time.Sleep(50 * time.Millisecond)
	fresh := c.NewSession()
	close(release)
	wg.Wait()

	assert.Nil(t, reply, "stale response must be discarded, not returned")
	assert.Empty(t, fresh.Messages, "stale response must not leak into the new session")
}

func TestEditMessage_AppendsVersionsOnBothRoles(t *testing.T) {
	server := chatServer(t, func(n int32, msg string) string {
		return "answer " + msg
	})
	c, _ := newTestContainer(t, server.URL)

	_, err := c.SendMessage(context.Background(), "v1")
	require.NoError(t, err)

	require.NoError(t, c.EditMessage(context.Background(), 0, "v2"))

	messages := c.ActiveSession().Messages
	require.Len(t, messages, 2)

	user, assistant := messages[0], messages[1]
	assert.Equal(t, 2, user.VersionCount())
	assert.Equal(t, 1, user.CurrentVersionIndex)
	assert.Equal(t, "v2", user.Content)
	assert.Equal(t, "v1", user.Versions[0].Content)

	assert.Equal(t, 2, assistant.VersionCount())
	assert.Equal(t, "answer v2", assistant.Content)
	assert.Equal(t, "answer v1", assistant.Versions[0].Content)
}

func TestRegenerateResponse_AppendsVersion(t *testing.T) {
	server := chatServer(t, func(n int32, msg string) string {
		return fmt.Sprintf("take %d", n)
	})
	c, _ := newTestContainer(t, server.URL)

	_, err := c.SendMessage(context.Background(), "question")
	require.NoError(t, err)
	require.NoError(t, c.RegenerateResponse(context.Background(), 1))

	assistant := c.ActiveSession().Messages[1]
	assert.Equal(t, 2, assistant.VersionCount())
	assert.Equal(t, "take 2", assistant.Content)
	assert.Equal(t, "take 1", assistant.Versions[0].Content)
}

func TestNavigateVersion_SyncsPairedMessage(t *testing.T) {
	server := chatServer(t, func(n int32, msg string) string {
		return "answer " + msg
	})
	c, _ := newTestContainer(t, server.URL)

	_, err := c.SendMessage(context.Background(), "v1")
	require.NoError(t, err)
	require.NoError(t, c.EditMessage(context.Background(), 0, "v2"))

	// Step the user message back one version; the assistant follows.
	c.NavigateVersion(0, -1)

	messages := c.ActiveSession().Messages
	assert.Equal(t, "v1", messages[0].Content)
	assert.Equal(t, "answer v1", messages[1].Content)

	// And forward again, with wraparound untouched.
	c.NavigateVersion(0, +1)
	assert.Equal(t, "v2", messages[0].Content)
	assert.Equal(t, "answer v2", messages[1].Content)
}

// TestTranscript_ConcurrentWithChatOps iterates rendering snapshots
// from another goroutine while sends, edits and version navigation
// mutate the live transcript, so the race detector can see any access
// that bypasses the lock.
func TestTranscript_ConcurrentWithChatOps(t *testing.T) {
	server := chatServer(t, func(n int32, msg string) string {
		return "answer " + msg
	})
	c, _ := newTestContainer(t, server.URL)

	done := make(chan struct{})
	var readerWG sync.WaitGroup
	readerWG.Add(1)
	go func() {
		defer readerWG.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			for _, msg := range c.Transcript() {
				_ = msg.Content
				_ = msg.VersionCount()
				for _, src := range msg.Sources {
					_ = src.DocumentName
				}
			}
		}
	}()

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		_, err := c.SendMessage(ctx, fmt.Sprintf("question %d", i))
		require.NoError(t, err)
	}
	require.NoError(t, c.EditMessage(ctx, 0, "edited question"))
	c.NavigateVersion(0, -1)
	c.NavigateVersion(0, +1)

	close(done)
	readerWG.Wait()

	messages := c.Transcript()
	require.Len(t, messages, 20)
	assert.Equal(t, "edited question", messages[0].Content)
	assert.Equal(t, 2, messages[0].VersionCount())
}

func TestSendMessage_PersistedAcrossContainers(t *testing.T) {
	server := chatServer(t, func(n int32, msg string) string {
		return "persisted answer"
	})

	dir := t.TempDir()
	c, _ := newTestContainerIn(t, dir, server.URL)

	_, err := c.SendMessage(context.Background(), "remember this")
	require.NoError(t, err)
	id := c.ActiveSession().ID

	// A new container over the same data dir restores the transcript.
	c2, _ := newTestContainerIn(t, dir, server.URL)
	c2.RestoreActiveSession(context.Background())

	restored := c2.ActiveSession()
	assert.Equal(t, id, restored.ID)
	require.Len(t, restored.Messages, 2)
	assert.Equal(t, "remember this", restored.Messages[0].Content)
	assert.Equal(t, "persisted answer", restored.Messages[1].Content)
}

func TestSendMessage_NormalizesInput(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Message string `json:"message"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		got = body.Message
		fmt.Fprint(w, `{"message":"ok","from_documents":false}`)
	}))
	defer server.Close()

	c, _ := newTestContainer(t, server.URL)

	// Decomposed input ('e' plus combining acute) normalizes to the
	// composed form before it goes over the wire.
	_, err := c.SendMessage(context.Background(), "cafe\u0301")
	require.NoError(t, err)
	assert.Equal(t, "caf\u00e9", got)
}
