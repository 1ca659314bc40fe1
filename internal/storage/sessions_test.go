// Copyright (c) 2025 Surya Hanjaya
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suryahanjaya/lenrag-sub000/internal/model"
)

func openTestStore(t *testing.T) *SessionStore {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionStore_SaveLoadRoundtrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	session := model.NewChatSession("quarterly report")
	session.Append(model.NewChatMessage(model.RoleUser, "what changed?", nil))
	assistant := model.NewChatMessage(model.RoleAssistant, "revenue grew", []model.SourceRef{{DocumentName: "q3.pdf"}})
	assistant.AddVersion("revenue grew 12%", []model.SourceRef{{DocumentName: "q3-final.pdf"}})
	session.Append(assistant)

	require.NoError(t, s.Save(ctx, session))

	loaded, err := s.Load(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "quarterly report", loaded.Title)
	require.Len(t, loaded.Messages, 2)

	got := loaded.Messages[1]
	assert.Equal(t, model.RoleAssistant, got.Role)
	assert.Equal(t, 2, got.VersionCount())
	assert.Equal(t, 1, got.CurrentVersionIndex)
	assert.Equal(t, "revenue grew 12%", got.Content)
	assert.Equal(t, "q3-final.pdf", got.Sources[0].DocumentName)
	assert.Equal(t, "revenue grew", got.Versions[0].Content)
}

func TestSessionStore_SaveIsUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	session := model.NewChatSession("first")
	session.Append(model.NewChatMessage(model.RoleUser, "hello", nil))
	require.NoError(t, s.Save(ctx, session))

	session.Title = "renamed"
	session.Append(model.NewChatMessage(model.RoleAssistant, "hi", nil))
	require.NoError(t, s.Save(ctx, session))

	loaded, err := s.Load(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", loaded.Title)
	assert.Len(t, loaded.Messages, 2)
}

func TestSessionStore_LoadMissing(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionStore_ListOrdersByUpdatedAt(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	older := model.NewChatSession("older")
	older.UpdatedAt = time.Now().Add(-time.Hour)
	older.Append(model.NewChatMessage(model.RoleUser, "old question", nil))
	require.NoError(t, s.Save(ctx, older))

	newer := model.NewChatSession("newer")
	newer.Append(model.NewChatMessage(model.RoleUser, "q", nil))
	newer.Append(model.NewChatMessage(model.RoleAssistant, "a", nil))
	require.NoError(t, s.Save(ctx, newer))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "newer", list[0].Title)
	assert.Equal(t, 2, list[0].MessageCount)
	assert.Equal(t, "older", list[1].Title)
	assert.Equal(t, 1, list[1].MessageCount)
}

func TestSessionStore_DeleteCascades(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	session := model.NewChatSession("gone soon")
	session.Append(model.NewChatMessage(model.RoleUser, "bye", nil))
	require.NoError(t, s.Save(ctx, session))

	require.NoError(t, s.Delete(ctx, session.ID))
	_, err := s.Load(ctx, session.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.ErrorIs(t, s.Delete(ctx, session.ID), ErrSessionNotFound)
}

// A persisted index beyond the stored versions is clamped to the newest
// version instead of failing the load.
func TestSessionStore_OutOfRangeVersionIndexClamped(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	session := model.NewChatSession("clamp")
	msg := model.NewChatMessage(model.RoleAssistant, "only version", nil)
	msg.CurrentVersionIndex = 7
	session.Append(msg)
	require.NoError(t, s.Save(ctx, session))

	loaded, err := s.Load(ctx, session.ID)
	require.NoError(t, err)
	got := loaded.Messages[0]
	assert.Equal(t, 0, got.CurrentVersionIndex)
	assert.Equal(t, "only version", got.Content)
}

func TestSessionStore_ClosedErrors(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.List(context.Background())
	assert.ErrorIs(t, err, ErrDatabaseClosed)
	assert.ErrorIs(t, s.Save(context.Background(), model.NewChatSession("x")), ErrDatabaseClosed)
}
