// Copyright (c) 2025 Surya Hanjaya
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireDecode(t *testing.T, r *http.Request, out any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(r.Body).Decode(out))
}

func TestClient_AuthHeaders(t *testing.T) {
	var gotAuth, gotGoogle string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotGoogle = r.Header.Get(HeaderGoogleToken)
		w.Write([]byte(`{"documents":[]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, staticTokens("tok-123"))
	_, err := client.ListDocuments(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok-123", gotAuth)
	assert.Equal(t, "tok-123", gotGoogle, "document listing forwards the provider token")
}

func TestClient_ChatOmitsGoogleToken(t *testing.T) {
	var gotGoogle string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotGoogle = r.Header.Get(HeaderGoogleToken)
		w.Write([]byte(`{"message":"hi","from_documents":true}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, staticTokens("tok"))
	answer, err := client.Chat(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "hi", answer.Message)
	assert.Empty(t, gotGoogle, "chat does not reach the document store")
}

func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, `{"detail":"expired"}`, ErrUnauthorized},
		{"forbidden", http.StatusForbidden, `{"detail":"nope"}`, ErrUnauthorized},
		{"not found", http.StatusNotFound, `{"detail":"missing"}`, ErrNotFound},
		{"rate limited", http.StatusTooManyRequests, `{"message":"slow down"}`, ErrRateLimited},
		{"server error", http.StatusInternalServerError, `boom`, ErrServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(server.URL, staticTokens("tok"))
			_, err := client.KnowledgeBase(context.Background())
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestClient_APIErrorCarriesDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"token revoked"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, staticTokens("tok"))
	_, err := client.ListDocuments(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token revoked")
}

func TestClient_RemoveDocumentEscapesID(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, staticTokens("tok"))
	require.NoError(t, client.RemoveDocument(context.Background(), "doc/with slash"))
	assert.Equal(t, "/documents/remove/doc%2Fwith%20slash", gotPath)
}

func TestClient_AddDocumentsBody(t *testing.T) {
	var body struct {
		DocumentIDs []string `json:"document_ids"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requireDecode(t, r, &body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, staticTokens("tok"))
	require.NoError(t, client.AddDocuments(context.Background(), []string{"a", "b"}))
	assert.Equal(t, []string{"a", "b"}, body.DocumentIDs)
}
