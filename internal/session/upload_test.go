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

	"github.com/suryahanjaya/lenrag-sub000/internal/backend"
	"github.com/suryahanjaya/lenrag-sub000/internal/model"
	"github.com/suryahanjaya/lenrag-sub000/internal/storage"
	"github.com/suryahanjaya/lenrag-sub000/internal/store"
)

type staticTokens string

func (s staticTokens) AccessToken() string { return string(s) }

func newTestContainer(t *testing.T, backendURL string) (*Container, *store.Store) {
	t.Helper()
	return newTestContainerIn(t, t.TempDir(), backendURL)
}

func newTestContainerIn(t *testing.T, dir, backendURL string) (*Container, *store.Store) {
	t.Helper()
	st := store.Open(dir)
	sessions, err := storage.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { sessions.Close() })

	client := backend.NewClient(backendURL, staticTokens("tok"))
	return New(client, st, sessions, 1000), st
}

// TestBulkUpload_EndToEnd walks the full three-file scenario: found,
// three saved events, complete, final record 3/3/100, then cleared
// after the visible-delay window.
func TestBulkUpload_EndToEnd(t *testing.T) {
	var kbFetches atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/documents/bulk-upload-from-folder-stream", func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		frames := []string{
			`{"status":"scanning","message":"Scanning folder..."}`,
			`{"status":"found","total":3,"message":"Found 3 files"}`,
			`{"status":"processing","message":"Processing..."}`,
			`{"status":"saved","processed":1,"total":3}`,
			`{"status":"saved","processed":2,"total":3}`,
			`{"status":"saved","processed":3,"total":3}`,
			`{"status":"complete","processed":3,"message":"Upload complete"}`,
		}
		for _, frame := range frames {
			fmt.Fprintf(w, "data: %s\n", frame)
			flusher.Flush()
		}
	})
	mux.HandleFunc("/knowledge-base", func(w http.ResponseWriter, r *http.Request) {
		kbFetches.Add(1)
		w.Write([]byte(`{"documents":[]}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c, st := newTestContainer(t, server.URL)

	var percentages []int
	c.SetChangeCallback(func() {
		if p := c.Progress(); p != nil && p.IsUploading {
			percentages = append(percentages, p.Percentage)
		}
	})

	require.NoError(t, c.StartBulkUpload(context.Background(), "folder-1"))

	p := c.Progress()
	require.NotNil(t, p)
	assert.Equal(t, 3, p.Current)
	assert.Equal(t, 3, p.Total)
	assert.Equal(t, 100, p.Percentage)
	assert.False(t, p.IsUploading)
	assert.GreaterOrEqual(t, kbFetches.Load(), int32(1), "knowledge base refetched")

	// Progression passed through roughly 33/66/100.
	assert.Contains(t, percentages, 33)
	assert.Contains(t, percentages, 66)

	// The record stays for the visible-delay window, then clears along
	// with the durable key.
	assert.NotEmpty(t, st.Get(store.KeyUploadState))
	assert.Eventually(t, func() bool {
		return c.Progress() == nil && st.Get(store.KeyUploadState) == ""
	}, ProgressResetDelay+2*time.Second, 50*time.Millisecond)
}

// TestBulkUpload_ConcurrentProgressReads hammers Progress from another
// goroutine while a large batch streams, so the race detector can see
// any unsynchronized access to the shared record.
func TestBulkUpload_ConcurrentProgressReads(t *testing.T) {
	const total = 500

	mux := http.NewServeMux()
	mux.HandleFunc("/documents/bulk-upload-from-folder-stream", func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		fmt.Fprintf(w, "data: {\"status\":\"found\",\"total\":%d}\n", total)
		for i := 1; i <= total; i++ {
			fmt.Fprintf(w, "data: {\"status\":\"saved\",\"processed\":%d,\"total\":%d}\n", i, total)
			if i%50 == 0 {
				flusher.Flush()
			}
		}
		fmt.Fprint(w, "data: {\"status\":\"complete\"}\n")
		flusher.Flush()
	})
	mux.HandleFunc("/knowledge-base", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"documents":[]}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

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
			if p := c.Progress(); p != nil {
				_ = p.Current + p.Total + p.Percentage
				_ = p.Status
				_ = p.IsUploading
			}
		}
	}()

	require.NoError(t, c.StartBulkUpload(context.Background(), "folder-1"))
	close(done)
	readerWG.Wait()

	p := c.Progress()
	require.NotNil(t, p)
	assert.Equal(t, total, p.Current)
	assert.Equal(t, 100, p.Percentage)
}

func TestBulkUpload_PersistsProgressOnEveryEvent(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/documents/bulk-upload-from-folder-stream", func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"status\":\"found\",\"total\":2}\n")
		flusher.Flush()
		fmt.Fprint(w, "data: {\"status\":\"saved\",\"processed\":1,\"total\":2}\n")
		flusher.Flush()
		// Stream hangs here; the client context ends it.
		<-r.Context().Done()
	})
	mux.HandleFunc("/knowledge-base", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"documents":[]}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c, st := newTestContainer(t, server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		// Let the first two events land, then kill the stream the way a
		// closed terminal would.
		assert.Eventually(t, func() bool {
			p := c.Progress()
			return p != nil && p.Current == 1
		}, 2*time.Second, 10*time.Millisecond)
		cancel()
	}()

	err := c.StartBulkUpload(ctx, "folder-1")
	require.Error(t, err)

	// The durable record still holds the last known state.
	var saved model.UploadProgress
	require.NoError(t, json.Unmarshal([]byte(st.Get(store.KeyUploadState)), &saved))
	assert.Equal(t, 1, saved.Current)
	assert.Equal(t, 2, saved.Total)
}

func TestRestoreUploadState_FreshInterruptionSurfaced(t *testing.T) {
	c, st := newTestContainer(t, "http://localhost:0")

	record := model.UploadProgress{
		Current: 2, Total: 5, Percentage: 40,
		IsUploading: true,
		FolderURL:   "folder-1",
		StartedAt:   time.Now().Add(-2 * time.Minute).UnixMilli(),
	}
	data, _ := json.Marshal(record)
	st.Put(store.KeyUploadState, string(data))

	restored := c.RestoreUploadState(100 * time.Millisecond)
	require.NotNil(t, restored)
	assert.True(t, restored.Interrupted)
	assert.False(t, restored.IsUploading)
	assert.Equal(t, 2, restored.Current)

	// Purged after the display window.
	assert.Eventually(t, func() bool {
		return c.Progress() == nil && st.Get(store.KeyUploadState) == ""
	}, 2*time.Second, 20*time.Millisecond)
}

// TestRestoreUploadState_StaleDiscarded pins the 10-minute cutoff: old
// records are dropped silently, never surfaced as interrupted.
func TestRestoreUploadState_StaleDiscarded(t *testing.T) {
	c, st := newTestContainer(t, "http://localhost:0")

	record := model.UploadProgress{
		Current: 2, Total: 5,
		IsUploading: true,
		StartedAt:   time.Now().Add(-11 * time.Minute).UnixMilli(),
	}
	data, _ := json.Marshal(record)
	st.Put(store.KeyUploadState, string(data))

	assert.Nil(t, c.RestoreUploadState(time.Second))
	assert.Empty(t, st.Get(store.KeyUploadState))
	assert.Nil(t, c.Progress())
}

func TestRestoreUploadState_FinishedRecordDiscarded(t *testing.T) {
	c, st := newTestContainer(t, "http://localhost:0")

	record := model.UploadProgress{
		Current: 5, Total: 5, Percentage: 100,
		IsUploading: false,
		StartedAt:   time.Now().UnixMilli(),
	}
	data, _ := json.Marshal(record)
	st.Put(store.KeyUploadState, string(data))

	assert.Nil(t, c.RestoreUploadState(time.Second))
	assert.Empty(t, st.Get(store.KeyUploadState))
}

func TestRestoreUploadState_GarbageDiscarded(t *testing.T) {
	c, st := newTestContainer(t, "http://localhost:0")
	st.Put(store.KeyUploadState, "{broken")
	assert.Nil(t, c.RestoreUploadState(time.Second))
	assert.Empty(t, st.Get(store.KeyUploadState))
}
