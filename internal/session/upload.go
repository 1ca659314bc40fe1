// Copyright (c) 2025 Surya Hanjaya
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/suryahanjaya/lenrag-sub000/internal/backend"
	"github.com/suryahanjaya/lenrag-sub000/internal/model"
	"github.com/suryahanjaya/lenrag-sub000/internal/store"
)

// =============================================================================
// BULK UPLOAD
// =============================================================================

// Progress returns a copy of the current upload progress, nil when idle.
func (c *Container) Progress() *model.UploadProgress {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.progress == nil {
		return nil
	}
	snapshot := *c.progress
	return &snapshot
}

// setProgress installs a copy of p as the visible record and persists
// it; nil clears both the field and the durable key. The copy keeps the
// caller's working record private to its goroutine, so mutations
// between events never alias what Progress readers see.
func (c *Container) setProgress(p *model.UploadProgress) {
	var installed *model.UploadProgress
	if p != nil {
		snapshot := *p
		installed = &snapshot
	}
	c.mu.Lock()
	c.progress = installed
	c.mu.Unlock()

	if p == nil {
		c.store.Remove(store.KeyUploadState)
	} else if data, err := json.Marshal(p); err == nil {
		// Persisted on every event so an interrupted run leaves its last
		// known state behind.
		c.store.Put(store.KeyUploadState, string(data))
	}
	c.notify()
}

// ScanFolder streams a recursive folder listing into the document view,
// revealing batches as they arrive.
func (c *Container) ScanFolder(ctx context.Context, folderURL string) error {
	c.SetStatus("Scanning folder...")
	c.mu.Lock()
	c.documents = nil
	c.mu.Unlock()

	_, err := c.client.StreamFolderScan(ctx, folderURL, backend.ScanCallbacks{
		OnDocuments: c.AppendDocuments,
		OnStatus:    func(msg string) { c.SetStatus("%s", msg) },
	})
	if err != nil {
		c.SetStatus("Folder scan failed: %v", err)
	}
	return err
}

// StartBulkUpload streams a recursive folder ingestion, tracking durable
// progress throughout. On completion the knowledge base is refreshed and
// the progress record stays visible for ProgressResetDelay before being
// cleared.
func (c *Container) StartBulkUpload(ctx context.Context, folderURL string) error {
	progress := model.NewUploadProgress(folderURL)
	progress.Status = "Starting upload..."
	c.setProgress(progress)

	err := c.client.StreamBulkUpload(ctx, folderURL, backend.UploadCallbacks{
		OnEvent: func(ev backend.UploadEvent) {
			c.applyUploadEvent(progress, ev)
		},
		OnSaved: func(processed, total int) {
			c.maybeRefreshKnowledgeBase(ctx)
		},
	})

	if err != nil {
		progress.Status = "Upload failed: " + err.Error()
		progress.IsUploading = false
		c.setProgress(progress)
		c.SetStatus("Upload failed: %v", err)
		return err
	}

	// Final refetch is unthrottled; the batch is done.
	if refreshErr := c.RefreshKnowledgeBase(ctx); refreshErr != nil {
		c.SetStatus("Upload finished, knowledge base refresh failed: %v", refreshErr)
	}

	time.AfterFunc(ProgressResetDelay, func() {
		c.setProgress(nil)
	})
	return nil
}

// applyUploadEvent folds one streamed event into the progress record.
func (c *Container) applyUploadEvent(progress *model.UploadProgress, ev backend.UploadEvent) {
	switch ev.Status {
	case backend.UploadScanning, backend.UploadProcessing:
		progress.Status = ev.Message
	case backend.UploadFound:
		progress.Total = ev.Total
		progress.Status = ev.Message
	case backend.UploadSaved:
		progress.Advance(ev.Processed)
		progress.Status = ev.Message
	case backend.UploadSkipped, backend.UploadFailed:
		// Per-item failure: recorded, never fatal to the batch.
		progress.Status = ev.Status + ": " + firstNonEmpty(ev.FileName, ev.Message)
	case backend.UploadComplete:
		if progress.Total > 0 {
			progress.Advance(progress.Total)
		}
		progress.Percentage = 100
		progress.IsUploading = false
		progress.Status = firstNonEmpty(ev.Message, "Upload complete")
	case backend.UploadError:
		progress.IsUploading = false
		progress.Status = firstNonEmpty(ev.Error, ev.Message)
	}
	c.setProgress(progress)
}

// RestoreUploadState inspects the durable upload record left by a
// previous run. A record still marked uploading means the process died
// mid-transfer: it is surfaced as interrupted (never resumed) and purged
// after the display window. Records older than the staleness cutoff are
// discarded silently.
func (c *Container) RestoreUploadState(displayWindow time.Duration) *model.UploadProgress {
	raw := c.store.Get(store.KeyUploadState)
	if raw == "" {
		return nil
	}

	var saved model.UploadProgress
	if err := json.Unmarshal([]byte(raw), &saved); err != nil {
		c.store.Remove(store.KeyUploadState)
		return nil
	}
	if !saved.IsUploading || saved.IsStale(time.Now()) {
		c.store.Remove(store.KeyUploadState)
		return nil
	}

	saved.Interrupted = true
	saved.IsUploading = false
	saved.Status = "Upload was interrupted; last known progress shown"
	c.setProgress(&saved)

	time.AfterFunc(displayWindow, func() {
		c.setProgress(nil)
	})

	snapshot := saved
	return &snapshot
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
