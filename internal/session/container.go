// Copyright (c) 2025 Surya Hanjaya
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/suryahanjaya/lenrag-sub000/internal/backend"
	"github.com/suryahanjaya/lenrag-sub000/internal/model"
	"github.com/suryahanjaya/lenrag-sub000/internal/storage"
	"github.com/suryahanjaya/lenrag-sub000/internal/store"
)

// ProgressResetDelay is how long a completed upload stays visible before
// the progress record is cleared.
const ProgressResetDelay = 3 * time.Second

// Container is the session state container. All fields are guarded by
// mu; callbacks registered by the UI run outside the lock.
type Container struct {
	mu sync.Mutex

	client   *backend.Client
	store    *store.Store
	sessions *storage.SessionStore

	documents []model.Document
	selected  map[string]bool
	kb        []model.KnowledgeBaseDocument

	active *model.ChatSession
	// generation invalidates in-flight chat responses: it is captured
	// before a request and compared on completion, so an answer for a
	// session the user already left is discarded instead of applied.
	generation uint64

	progress *model.UploadProgress

	// kbLimiter throttles the knowledge-base refetches triggered by
	// per-item upload events on large batches.
	kbLimiter *rate.Limiter

	status   string
	onChange func()
}

// New creates a container. kbRefetchPerSecond throttles mid-upload
// knowledge-base refreshes.
func New(client *backend.Client, st *store.Store, sessions *storage.SessionStore, kbRefetchPerSecond float64) *Container {
	if kbRefetchPerSecond <= 0 {
		kbRefetchPerSecond = 1
	}
	return &Container{
		client:    client,
		store:     st,
		sessions:  sessions,
		selected:  make(map[string]bool),
		kbLimiter: rate.NewLimiter(rate.Limit(kbRefetchPerSecond), 1),
	}
}

// SetChangeCallback registers the UI notification hook, called after
// every state mutation, outside the lock.
func (c *Container) SetChangeCallback(fn func()) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

func (c *Container) notify() {
	c.mu.Lock()
	fn := c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// SetStatus records a status line for the UI.
func (c *Container) SetStatus(format string, args ...any) {
	c.mu.Lock()
	c.status = fmt.Sprintf(format, args...)
	c.mu.Unlock()
	c.notify()
}

// Status returns the current status line.
func (c *Container) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// =============================================================================
// DOCUMENTS & SELECTION
// =============================================================================

// RefreshDocuments reloads the recent-document listing.
func (c *Container) RefreshDocuments(ctx context.Context) error {
	docs, err := c.client.ListDocuments(ctx)
	if err != nil {
		c.SetStatus("Failed to load documents: %v", err)
		return err
	}
	c.mu.Lock()
	c.documents = docs
	c.mu.Unlock()
	c.notify()
	return nil
}

// Documents returns a copy of the current listing.
func (c *Container) Documents() []model.Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Document, len(c.documents))
	copy(out, c.documents)
	return out
}

// AppendDocuments merges a streamed batch into the listing, for the
// progressive reveal during a folder scan.
func (c *Container) AppendDocuments(batch []model.Document) {
	c.mu.Lock()
	c.documents = append(c.documents, batch...)
	c.mu.Unlock()
	c.notify()
}

// ToggleSelect flips a document in or out of the selection set.
func (c *Container) ToggleSelect(id string) {
	c.mu.Lock()
	if c.selected[id] {
		delete(c.selected, id)
	} else {
		c.selected[id] = true
	}
	c.mu.Unlock()
	c.notify()
}

// Selected returns the selected document IDs.
func (c *Container) Selected() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.selected))
	for id := range c.selected {
		ids = append(ids, id)
	}
	return ids
}

// ClearSelection empties the selection set.
func (c *Container) ClearSelection() {
	c.mu.Lock()
	c.selected = make(map[string]bool)
	c.mu.Unlock()
	c.notify()
}

// =============================================================================
// KNOWLEDGE BASE
// =============================================================================

// RefreshKnowledgeBase reloads the ingested-document listing.
func (c *Container) RefreshKnowledgeBase(ctx context.Context) error {
	docs, err := c.client.KnowledgeBase(ctx)
	if err != nil {
		c.SetStatus("Failed to load knowledge base: %v", err)
		return err
	}
	c.mu.Lock()
	c.kb = docs
	c.mu.Unlock()
	c.notify()
	return nil
}

// maybeRefreshKnowledgeBase is the rate-limited variant used by per-item
// upload events; when the limiter is saturated the refetch is skipped,
// the complete event always does a final unthrottled one.
func (c *Container) maybeRefreshKnowledgeBase(ctx context.Context) {
	if !c.kbLimiter.Allow() {
		return
	}
	if err := c.RefreshKnowledgeBase(ctx); err != nil {
		log.Printf("session: mid-upload knowledge base refresh failed: %v", err)
	}
}

// KnowledgeBase returns a copy of the ingested-document listing.
func (c *Container) KnowledgeBase() []model.KnowledgeBaseDocument {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.KnowledgeBaseDocument, len(c.kb))
	copy(out, c.kb)
	return out
}

// AddSelectedToKnowledgeBase ingests the current selection, then
// refreshes the knowledge base after a short settle delay so the
// freshly ingested items appear.
func (c *Container) AddSelectedToKnowledgeBase(ctx context.Context) error {
	ids := c.Selected()
	if len(ids) == 0 {
		c.SetStatus("No documents selected")
		return nil
	}
	c.SetStatus("Adding %d document(s) to knowledge base...", len(ids))
	if err := c.client.AddDocuments(ctx, ids); err != nil {
		c.SetStatus("Failed to add documents: %v", err)
		return err
	}
	c.ClearSelection()
	c.SetStatus("Added %d document(s)", len(ids))

	// Ingestion is asynchronous server-side; give it a moment before the
	// listing refresh.
	time.AfterFunc(2*time.Second, func() {
		refreshCtx, cancel := context.WithTimeout(context.Background(), backend.DefaultTimeout)
		defer cancel()
		if err := c.RefreshKnowledgeBase(refreshCtx); err != nil {
			log.Printf("session: post-add knowledge base refresh failed: %v", err)
		}
	})
	return nil
}

// RemoveFromKnowledgeBase removes one document and refreshes the listing.
func (c *Container) RemoveFromKnowledgeBase(ctx context.Context, id string) error {
	if err := c.client.RemoveDocument(ctx, id); err != nil {
		c.SetStatus("Failed to remove document: %v", err)
		return err
	}
	return c.RefreshKnowledgeBase(ctx)
}

// ClearKnowledgeBase wipes every ingested document.
func (c *Container) ClearKnowledgeBase(ctx context.Context) error {
	if err := c.client.ClearAllDocuments(ctx); err != nil {
		c.SetStatus("Failed to clear knowledge base: %v", err)
		return err
	}
	return c.RefreshKnowledgeBase(ctx)
}
