// Copyright (c) 2025 Surya Hanjaya
// SPDX-License-Identifier: AGPL-3.0-or-later

// Streaming ingestion client. The backend's long-lived endpoints frame
// events as lines of the form "data: <JSON>\n"; this file turns those
// frames into progress callbacks without buffering whole responses.

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/suryahanjaya/lenrag-sub000/internal/model"
)

// =============================================================================
// LINE PARSER
// =============================================================================

// dataPrefix marks an event frame inside the stream body.
const dataPrefix = "data: "

// LineParser is an explicit buffer state machine over an event stream.
// Feed it arbitrary byte chunks, in any split, and it yields the payload
// of every complete "data: " line; the trailing incomplete fragment is
// held back until more bytes arrive.
//
// Lines without the prefix and empty lines are ignored. Whether a
// payload is valid JSON is the caller's concern; the parser only frames.
type LineParser struct {
	buf []byte
}

// Feed appends chunk to the rolling buffer and returns the payloads of
// all frames completed by it.
func (p *LineParser) Feed(chunk []byte) []string {
	p.buf = append(p.buf, chunk...)

	var payloads []string
	for {
		idx := bytes.IndexByte(p.buf, '\n')
		if idx < 0 {
			return payloads
		}
		line := strings.TrimRight(string(p.buf[:idx]), "\r")
		p.buf = p.buf[idx+1:]

		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		payload := strings.TrimPrefix(line, dataPrefix)
		if payload == "" {
			continue
		}
		payloads = append(payloads, payload)
	}
}

// Rest returns the held-back incomplete fragment, for end-of-stream
// handling.
func (p *LineParser) Rest() string {
	return string(p.buf)
}

// =============================================================================
// EVENT VOCABULARY
// =============================================================================

// Bulk upload status values, in the order the backend emits them.
const (
	UploadScanning   = "scanning"
	UploadFound      = "found"
	UploadProcessing = "processing"
	UploadSaved      = "saved"
	UploadSkipped    = "skipped"
	UploadFailed     = "failed"
	UploadComplete   = "complete"
	UploadError      = "error"
)

// UploadEvent is one frame of the bulk upload stream.
type UploadEvent struct {
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
	Total      int    `json:"total,omitempty"`
	Processed  int    `json:"processed,omitempty"`
	Percentage int    `json:"percentage,omitempty"`
	FileName   string `json:"file_name,omitempty"`
	Error      string `json:"error,omitempty"`
}

// scanTerminal is the non-array frame of the folder scan stream.
type scanTerminal struct {
	Done  bool   `json:"done"`
	Total int    `json:"total"`
	Error string `json:"error"`
}

// ScanCallbacks receives folder scan progress. OnDocuments fires for
// every batch so the UI can reveal results progressively; OnStatus
// carries human-readable transitions, including the fallback notice.
type ScanCallbacks struct {
	OnDocuments func(batch []model.Document)
	OnStatus    func(message string)
}

// UploadCallbacks receives bulk upload progress. OnEvent fires for every
// decoded frame; OnSaved additionally fires per ingested item so callers
// can refresh the knowledge base mid-batch.
type UploadCallbacks struct {
	OnEvent func(ev UploadEvent)
	OnSaved func(processed, total int)
}

// =============================================================================
// FOLDER SCAN STREAM
// =============================================================================

// StreamFolderScan lists a folder recursively over the streaming
// endpoint, falling back to the one-shot endpoint when the stream cannot
// be established. Returns the accumulated document list.
//
// Streams against the same folder are serialized; a second call for a
// folder blocks until the first finishes.
func (c *Client) StreamFolderScan(ctx context.Context, folderURL string, cb ScanCallbacks) ([]model.Document, error) {
	unlock := c.lockFolder(folderURL)
	defer unlock()

	body, err := c.openStream(ctx, "/documents/from-folder-all-stream", folderURL)
	if err != nil {
		// RELIABILITY: transparent fallback to the non-streaming listing.
		if cb.OnStatus != nil {
			cb.OnStatus("Streaming unavailable, fetching folder in one request...")
		}
		docs, fallbackErr := c.ScanFolderAll(ctx, folderURL)
		if fallbackErr != nil {
			return nil, fallbackErr
		}
		if cb.OnDocuments != nil && len(docs) > 0 {
			cb.OnDocuments(docs)
		}
		if cb.OnStatus != nil {
			cb.OnStatus(fmt.Sprintf("Found %d documents", len(docs)))
		}
		return docs, nil
	}
	defer body.Close()

	var all []model.Document
	err = c.consumeStream(ctx, body, func(payload string) error {
		// Array frames carry documents; object frames are terminal.
		if strings.HasPrefix(payload, "[") {
			var batch []model.Document
			if err := json.Unmarshal([]byte(payload), &batch); err != nil {
				log.Printf("backend: skipping malformed scan frame: %v", err)
				return nil
			}
			all = append(all, batch...)
			if cb.OnDocuments != nil {
				cb.OnDocuments(batch)
			}
			return nil
		}

		var term scanTerminal
		if err := json.Unmarshal([]byte(payload), &term); err != nil {
			log.Printf("backend: skipping malformed scan frame: %v", err)
			return nil
		}
		if term.Error != "" {
			return fmt.Errorf("%w: %s", ErrStreamAborted, term.Error)
		}
		if term.Done {
			if cb.OnStatus != nil {
				total := term.Total
				if total == 0 {
					total = len(all)
				}
				cb.OnStatus(fmt.Sprintf("Found %d documents", total))
			}
			return errStreamDone
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return all, nil
}

// =============================================================================
// BULK UPLOAD STREAM
// =============================================================================

// StreamBulkUpload ingests a folder recursively, emitting one callback
// per streamed event. Per-item failures are reported through the events
// and do not stop the stream; only an explicit error frame or transport
// failure aborts.
func (c *Client) StreamBulkUpload(ctx context.Context, folderURL string, cb UploadCallbacks) error {
	unlock := c.lockFolder(folderURL)
	defer unlock()

	body, err := c.openStream(ctx, "/documents/bulk-upload-from-folder-stream", folderURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStreamRefused, err)
	}
	defer body.Close()

	return c.consumeStream(ctx, body, func(payload string) error {
		var ev UploadEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			log.Printf("backend: skipping malformed upload frame: %v", err)
			return nil
		}
		if cb.OnEvent != nil {
			cb.OnEvent(ev)
		}
		switch ev.Status {
		case UploadSaved:
			if cb.OnSaved != nil {
				cb.OnSaved(ev.Processed, ev.Total)
			}
		case UploadComplete:
			return errStreamDone
		case UploadError:
			msg := ev.Error
			if msg == "" {
				msg = ev.Message
			}
			return fmt.Errorf("%w: %s", ErrStreamAborted, msg)
		}
		return nil
	})
}

// =============================================================================
// STREAM PLUMBING
// =============================================================================

// errStreamDone is returned by frame handlers to end consumption
// successfully before connection close.
var errStreamDone = errors.New("stream done")

// openStream issues the streaming POST and returns the response body on
// a 200; any other outcome is an establishment failure.
func (c *Client) openStream(ctx context.Context, path, folderURL string) (io.ReadCloser, error) {
	data, _ := json.Marshal(map[string]string{"folder_url": folderURL})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, true)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streaming.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// consumeStream reads the body chunk by chunk through a LineParser and
// hands complete payloads to handle. The stream ends successfully on
// errStreamDone or connection close.
func (c *Client) consumeStream(ctx context.Context, body io.Reader, handle func(payload string) error) error {
	parser := &LineParser{}
	buf := make([]byte, 4096)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			for _, payload := range parser.Feed(buf[:n]) {
				if err := handle(payload); err != nil {
					if errors.Is(err, errStreamDone) {
						return nil
					}
					return err
				}
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				// A final unterminated frame still counts if complete.
				if rest := strings.TrimPrefix(strings.TrimSpace(parser.Rest()), dataPrefix); rest != "" && json.Valid([]byte(rest)) {
					if err := handle(rest); err != nil && !errors.Is(err, errStreamDone) {
						return err
					}
				}
				return nil
			}
			return fmt.Errorf("stream read failed: %w", readErr)
		}
	}
}

// lockFolder serializes streaming operations per folder URL.
func (c *Client) lockFolder(folderURL string) func() {
	c.mu.Lock()
	lock, ok := c.folderLocks[folderURL]
	if !ok {
		lock = &sync.Mutex{}
		c.folderLocks[folderURL] = lock
	}
	c.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
