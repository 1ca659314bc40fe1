// Copyright (c) 2025 Surya Hanjaya
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"net/http"
	"net/url"

	"github.com/suryahanjaya/lenrag-sub000/internal/model"
)

// =============================================================================
// DOCUMENT LISTING
// =============================================================================

type documentsResponse struct {
	Documents []model.Document `json:"documents"`
}

// ListDocuments returns the user's recent documents from the store.
func (c *Client) ListDocuments(ctx context.Context) ([]model.Document, error) {
	var resp documentsResponse
	if err := c.doRequest(ctx, http.MethodGet, "/documents", nil, true, &resp); err != nil {
		return nil, err
	}
	return resp.Documents, nil
}

// DocumentHierarchy returns the full folder tree as a flat listing; each
// entry carries its parent ID and folder flag so callers can rebuild the
// tree.
func (c *Client) DocumentHierarchy(ctx context.Context) ([]model.Document, error) {
	var resp documentsResponse
	if err := c.doRequest(ctx, http.MethodGet, "/documents/hierarchy", nil, true, &resp); err != nil {
		return nil, err
	}
	return resp.Documents, nil
}

// folderScanResponse is the non-streaming folder listing result.
type folderScanResponse struct {
	Documents []model.Document `json:"documents"`
	Total     int              `json:"total"`
}

// ScanFolderAll lists a folder recursively in one response. This is the
// non-streaming fallback for StreamFolderScan.
func (c *Client) ScanFolderAll(ctx context.Context, folderURL string) ([]model.Document, error) {
	body := map[string]string{"folder_url": folderURL}
	var resp folderScanResponse
	if err := c.doRequest(ctx, http.MethodPost, "/documents/from-folder-all", body, true, &resp); err != nil {
		return nil, err
	}
	return resp.Documents, nil
}

// =============================================================================
// KNOWLEDGE BASE
// =============================================================================

type knowledgeBaseResponse struct {
	Documents []model.KnowledgeBaseDocument `json:"documents"`
}

// KnowledgeBase lists the ingested documents.
func (c *Client) KnowledgeBase(ctx context.Context) ([]model.KnowledgeBaseDocument, error) {
	var resp knowledgeBaseResponse
	if err := c.doRequest(ctx, http.MethodGet, "/knowledge-base", nil, false, &resp); err != nil {
		return nil, err
	}
	return resp.Documents, nil
}

// AddDocuments requests ingestion of the selected document IDs.
func (c *Client) AddDocuments(ctx context.Context, ids []string) error {
	body := map[string][]string{"document_ids": ids}
	return c.doRequest(ctx, http.MethodPost, "/documents/add", body, true, nil)
}

// RemoveDocument removes one document from the knowledge base.
func (c *Client) RemoveDocument(ctx context.Context, id string) error {
	return c.doRequest(ctx, http.MethodDelete, "/documents/remove/"+url.PathEscape(id), nil, false, nil)
}

// ClearAllDocuments wipes the knowledge base.
func (c *Client) ClearAllDocuments(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodDelete, "/clear-all-documents", nil, false, nil)
}

// =============================================================================
// CHAT & PROFILE
// =============================================================================

// Chat submits one message and returns the answer with its sources.
func (c *Client) Chat(ctx context.Context, message string) (*model.ChatAnswer, error) {
	body := map[string]string{"message": message}
	var resp model.ChatAnswer
	if err := c.doRequest(ctx, http.MethodPost, "/chat", body, false, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UserProfile fetches the signed-in user's profile from the backend.
func (c *Client) UserProfile(ctx context.Context) (*model.User, error) {
	var user model.User
	if err := c.doRequest(ctx, http.MethodGet, "/user/profile", nil, false, &user); err != nil {
		return nil, err
	}
	return &user, nil
}
