// Copyright (c) 2025 Surya Hanjaya
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// Document is one entry of the remote document store as served by the
// backend document listing endpoints.
type Document struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	MimeType        string `json:"mime_type"`
	CreatedTime     string `json:"created_time,omitempty"`
	ModifiedTime    string `json:"modified_time,omitempty"`
	WebViewLink     string `json:"web_view_link,omitempty"`
	Size            string `json:"size,omitempty"`
	ParentID        string `json:"parent_id,omitempty"`
	IsFolder        bool   `json:"is_folder,omitempty"`
	FileExtension   string `json:"file_extension,omitempty"`
	SourceSubfolder string `json:"source_subfolder,omitempty"`
}

// KnowledgeBaseDocument is one ingested document in the backend's
// knowledge base.
type KnowledgeBaseDocument struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	MimeType   string `json:"mime_type,omitempty"`
	ChunkCount int    `json:"chunk_count"`
	AddedAt    string `json:"added_at,omitempty"`
}

// User is the signed-in user's profile as returned by the code exchange.
type User struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture,omitempty"`
}

// ChatAnswer is the backend's response to a chat message.
type ChatAnswer struct {
	Message       string      `json:"message"`
	Sources       []SourceRef `json:"sources,omitempty"`
	FromDocuments bool        `json:"from_documents"`
}
