// Copyright (c) 2025 Surya Hanjaya
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "time"

// StaleUploadAge is how old a persisted upload record may be before a
// restart treats it as garbage instead of an interrupted transfer.
const StaleUploadAge = 10 * time.Minute

// UploadProgress is the durable record of a running bulk upload. It is
// persisted on every streamed event so a killed process leaves behind its
// last known state, and removed when the stream finishes.
//
// Current never exceeds Total once Total is known. Percentage is derived
// from the two and carried only for display.
type UploadProgress struct {
	Current     int    `json:"current"`
	Total       int    `json:"total"`
	Percentage  int    `json:"percentage"`
	Status      string `json:"status"`
	IsUploading bool   `json:"isUploading"`
	FolderURL   string `json:"folderUrl"`
	StartedAt   int64  `json:"startTime"` // epoch milliseconds
	Interrupted bool   `json:"interrupted,omitempty"`
}

// NewUploadProgress starts a fresh record for a folder upload.
func NewUploadProgress(folderURL string) *UploadProgress {
	return &UploadProgress{
		IsUploading: true,
		FolderURL:   folderURL,
		StartedAt:   time.Now().UnixMilli(),
	}
}

// Advance records one more processed item and recomputes the percentage.
func (p *UploadProgress) Advance(current int) {
	if p.Total > 0 && current > p.Total {
		current = p.Total
	}
	p.Current = current
	p.Percentage = DerivePercentage(current, p.Total)
}

// DerivePercentage maps current/total to 0-100, clamped.
func DerivePercentage(current, total int) int {
	if total <= 0 {
		return 0
	}
	pct := current * 100 / total
	if pct > 100 {
		pct = 100
	}
	return pct
}

// IsStale reports whether the record is too old to surface as an
// interrupted upload. Stale records are discarded on reload; the
// interrupted flag is reserved for genuine session-end interruption.
func (p *UploadProgress) IsStale(now time.Time) bool {
	elapsed := now.UnixMilli() - p.StartedAt
	return elapsed >= StaleUploadAge.Milliseconds()
}
