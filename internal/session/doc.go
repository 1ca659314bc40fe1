// Copyright (c) 2025 Surya Hanjaya
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session holds the client-side application state: the document
// list, the knowledge base, chat sessions with version history, and
// bulk upload progress.
//
// # Key Types
//
//   - Container: Mutex-guarded state shared by the TUI and the CLI
//     commands. Mutations go through Container methods; observers get a
//     change callback fired outside the lock.
//
// Chat responses carry a generation counter so an answer that arrives
// after the user switched sessions is discarded instead of landing in
// the wrong transcript. Upload progress is persisted on every stream
// event so an interrupted upload can be surfaced after a restart.
package session
