// Package store owns conversation and message state for bechir-chatd.
//
// # Overview
//
// The store is the single owner of the mapping from conversation ID to its
// message sequence. Everything the UI renders (conversation list, message
// thread, unread badges, last-message previews) is derived from it.
//
// # Implementations
//
//   - MemoryStore: in-memory registry, the default. State lives for the
//     lifetime of the process.
//   - SQLiteStore: durable variant backed by modernc.org/sqlite, selected
//     when database.path is configured.
//
// Both implement the Store interface and pass the same contract tests.
//
// # Message identity
//
// Message IDs are int64 sequences assigned per conversation, starting at 1
// and strictly increasing in creation order. Conversation IDs are strings
// (the seeded threads use "1".."4", new ones get UUIDs).
//
// # Append semantics
//
// AppendMessage trims the draft body and rejects blank input with
// ErrEmptyBody without creating anything. A successful append updates the
// owning conversation's preview and activity label, and bumps its unread
// count when the message is incoming and the conversation is not the
// active selection.
//
// # Reactions
//
// ToggleReaction uses per-reactor toggle semantics: the same reactor
// toggling the same symbol twice ends up with no reaction recorded.
package store
