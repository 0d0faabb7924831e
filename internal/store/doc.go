// Package store is the SQLite-backed relational store behind NoteSync.
//
// It holds three tables:
//   - notes: one row per note, owned by a user
//   - tasks: checklist items, deleted with their note (ON DELETE CASCADE)
//   - user_preferences: one row per user
//
// Every committed write is published on the change broker as a row-level
// change event ("notes/<owner>", "tasks/<owner>", ...), which is what the
// realtime stream of the server and the client stores consume. Deleting a
// note publishes a delete event for each cascaded task before the note's own
// delete event.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Two drivers are supported: github.com/mattn/go-sqlite3 ("sqlite3", cgo,
// the default) and modernc.org/sqlite ("sqlite", pure Go).
//
// Timestamps are stored as fixed-width UTC text so that lexical order is
// chronological order.
package store
