// Package model defines the records shared by every NoteSync layer.
//
// Notes, tasks and preferences are plain value types with JSON tags that
// match the relational column names, so the same structs travel through the
// SQLite backend, the HTTP API, change events and the client stores.
//
// Partial updates are expressed as patch structs. Columns that can be cleared
// use Nullable, which distinguishes "leave alone", "set" and "clear".
package model
