// Package gateway defines the contract between the client stores and the
// remote relational store.
//
// A Gateway offers typed CRUD per table plus change subscriptions. Two
// implementations ship with NoteSync: store.Store talks to a local SQLite
// database directly, and remote.Client talks to a notesync server over HTTP
// and WebSocket. The client stores only ever see this interface.
//
// Every failure is reported as *Error with a Code, so callers can tell a
// missing row from a broken transport without string matching.
package gateway
