// Package state holds the reactive client stores: notes, tasks and
// preferences.
//
// Each store owns one slice of client state and is the only writer of it.
// Mutations are optimistic: the local state changes first, listeners are
// told, and then the write goes to the gateway. A failed remote write is
// logged and returned but never rolled back.
//
// Inbound change events are reconciled idempotently so a store's own writes
// echoing back from the realtime stream are absorbed:
//   - insert adds the record only if its id is absent
//   - update replaces the whole record by id, unless the local copy has a
//     strictly newer updated_at (a stale echo)
//   - delete removes by id
//
// Listeners run on the goroutine that changed the state, after the store's
// lock has been released, so they may call back into the store.
package state
