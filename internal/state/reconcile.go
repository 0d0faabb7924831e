package state

import "time"

// record is an entity that can be reconciled by id and recency.
type record interface {
	Key() string
	Stamp() time.Time
}

// outcome of reconciling one update event.
type outcome int

const (
	// outcomeApplied means the record was replaced or inserted.
	outcomeApplied outcome = iota
	// outcomeStale means the local copy is newer and the event was dropped.
	outcomeStale
	// outcomeAbsent means the id is unknown and upsert was not requested.
	outcomeAbsent
)

func indexOf[T record](list []T, id string) int {
	for i := range list {
		if list[i].Key() == id {
			return i
		}
	}
	return -1
}

// insertRecord adds rec if its id is absent. Lists are never mutated in
// place; a new slice is returned when something changed.
func insertRecord[T record](list []T, rec T, prepend bool) ([]T, bool) {
	if indexOf(list, rec.Key()) >= 0 {
		return list, false
	}
	out := make([]T, 0, len(list)+1)
	if prepend {
		out = append(out, rec)
		out = append(out, list...)
	} else {
		out = append(out, list...)
		out = append(out, rec)
	}
	return out, true
}

// replaceRecord swaps in rec by id. A local copy with a strictly newer stamp
// wins; stamps are assigned by the backend, so they order writes to one row.
// When the id is absent, rec is appended only if upsert is set.
func replaceRecord[T record](list []T, rec T, upsert bool) ([]T, outcome) {
	i := indexOf(list, rec.Key())
	if i < 0 {
		if !upsert {
			return list, outcomeAbsent
		}
		out, _ := insertRecord(list, rec, false)
		return out, outcomeApplied
	}
	if list[i].Stamp().After(rec.Stamp()) {
		return list, outcomeStale
	}
	out := make([]T, len(list))
	copy(out, list)
	out[i] = rec
	return out, outcomeApplied
}

// patchRecord applies fn to the record with the given id.
func patchRecord[T record](list []T, id string, fn func(T) T) ([]T, bool) {
	i := indexOf(list, id)
	if i < 0 {
		return list, false
	}
	out := make([]T, len(list))
	copy(out, list)
	out[i] = fn(out[i])
	return out, true
}

// removeRecord drops the record with the given id.
func removeRecord[T record](list []T, id string) ([]T, bool) {
	i := indexOf(list, id)
	if i < 0 {
		return list, false
	}
	out := make([]T, 0, len(list)-1)
	out = append(out, list[:i]...)
	out = append(out, list[i+1:]...)
	return out, true
}

// inflight tracks local writes that have not come back from the gateway yet.
//
// While a row has writes in flight its optimistic local copy is ahead of any
// echo, so update events for it are held instead of applied. When the last
// write returns, the newest of the held echo and the confirmed record is
// applied, which lets another session's later write win and keeps every
// session converging on the backend's order.
//
// Not safe for concurrent use; callers hold the store lock.
type inflight[T record] struct {
	count map[string]int
	held  map[string]T
}

// begin registers a write for id.
func (w *inflight[T]) begin(id string) {
	if w.count == nil {
		w.count = make(map[string]int)
	}
	w.count[id]++
}

// hold keeps rec if id has writes in flight and reports whether it did.
func (w *inflight[T]) hold(rec T) bool {
	id := rec.Key()
	if w.count[id] == 0 {
		return false
	}
	if w.held == nil {
		w.held = make(map[string]T)
	}
	if cur, ok := w.held[id]; !ok || !cur.Stamp().After(rec.Stamp()) {
		w.held[id] = rec
	}
	return true
}

// end finishes one write for id. confirmed is the record the gateway
// returned, nil when the write failed. Once no write is left, end returns
// the newest record to apply, if any.
func (w *inflight[T]) end(id string, confirmed *T) (T, bool) {
	var zero T
	if confirmed != nil && w.count[id] > 0 {
		w.hold(*confirmed)
	}
	if n := w.count[id] - 1; n > 0 {
		w.count[id] = n
		return zero, false
	}
	delete(w.count, id)

	rec, ok := w.held[id]
	delete(w.held, id)
	if !ok && confirmed != nil {
		return *confirmed, true
	}
	return rec, ok
}

// reset forgets every write. Writes still running end as unknown ids.
func (w *inflight[T]) reset() {
	w.count = nil
	w.held = nil
}
