package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Table names a relational collection that emits change events.
type Table string

const (
	TableNotes       Table = "notes"
	TableTasks       Table = "tasks"
	TablePreferences Table = "user_preferences"
)

// ParseTable validates a table name.
func ParseTable(s string) (Table, error) {
	switch Table(s) {
	case TableNotes, TableTasks, TablePreferences:
		return Table(s), nil
	}
	return "", fmt.Errorf("unknown table %q", s)
}

// Op is the kind of row change.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Change is a row-level change event as delivered by the realtime stream.
//
// New holds the record after an insert or update. Old holds the record before
// an update or delete. Seq is assigned by the broker and increases strictly.
type Change struct {
	Seq     int64           `json:"seq"`
	Table   Table           `json:"table"`
	Op      Op              `json:"op"`
	OwnerID string          `json:"user_id"`
	New     json.RawMessage `json:"new,omitempty"`
	Old     json.RawMessage `json:"old,omitempty"`
}

// Topic returns the topic the change is published on.
func (c Change) Topic() Topic {
	return Topic{Table: c.Table, OwnerID: c.OwnerID}
}

// Topic identifies a change stream: one table, one owner.
// An empty OwnerID or Table matches everything for that segment.
type Topic struct {
	Table   Table
	OwnerID string
}

// String renders the topic as "table/owner".
func (t Topic) String() string {
	return string(t.Table) + "/" + t.OwnerID
}

// globMeta escapes the characters doublestar treats as pattern syntax.
var globMeta = strings.NewReplacer(
	`\`, `\\`,
	"*", `\*`,
	"?", `\?`,
	"[", `\[`,
	"]", `\]`,
	"{", `\{`,
	"}", `\}`,
)

// Pattern renders the topic as a glob pattern, with "*" for empty segments.
// Other segments match literally, whatever characters they hold.
func (t Topic) Pattern() string {
	table, owner := "*", "*"
	if t.Table != "" {
		table = globMeta.Replace(string(t.Table))
	}
	if t.OwnerID != "" {
		owner = globMeta.Replace(t.OwnerID)
	}
	return table + "/" + owner
}

// Event is a decoded change for one record type.
type Event[T any] struct {
	Seq int64
	Op  Op
	New *T
	Old *T
}

// Record returns New when present, otherwise Old.
func (e Event[T]) Record() *T {
	if e.New != nil {
		return e.New
	}
	return e.Old
}

// Decode unmarshals a raw change into a typed event.
func Decode[T any](c Change) (Event[T], error) {
	ev := Event[T]{Seq: c.Seq, Op: c.Op}
	if len(c.New) > 0 && string(c.New) != "null" {
		var rec T
		if err := json.Unmarshal(c.New, &rec); err != nil {
			return ev, fmt.Errorf("decode %s new record: %w", c.Table, err)
		}
		ev.New = &rec
	}
	if len(c.Old) > 0 && string(c.Old) != "null" {
		var rec T
		if err := json.Unmarshal(c.Old, &rec); err != nil {
			return ev, fmt.Errorf("decode %s old record: %w", c.Table, err)
		}
		ev.Old = &rec
	}
	return ev, nil
}

// NewChange encodes records into a change. Either record may be nil.
func NewChange[T any](table Table, op Op, ownerID string, newRec, oldRec *T) (Change, error) {
	c := Change{Table: table, Op: op, OwnerID: ownerID}
	if newRec != nil {
		data, err := json.Marshal(newRec)
		if err != nil {
			return c, fmt.Errorf("encode %s record: %w", table, err)
		}
		c.New = data
	}
	if oldRec != nil {
		data, err := json.Marshal(oldRec)
		if err != nil {
			return c, fmt.Errorf("encode %s record: %w", table, err)
		}
		c.Old = data
	}
	return c, nil
}
