package model

import (
	"bytes"
	"encoding/json"
)

// Nullable is a patch slot for a nullable column.
//
// The zero value leaves the column untouched. Set(v) writes v and Null()
// clears the column. On the wire an untouched slot is an absent key and a
// cleared slot is JSON null.
type Nullable[T any] struct {
	set   bool
	value *T
}

// Set returns a slot that writes v.
func Set[T any](v T) Nullable[T] {
	return Nullable[T]{set: true, value: &v}
}

// Null returns a slot that clears the column.
func Null[T any]() Nullable[T] {
	return Nullable[T]{set: true}
}

// FromPtr returns Set(*p) for a non-nil pointer and Null() otherwise.
func FromPtr[T any](p *T) Nullable[T] {
	if p == nil {
		return Null[T]()
	}
	return Set(*p)
}

// IsSet reports whether the slot touches the column at all.
func (n Nullable[T]) IsSet() bool { return n.set }

// IsNull reports whether the slot clears the column.
func (n Nullable[T]) IsNull() bool { return n.set && n.value == nil }

// Ptr returns the value to write, or nil when the slot is untouched or null.
func (n Nullable[T]) Ptr() *T {
	if n.value == nil {
		return nil
	}
	v := *n.value
	return &v
}

// Apply returns the new column value given the current one.
func (n Nullable[T]) Apply(current *T) *T {
	if !n.set {
		return current
	}
	return n.Ptr()
}

// MarshalJSON encodes a set slot as its value and a null slot as null.
// Untouched slots are dropped by the owning patch's MarshalJSON.
func (n Nullable[T]) MarshalJSON() ([]byte, error) {
	if n.value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*n.value)
}

// UnmarshalJSON marks the slot as set. A literal null clears the column.
func (n *Nullable[T]) UnmarshalJSON(data []byte) error {
	n.set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		n.value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	n.value = &v
	return nil
}
