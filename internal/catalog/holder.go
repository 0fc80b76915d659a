package catalog

import (
	"sync/atomic"
)

// Source yields the current table set. Engines call Current once per
// evaluation and use that snapshot throughout.
type Source interface {
	Current() *Tables
}

// Holder publishes whole table sets atomically. Readers never observe a
// partially updated set because a set is never mutated after Swap.
type Holder struct {
	current atomic.Pointer[Tables]
}

// NewHolder starts a holder with the given tables.
func NewHolder(initial *Tables) *Holder {
	h := &Holder{}
	h.current.Store(initial)
	return h
}

// Current returns the active table set.
func (h *Holder) Current() *Tables {
	return h.current.Load()
}

// Swap installs next and returns the previous set. A nil next is ignored.
func (h *Holder) Swap(next *Tables) *Tables {
	if next == nil {
		return h.Current()
	}
	return h.current.Swap(next)
}

// Static wraps a fixed table set as a Source.
type Static struct {
	Tables *Tables
}

// Current returns the wrapped tables.
func (s Static) Current() *Tables {
	return s.Tables
}
