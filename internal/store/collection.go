package store

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"
)

// Collection is a bounded, concurrency-safe list of records with atomic
// snapshot persistence. At most one mutating operation runs at a time;
// readers always observe a complete pre- or post-state, never a torn mix.
// A mutation commits to memory only after the backend has made it durable,
// so a failed save leaves both the in-memory and persisted state intact.
type Collection[T any] struct {
	backend Backend
	max     int // 0 = unbounded

	mu      sync.RWMutex
	records []T
}

// OpenCollection loads the persisted snapshot (if any) and returns the
// collection. max bounds the record count: appends beyond it drop the
// oldest records.
func OpenCollection[T any](backend Backend, max int) (*Collection[T], error) {
	data, err := backend.Load()
	if err != nil {
		return nil, err
	}
	var records []T
	if len(data) > 0 {
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("store: decode collection: %w", err)
		}
	}
	return &Collection[T]{backend: backend, max: max, records: records}, nil
}

// Snapshot returns a copy of all records in insertion order.
func (c *Collection[T]) Snapshot() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.records)
}

// Len returns the current record count.
func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Append adds a record, trimming the oldest entries if the cap is exceeded.
func (c *Collection[T]) Append(record T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := append(slices.Clone(c.records), record)
	if c.max > 0 && len(next) > c.max {
		next = next[len(next)-c.max:]
	}
	return c.commit(next)
}

// ReplaceAll swaps the full record set.
func (c *Collection[T]) ReplaceAll(records []T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commit(slices.Clone(records))
}

// Update runs fn on a copy of the records inside the collection's critical
// section and commits the result. Returning an error from fn aborts the
// update with no state change. This is the serialization point for
// read-modify-write operations such as policy version increments.
func (c *Collection[T]) Update(fn func(records []T) ([]T, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	next, err := fn(slices.Clone(c.records))
	if err != nil {
		return err
	}
	return c.commit(next)
}

func (c *Collection[T]) commit(next []T) error {
	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode collection: %w", err)
	}
	if err := c.backend.Save(data); err != nil {
		return err
	}
	c.records = next
	return nil
}
