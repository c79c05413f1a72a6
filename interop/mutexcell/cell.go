// Package mutexcell provides an adapter that mimics a plain
// mutex-guarded value using the local xcell implementation. It enables
// incremental migration of code built around sync.Mutex plus a field
// without exposing the handle protocol at call sites.
package mutexcell

import (
	"context"

	"github.com/NetPo4ki/go-xcell/xcell"
)

// Cell is a Get/Put-style wrapper over xcell.Exclusive.
type Cell[T any] struct {
	e *xcell.Exclusive[T]
}

// New creates a Cell holding value.
func New[T any](value T) *Cell[T] {
	return &Cell[T]{e: xcell.NewExclusive(value)}
}

// Share returns a second Cell aliasing the same value.
func (c *Cell[T]) Share() *Cell[T] {
	return &Cell[T]{e: c.e.Clone()}
}

// Get returns the current value. It fails with xcell.ErrPoisoned if a
// previous Update panicked.
func (c *Cell[T]) Get() (T, error) {
	var out T
	err := c.e.View(func(v T) error {
		out = v
		return nil
	})
	return out, err
}

// Put replaces the value.
func (c *Cell[T]) Put(value T) error {
	return c.e.With(func(p *T) error {
		*p = value
		return nil
	})
}

// Swap stores value and returns the previous one.
func (c *Cell[T]) Swap(value T) (T, error) {
	var old T
	err := c.e.With(func(p *T) error {
		old, *p = *p, value
		return nil
	})
	return old, err
}

// Update applies f to the value in place under the lock.
func (c *Cell[T]) Update(f func(*T) error) error {
	return c.e.With(f)
}

// Close retires this Cell's handle without retrieving the value.
func (c *Cell[T]) Close() {
	c.e.Drop()
}

// Take waits until every other sharer has called Close and returns
// the value, consuming the Cell.
func (c *Cell[T]) Take(ctx context.Context) (T, error) {
	return c.e.Unwrap(ctx)
}
