package xcell

import "context"

// cellState is what an Exclusive keeps in its shared allocation: the
// user payload plus the lock and poison flag guarding it.
type cellState[T any] struct {
	lock   Lock
	failed bool
	data   T
}

// Exclusive is a cloneable cell over mutable data protected by a
// Lock. Clones alias one allocation; With serializes access, a panic
// inside With poisons the cell for every sharer, and Unwrap retrieves
// the payload once all other clones are gone.
//
// The restrictions of Lock.Do apply to every With closure.
type Exclusive[T any] struct {
	h *Handle[cellState[T]]
}

// NewExclusive builds a cell around data with a refcount of one.
func NewExclusive[T any](data T, optFns ...Option[T]) *Exclusive[T] {
	var o options[T]
	for _, fn := range optFns {
		fn(&o)
	}
	s := &shared[cellState[T]]{payload: cellState[T]{data: data}}
	if fin := o.finalizer; fin != nil {
		s.opts.finalizer = func(st cellState[T]) { fin(st.data) }
	}
	s.opts.observer = o.observer
	s.refs.Store(1)
	return &Exclusive[T]{h: &Handle[cellState[T]]{s: s}}
}

// Clone returns a new handle to the same cell. The payload is not
// copied.
func (e *Exclusive[T]) Clone() *Exclusive[T] {
	return &Exclusive[T]{h: e.h.Clone()}
}

// With locks the cell and runs f over the payload. If a previous
// critical section panicked, With fails with ErrPoisoned and f never
// runs. An error returned by f is passed through and does not poison
// the cell; only a panic does, and the panic propagates with the lock
// released.
//
// The flag is set before f runs and cleared only on normal return, so
// an aborted critical section reliably leaves the cell poisoned. It
// is never cleared afterwards.
func (e *Exclusive[T]) With(f func(*T) error) error {
	s := e.h.alive()
	st := &s.payload
	var err error
	st.lock.Do(func() {
		if st.failed {
			err = ErrPoisoned
			return
		}
		st.failed = true
		defer func() {
			if st.failed {
				// Unwinding out of f: the cell stays poisoned.
				if obs := s.opts.observer; obs != nil {
					obs.CellPoisoned()
				}
			}
		}()
		err = f(&st.data)
		st.failed = false
	})
	return err
}

// View runs f over a snapshot of the payload, with the same locking
// and poisoning behavior as With.
func (e *Exclusive[T]) View(f func(T) error) error {
	return e.With(func(p *T) error { return f(*p) })
}

// Unwrap consumes e, waits for every other clone to be dropped, and
// returns the payload. The poison flag is discarded: even a poisoned
// cell unwraps. Blocking, conflict, and cancellation behavior are
// those of Handle.Unwrap.
func (e *Exclusive[T]) Unwrap(ctx context.Context) (T, error) {
	st, err := e.h.Unwrap(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	return st.data, nil
}

// TryUnwrap is Unwrap without blocking. On ErrNotLastOwner the cell
// stays valid and usable.
func (e *Exclusive[T]) TryUnwrap() (T, error) {
	st, err := e.h.TryUnwrap()
	if err != nil {
		var zero T
		return zero, err
	}
	return st.data, nil
}

// Drop retires e without retrieving the payload.
func (e *Exclusive[T]) Drop() {
	e.h.Drop()
}
