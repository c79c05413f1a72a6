package xcell

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

type Option[T any] func(*options[T])

type options[T any] struct {
	finalizer func(T)
	observer  Observer
}

// WithFinalizer registers fin to run on the payload when the
// allocation is freed without the payload being extracted. Extraction
// (Unwrap, TryUnwrap) transfers that responsibility to the caller
// instead. Exactly one of the two happens per allocation.
func WithFinalizer[T any](fin func(T)) Option[T] {
	return func(o *options[T]) { o.finalizer = fin }
}

// WithObserver attaches obs to the allocation. See Observer.
func WithObserver[T any](obs Observer) Option[T] {
	return func(o *options[T]) { o.observer = obs }
}

// rendezvous is the one-shot handoff pair an unwrapper installs into
// the allocation's slot. Both channels are buffered so neither side's
// send can block: the dropper sends ready and then waits for the ack;
// the unwrapper answers exactly once, true meaning it took the
// payload and false meaning it was cancelled and the dropper must
// free the payload itself.
type rendezvous struct {
	ready chan struct{}
	ack   chan bool
}

func newRendezvous() *rendezvous {
	return &rendezvous{ready: make(chan struct{}, 1), ack: make(chan bool, 1)}
}

// shared is the refcounted allocation behind one or more Handles.
// refs counts live handles. handoff is the unwrap slot: nil means
// idle, non-nil means an unwrapper is installed; it moves from nil to
// non-nil at most once, by compare-and-swap.
type shared[T any] struct {
	refs    atomic.Int64
	handoff atomic.Pointer[rendezvous]
	payload T
	opts    options[T]
}

// Handle is a cloneable reference to a shared allocation. Many
// handles may alias one allocation. A Handle is moved, not copied:
// Drop, Unwrap, and a successful TryUnwrap all consume it, and any
// further use panics.
type Handle[T any] struct {
	s *shared[T]
}

// New allocates a fresh cell around data with a refcount of one.
func New[T any](data T, optFns ...Option[T]) *Handle[T] {
	s := &shared[T]{payload: data}
	for _, fn := range optFns {
		fn(&s.opts)
	}
	s.refs.Store(1)
	return &Handle[T]{s: s}
}

// NewPair is New with an extra pre-cloned handle: one allocation,
// refcount two.
func NewPair[T any](data T, optFns ...Option[T]) (*Handle[T], *Handle[T]) {
	s := &shared[T]{payload: data}
	for _, fn := range optFns {
		fn(&s.opts)
	}
	s.refs.Store(2)
	return &Handle[T]{s: s}, &Handle[T]{s: s}
}

func (h *Handle[T]) alive() *shared[T] {
	if h.s == nil {
		panic("xcell: use of consumed Handle")
	}
	return h.s
}

// take consumes the handle: the caller now speaks for its reference.
func (h *Handle[T]) take() *shared[T] {
	s := h.alive()
	h.s = nil
	return s
}

// get returns the payload in place. Callers must hold a live handle
// and coordinate access themselves; Exclusive does it under its lock.
func (h *Handle[T]) get() *T {
	return &h.alive().payload
}

// Clone returns a new Handle aliasing the same allocation. The
// payload is not copied. Clone cannot fail while h is live, since a
// live handle keeps the refcount at one or more.
func (h *Handle[T]) Clone() *Handle[T] {
	s := h.alive()
	refs := s.refs.Add(1)
	if refs < 2 {
		panic("xcell: clone of a dead allocation")
	}
	if obs := s.opts.observer; obs != nil {
		obs.HandleCloned(refs)
	}
	return &Handle[T]{s: s}
}

// Drop retires h. If it was the last live handle, the payload is
// either freed here or handed to a waiting unwrapper, whichever the
// handoff slot says.
func (h *Handle[T]) Drop() {
	h.take().release()
}

// release gives up one reference. The decrement must not be reordered
// around the handoff inspection: an unwrapper installs its rendezvous
// before dropping its own reference, so whoever sees the count reach
// zero also sees the slot.
func (s *shared[T]) release() {
	refs := s.refs.Add(-1)
	if refs < 0 {
		panic("xcell: refcount underflow")
	}
	if obs := s.opts.observer; obs != nil {
		obs.HandleDropped(refs)
	}
	if refs > 0 {
		return
	}
	// Last one awake. Either an unwrapper is parked in the slot, or
	// the payload dies here.
	if r := s.handoff.Load(); r != nil {
		r.ready <- struct{}{}
		if <-r.ack {
			return // unwrapper took the payload
		}
		// Unwrapper was cancelled mid-wait; the payload is ours.
	}
	s.free()
}

func (s *shared[T]) free() {
	if fin := s.opts.finalizer; fin != nil {
		fin(s.payload)
	}
	if obs := s.opts.observer; obs != nil {
		obs.PayloadFreed()
	}
}

// Unwrap consumes h, waits until every sibling handle has been
// dropped, and returns the payload. If h is the only live handle the
// payload is returned immediately, without blocking. At most one
// unwrapper may be outstanding per allocation; a second concurrent
// call fails with ErrUnwrapConflict.
//
// Cancellation is honored only while blocked waiting for siblings.
// On cancellation the ctx error is returned, no payload is ever
// delivered on that path, and the dropping sibling frees the payload
// exactly once. All other bookkeeping in the protocol runs without
// interruption.
//
// A goroutine holding two handles to one allocation that unwraps one
// while never dropping the other deadlocks itself. That is a caller
// error; there is no detection for it.
func (h *Handle[T]) Unwrap(ctx context.Context) (T, error) {
	s := h.take()
	r := newRendezvous()
	if !s.handoff.CompareAndSwap(nil, r) {
		// Someone else is already unwrapping. Give up our reference
		// like an ordinary drop so the winner still gets woken.
		s.release()
		var zero T
		return zero, ErrUnwrapConflict
	}
	// We are installed. Our own reference no longer counts: from here
	// the last dropper wakes us through the slot.
	refs := s.refs.Add(-1)
	if refs < 0 {
		panic("xcell: refcount underflow")
	}
	if refs == 0 {
		// Last owner after all; take the payload immediately.
		return s.payload, nil
	}
	obs := s.opts.observer
	var start time.Time
	if obs != nil {
		start = time.Now()
		obs.UnwrapWaitStarted()
	}
	select {
	case <-r.ready:
		r.ack <- true
		if obs != nil {
			obs.UnwrapWaitFinished(time.Since(start), nil)
		}
		return s.payload, nil
	case <-ctx.Done():
		// Complete the handshake before propagating: the sibling's
		// drop must learn it still owns the payload.
		r.ack <- false
		err := fmt.Errorf("unwrap cancelled: %w", ctx.Err())
		if obs != nil {
			obs.UnwrapWaitFinished(time.Since(start), err)
		}
		var zero T
		return zero, err
	}
}

// TryUnwrap is Unwrap without blocking. It succeeds only when h is
// the sole live handle and no unwrapper is installed; otherwise it
// fails with ErrNotLastOwner and h stays valid. A racing Unwrap
// always wins: once its rendezvous is in the slot, TryUnwrap fails
// even if the refcount momentarily reads one.
func (h *Handle[T]) TryUnwrap() (T, error) {
	s := h.alive()
	// A count of one means no racing clone or drop is possible: we
	// hold the only handle. An unwrapper installs its rendezvous
	// before giving up its reference, so seeing one here guarantees
	// the slot load below observes any installed unwrapper.
	if s.refs.Load() == 1 && s.handoff.Load() == nil {
		h.s = nil
		return s.payload, nil
	}
	var zero T
	return zero, ErrNotLastOwner
}
