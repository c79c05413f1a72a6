package xcell

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// waitInstalled blocks until an unwrapper has parked its rendezvous
// in the allocation's slot, so tests can order themselves around the
// blocking phase deterministically.
func waitInstalled[T any](t *testing.T, s *shared[T]) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.handoff.Load() == nil {
		if time.Now().After(deadline) {
			t.Fatal("unwrapper never installed its rendezvous")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestFinalizerRunsExactlyOnce(t *testing.T) {
	t.Parallel()
	var freed atomic.Int32
	h := New(7, WithFinalizer[int](func(int) { freed.Add(1) }))
	clones := []*Handle[int]{h}
	for i := 0; i < 5; i++ {
		clones = append(clones, h.Clone())
	}
	for _, c := range clones {
		if got := freed.Load(); got != 0 {
			t.Fatalf("payload freed with live handles remaining: %d", got)
		}
		c.Drop()
	}
	if got := freed.Load(); got != 1 {
		t.Fatalf("expected exactly one finalizer run, got %d", got)
	}
}

func TestUnwrapSoleOwnerDoesNotBlock(t *testing.T) {
	t.Parallel()
	var freed atomic.Int32
	h := New("hello", WithFinalizer[string](func(string) { freed.Add(1) }))
	v, err := h.Unwrap(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "hello" {
		t.Fatalf("unexpected payload: %q", v)
	}
	if freed.Load() != 0 {
		t.Fatal("finalizer must not run for an extracted payload")
	}
}

func TestTryUnwrapSoleOwner(t *testing.T) {
	t.Parallel()
	h := New("hello")
	v, err := h.TryUnwrap()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "hello" {
		t.Fatalf("unexpected payload: %q", v)
	}
}

func TestTryUnwrapWithSibling(t *testing.T) {
	t.Parallel()
	a, b := NewPair(42)
	if _, err := b.TryUnwrap(); !errors.Is(err, ErrNotLastOwner) {
		t.Fatalf("expected ErrNotLastOwner, got %v", err)
	}
	// The failed attempt must leave b intact.
	b2 := b.Clone()
	b2.Drop()
	a.Drop()
	v, err := b.TryUnwrap()
	if err != nil {
		t.Fatalf("unexpected error after sibling drop: %v", err)
	}
	if v != 42 {
		t.Fatalf("unexpected payload: %d", v)
	}
}

func TestUnwrapBlocksUntilSiblingDrop(t *testing.T) {
	t.Parallel()
	a, b := NewPair("hello")
	s := a.s
	got := make(chan string, 1)
	go func() {
		v, err := a.Unwrap(context.Background())
		if err != nil {
			t.Error("unwrap failed:", err)
		}
		got <- v
	}()
	waitInstalled(t, s)
	select {
	case v := <-got:
		t.Fatalf("unwrap returned %q before the sibling was dropped", v)
	case <-time.After(30 * time.Millisecond):
	}
	b.Drop()
	select {
	case v := <-got:
		if v != "hello" {
			t.Fatalf("unexpected payload: %q", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("unwrap did not return after sibling drop")
	}
}

func TestConcurrentUnwrapConflict(t *testing.T) {
	t.Parallel()
	a, b := NewPair("hello")
	s := a.s
	got := make(chan string, 1)
	go func() {
		v, err := a.Unwrap(context.Background())
		if err != nil {
			t.Error("winning unwrap failed:", err)
		}
		got <- v
	}()
	waitInstalled(t, s)
	if _, err := b.Unwrap(context.Background()); !errors.Is(err, ErrUnwrapConflict) {
		t.Fatalf("expected ErrUnwrapConflict, got %v", err)
	}
	// The loser's reference was released like a drop, which wakes the
	// winner.
	select {
	case v := <-got:
		if v != "hello" {
			t.Fatalf("unexpected payload: %q", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("winning unwrap never returned")
	}
}

func TestUnwrapCancelledSiblingFrees(t *testing.T) {
	t.Parallel()
	var freed atomic.Int32
	a, b := NewPair(1, WithFinalizer[int](func(int) { freed.Add(1) }))
	s := a.s
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := a.Unwrap(ctx)
		errc <- err
	}()
	waitInstalled(t, s)
	cancel()
	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled unwrap never returned")
	}
	if freed.Load() != 0 {
		t.Fatal("payload freed before the surviving sibling dropped")
	}
	b.Drop()
	if got := freed.Load(); got != 1 {
		t.Fatalf("expected the sibling drop to free the payload once, got %d", got)
	}
}

func TestTryUnwrapLosesToInstalledUnwrapper(t *testing.T) {
	t.Parallel()
	a, b := NewPair("hello")
	s := a.s
	got := make(chan string, 1)
	go func() {
		v, err := a.Unwrap(context.Background())
		if err != nil {
			t.Error("unwrap failed:", err)
		}
		got <- v
	}()
	waitInstalled(t, s)
	// The unwrapper has already given up its reference, so the count
	// reads one here. The installed rendezvous must still win.
	if _, err := b.TryUnwrap(); !errors.Is(err, ErrNotLastOwner) {
		t.Fatalf("expected ErrNotLastOwner, got %v", err)
	}
	b.Drop()
	select {
	case v := <-got:
		if v != "hello" {
			t.Fatalf("unexpected payload: %q", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("unwrap never returned")
	}
}

func TestConsumedHandlePanics(t *testing.T) {
	t.Parallel()
	h := New(1)
	h.Drop()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on use of consumed handle")
		}
	}()
	h.Clone()
}

type countObserver struct {
	cloned   atomic.Int64
	dropped  atomic.Int64
	waits    atomic.Int64
	waitDone atomic.Int64
	freed    atomic.Int64
	poisoned atomic.Int64
}

func (o *countObserver) HandleCloned(int64)                      { o.cloned.Add(1) }
func (o *countObserver) HandleDropped(int64)                     { o.dropped.Add(1) }
func (o *countObserver) UnwrapWaitStarted()                      { o.waits.Add(1) }
func (o *countObserver) UnwrapWaitFinished(time.Duration, error) { o.waitDone.Add(1) }
func (o *countObserver) PayloadFreed()                           { o.freed.Add(1) }
func (o *countObserver) CellPoisoned()                           { o.poisoned.Add(1) }

func TestObserverHooks(t *testing.T) {
	t.Parallel()
	obs := &countObserver{}
	h := New("data", WithObserver[string](obs))
	c := h.Clone()
	c.Drop()
	h.Drop()
	if obs.cloned.Load() != 1 || obs.dropped.Load() != 2 || obs.freed.Load() != 1 {
		t.Fatalf("unexpected observer counts: cloned=%d dropped=%d freed=%d",
			obs.cloned.Load(), obs.dropped.Load(), obs.freed.Load())
	}
}
