package xcell

import "errors"

var (
	// ErrPoisoned reports that a previous critical section panicked
	// inside With. Every clone sharing the cell observes it, forever.
	ErrPoisoned = errors.New("poisoned cell: another goroutine failed inside With")

	// ErrUnwrapConflict reports a second concurrent Unwrap on the same
	// allocation. Only one outstanding unwrapper is supported; the
	// loser is told immediately instead of deadlocking.
	ErrUnwrapConflict = errors.New("another goroutine is already unwrapping this cell")

	// ErrNotLastOwner reports that TryUnwrap found other live handles,
	// or an installed unwrapper. The handle remains usable.
	ErrNotLastOwner = errors.New("not the last owner")
)
