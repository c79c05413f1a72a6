package xcell

import "time"

// Observer receives lifecycle hooks from an allocation, attached via
// WithObserver. Implementations must be safe for concurrent use;
// hooks run inline on the calling goroutine and should be cheap.
type Observer interface {
	// HandleCloned fires after a clone; refs is the new live count.
	HandleCloned(refs int64)
	// HandleDropped fires after a handle is retired; refs is the
	// remaining live count.
	HandleDropped(refs int64)
	// UnwrapWaitStarted fires when an unwrapper begins blocking for
	// its siblings. It does not fire for an immediate last-owner
	// unwrap.
	UnwrapWaitStarted()
	// UnwrapWaitFinished fires when the wait ends, with the time
	// spent blocked and the cancellation error if any.
	UnwrapWaitFinished(wait time.Duration, err error)
	// PayloadFreed fires when the payload is destroyed without being
	// extracted.
	PayloadFreed()
	// CellPoisoned fires when a critical section aborts inside With.
	CellPoisoned()
}
