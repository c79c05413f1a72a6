package xcell

import "sync"

// Lock is a scoped mutual-exclusion primitive for short critical
// sections. The zero value is ready to use.
//
// This is a plain OS-level mutex that knows nothing about schedulers.
// The closure passed to Do must not block or reschedule: no channel
// operations, no I/O, no Unwrap. Sleeping while holding the lock
// stalls every other sharer.
type Lock struct {
	mu sync.Mutex
}

// Do runs f while holding the lock. The lock is released on every
// exit path of f, including panic.
func (l *Lock) Do(f func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	f()
}
