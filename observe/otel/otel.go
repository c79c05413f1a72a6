package otel

import "time"

// Nop is a no-op implementation of the xcell.Observer interface.
// It serves as a placeholder for an OpenTelemetry-backed observer without adding dependencies.
type Nop struct{}

// NewNop returns a no-op observer.
func NewNop() *Nop { return &Nop{} }

func (*Nop) HandleCloned(int64)                      {}
func (*Nop) HandleDropped(int64)                     {}
func (*Nop) UnwrapWaitStarted()                      {}
func (*Nop) UnwrapWaitFinished(time.Duration, error) {}
func (*Nop) PayloadFreed()                           {}
func (*Nop) CellPoisoned()                           {}
