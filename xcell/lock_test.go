package xcell

import (
	"sync"
	"testing"
)

func TestLockDoSerializes(t *testing.T) {
	t.Parallel()
	var l Lock
	var wg sync.WaitGroup
	n := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Do(func() { n++ })
		}()
	}
	wg.Wait()
	if n != 50 {
		t.Fatalf("expected 50 serialized increments, got %d", n)
	}
}

func TestLockReleasedOnPanic(t *testing.T) {
	t.Parallel()
	var l Lock
	func() {
		defer func() { _ = recover() }()
		l.Do(func() { panic("boom") })
	}()
	acquired := false
	l.Do(func() { acquired = true })
	if !acquired {
		t.Fatal("lock was not released after a panicking critical section")
	}
}
