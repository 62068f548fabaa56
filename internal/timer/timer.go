// Package timer provides cancellable scheduled callbacks behind a Clock
// interface so session state can be driven by a manual clock in tests.
package timer

import "time"

// Timer is a handle to a scheduled callback.
type Timer interface {
	// Stop prevents the callback from firing. It reports whether the call
	// stopped the timer before it fired.
	Stop() bool
}

// Clock schedules callbacks.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// System returns the wall clock backed by time.AfterFunc.
func System() Clock { return systemClock{} }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Stop stops t when it is non-nil.
func Stop(t Timer) {
	if t != nil {
		t.Stop()
	}
}
