package core

import (
	"time"
)

// Clock returns the current time; engines take one so tests can pin timestamps
type Clock func() time.Time

// SystemClock returns the current UTC time
func SystemClock() time.Time {
	return time.Now().UTC()
}

// Or returns c, or SystemClock when c is nil
func (c Clock) Or() Clock {
	if c == nil {
		return SystemClock
	}
	return c
}

// FixedClock returns a clock that always reports t
func FixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}
