package shared

import "time"

// Clock supplies wall-clock time. Injectable so timer arithmetic is testable.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the OS clock.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time {
	return time.Now()
}
