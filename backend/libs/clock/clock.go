// Package clock abstracts the current time so time-based rules can be tested.
package clock

import "time"

// Precision is the resolution of stored timestamps (Postgres TIMESTAMPTZ).
const Precision = time.Microsecond

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// System reads the wall clock in UTC at storage precision.
type System struct{}

// Now returns time.Now in UTC truncated to Precision.
func (System) Now() time.Time {
	return Normalize(time.Now())
}

// Func adapts a function to Clock.
type Func func() time.Time

// Now calls f.
func (f Func) Now() time.Time {
	return f()
}

// Normalize converts t to UTC at storage precision, so a value survives a database round trip unchanged.
func Normalize(t time.Time) time.Time {
	return t.UTC().Truncate(Precision)
}

// Truncated wraps c so every reading is normalized.
func Truncated(c Clock) Clock {
	return Func(func() time.Time { return Normalize(c.Now()) })
}
