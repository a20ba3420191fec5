package capability

import "time"

// Time is the time capability: now/now_ms/monotonic_ms/date/datetime,
// per spec.md §4.2.
type Time struct {
	monotonicStart time.Time
}

// NewTime returns a Time capability whose monotonic clock is rooted
// at the moment of construction (process start, in practice).
func NewTime() *Time {
	return &Time{monotonicStart: time.Now()}
}

// Now returns seconds since the Unix epoch.
func (t *Time) Now() int64 {
	return time.Now().Unix()
}

// NowMS returns milliseconds since the Unix epoch.
func (t *Time) NowMS() int64 {
	return time.Now().UnixMilli()
}

// MonotonicMS returns milliseconds elapsed since this capability was
// constructed, immune to wall-clock adjustments.
func (t *Time) MonotonicMS() int64 {
	return time.Since(t.monotonicStart).Milliseconds()
}

// Date returns the current UTC date in ISO form (YYYY-MM-DD).
func (t *Time) Date() string {
	return time.Now().UTC().Format("2006-01-02")
}

// DateTime returns the current instant in ISO 8601 UTC with a Z suffix.
func (t *Time) DateTime() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05Z")
}
