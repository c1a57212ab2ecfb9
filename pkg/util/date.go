package util

import (
	"strconv"
	"time"
)

// msThreshold separates unix seconds from unix milliseconds.
const msThreshold = 100_000_000_000

// ParseTime accepts RFC3339 (fractional seconds allowed) and unix epochs in
// seconds or milliseconds. The result is in UTC.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), true
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return time.Time{}, false
	}
	if n >= msThreshold {
		return time.UnixMilli(n).UTC(), true
	}
	return time.Unix(n, 0).UTC(), true
}

// AlignRange snaps [from, to] outward onto step boundaries so the partial
// bucket holding to is requested too. Steps below a minute align to minutes.
func AlignRange(from, to time.Time, step time.Duration) (time.Time, time.Time) {
	if step < time.Minute {
		step = time.Minute
	}
	end := to.Truncate(step)
	if end.Before(to) {
		end = end.Add(step)
	}
	return from.Truncate(step), end
}
