// internal/time_parser.go
// ------------------------
// This internal package provides helpers for parsing the time-valued headers the
// DCA-Auth API sends back: Retry-After on 429 responses and the X-RateLimit-Reset
// family on every response.
//
// Functions:
// - ParseRetryAfter: Convert a Retry-After value (delta seconds or HTTP-date) into whole seconds.
// - ParseResetHeader: Convert an X-RateLimit-Reset value (unix seconds or milliseconds) into ms.
// - UnixToMs: Convert a UNIX timestamp in seconds to milliseconds.
// - IsInFuture: Check if a reset timestamp (ms) is still ahead of now.
package internal

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultRetryAfterSeconds is used when a 429 carries no usable Retry-After.
const DefaultRetryAfterSeconds = 60

// ParseRetryAfter converts a Retry-After header into seconds. It returns false
// when the value is absent, negative or unparseable.
func ParseRetryAfter(s string, now time.Time) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	if sec, err := strconv.Atoi(s); err == nil {
		if sec < 0 {
			return 0, false
		}
		return sec, true
	}

	if at, err := http.ParseTime(s); err == nil {
		delta := at.Sub(now)
		if delta <= 0 {
			return 0, true
		}
		return int((delta + time.Second - 1) / time.Second), true
	}

	return 0, false
}

// RetryAfterOrDefault is ParseRetryAfter with the 60 second fallback applied.
func RetryAfterOrDefault(s string, now time.Time) int {
	if sec, ok := ParseRetryAfter(s, now); ok {
		return sec
	}
	return DefaultRetryAfterSeconds
}

// ParseResetHeader converts an X-RateLimit-Reset value into unix milliseconds.
// Values that already look like milliseconds are returned unchanged.
func ParseResetHeader(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	// 1e12 ms is September 2001; anything below is seconds.
	if v < 1_000_000_000_000 {
		return UnixToMs(v), true
	}
	return v, true
}

// UnixToMs converts a UNIX timestamp in seconds to milliseconds.
func UnixToMs(timestamp int64) int64 {
	return timestamp * 1000
}

// IsInFuture reports whether ms (unix milliseconds) lies after now.
func IsInFuture(ms int64, now time.Time) bool {
	return ms > now.UnixMilli()
}
