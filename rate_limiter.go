// rate_limiter.go
// ----------------
// This file defines the RateLimiter type, which stores the rate limit state the
// API reports through X-RateLimit-* headers, keyed by resource family
// ("licenses", "auth", "users", ...).
//
// Responsibilities:
// - Capturing X-RateLimit-Limit, X-RateLimit-Remaining and X-RateLimit-Reset.
// - Checking if requests can proceed based on Remaining and ResetAt.
// - Calculating the delay before the next allowed request when the budget is spent.
package dcaauth

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/opengovern/dca-auth-go/internal"
)

// RateLimitInfo is the last rate limit state seen for a family.
type RateLimitInfo struct {
	Limit     *int
	Remaining *int
	// ResetAt is in unix milliseconds.
	ResetAt *int64
	// UpdatedAt is when the headers were observed.
	UpdatedAt time.Time
}

type RateLimiter struct {
	mu     sync.Mutex
	limits map[string]*RateLimitInfo
	now    func() time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		limits: make(map[string]*RateLimitInfo),
		now:    time.Now,
	}
}

// Update records the rate limit headers of a response. Responses without any
// X-RateLimit-* header leave the stored state untouched.
func (r *RateLimiter) Update(family string, h http.Header) {
	info := parseRateLimitHeaders(h)
	if info == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	info.UpdatedAt = r.now()
	r.limits[family] = info
}

func parseRateLimitHeaders(h http.Header) *RateLimitInfo {
	var info RateLimitInfo
	found := false

	if v, ok := headerInt(h, "X-RateLimit-Limit"); ok {
		info.Limit = &v
		found = true
	}
	if v, ok := headerInt(h, "X-RateLimit-Remaining"); ok {
		info.Remaining = &v
		found = true
	}
	if ms, ok := internal.ParseResetHeader(h.Get("X-RateLimit-Reset")); ok {
		info.ResetAt = &ms
		found = true
	}
	if !found {
		return nil
	}
	return &info
}

func headerInt(h http.Header, name string) (int, bool) {
	v, err := strconv.Atoi(strings.TrimSpace(h.Get(name)))
	if err != nil {
		return 0, false
	}
	return v, true
}

// canProceed reports false while the family's budget is spent and its reset
// time has not passed.
func (r *RateLimiter) canProceed(family string) bool {
	return r.delayBeforeNextRequest(family) == 0
}

// delayBeforeNextRequest returns how long to wait before the family may be
// called again.
func (r *RateLimiter) delayBeforeNextRequest(family string) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, ok := r.limits[family]
	if !ok || info == nil {
		return 0
	}
	if info.Remaining != nil && *info.Remaining <= 0 && info.ResetAt != nil {
		now := r.now()
		if internal.IsInFuture(*info.ResetAt, now) {
			return time.Duration(*info.ResetAt-now.UnixMilli()) * time.Millisecond
		}
	}
	return 0
}

// Info returns a copy of the stored state for family, or nil.
func (r *RateLimiter) Info(family string) *RateLimitInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	if info, ok := r.limits[family]; ok {
		c := *info
		return &c
	}
	return nil
}

// familyOf derives the rate-limit family from a request path:
// "/api/licenses/verify" -> "licenses".
func familyOf(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) > 0 && parts[0] == "api" {
		parts = parts[1:]
	}
	if len(parts) == 0 || parts[0] == "" {
		return "default"
	}
	return parts[0]
}
