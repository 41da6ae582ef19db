package dcaauth

import "time"

// Client-level event names. Manager events are namespaced by family
// ("license.activated", "auth.login", ...) and re-emitted by the client
// unchanged.
const (
	EventRateLimit    = "rate_limit"
	EventRequestRetry = "request:retry"
	EventAuthRefresh  = "auth:refresh"
	EventAuthTokens   = "auth:tokens"
	EventAuthClear    = "auth:clear"
)

// RateLimitEvent is the payload of EventRateLimit.
type RateLimitEvent struct {
	RetryAfter int    `json:"retry_after"`
	Method     string `json:"method"`
	URL        string `json:"url"`
	Family     string `json:"family"`
	Attempt    int    `json:"attempt"`
}

// Retry reasons carried by RetryEvent.
const (
	RetryReasonNetwork   = "network"
	RetryReasonRateLimit = "rate_limit"
	RetryReasonRefresh   = "refresh"
)

// RetryEvent is the payload of EventRequestRetry. Attempt is the number of
// the upcoming retry, starting at 1.
type RetryEvent struct {
	Method  string        `json:"method"`
	URL     string        `json:"url"`
	Attempt int           `json:"attempt"`
	Delay   time.Duration `json:"delay"`
	Reason  string        `json:"reason"`
	Err     error         `json:"-"`
}

// TokensEvent is the payload of EventAuthTokens.
type TokensEvent struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}
