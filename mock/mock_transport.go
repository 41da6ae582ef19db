// Package mock provides a scripted HTTP transport for exercising the SDK
// without a server.
package mock

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"
)

const (
	MockDefaultMaxRequests = 100
	MockDefaultWindowSecs  = 60
)

// Step is one scripted reply.
type Step struct {
	Status int
	Header http.Header
	Body   string
	Err    error         // Returned instead of a response when set
	Delay  time.Duration // Wait before replying; honours request cancellation
}

// JSON is a reply with a JSON body.
func JSON(status int, body string) Step {
	return Step{Status: status, Header: http.Header{"Content-Type": {"application/json"}}, Body: body}
}

// RateLimited is a 429 reply. An empty retryAfter omits the header.
func RateLimited(retryAfter string) Step {
	s := JSON(http.StatusTooManyRequests, `{"message":"Rate limit exceeded","code":"RATE_LIMIT_EXCEEDED"}`)
	if retryAfter != "" {
		s.Header.Set("Retry-After", retryAfter)
	}
	return s
}

// Failure is a transport error.
func Failure(err error) Step {
	return Step{Err: err}
}

// Recorded is a request as the transport saw it.
type Recorded struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Transport replays queued Steps in order and implements the SDK's Doer.
// When the queue is empty it asks Handler, then falls back to 200 {}.
type Transport struct {
	RequestsUntilRateLimit int  // How many requests until we hit a limit
	ShouldReturn429Always  bool // If true, always return 429

	MaxRequests int   // Reported as X-RateLimit-Limit when > 0
	WindowSecs  int64 // Reset window reported once the budget is spent

	Handler func(r Recorded) Step

	mu                  sync.Mutex
	steps               []Step
	recorded            []Recorded
	currentRequestCount int
}

func (m *Transport) SetRateLimitDefaults(maxRequests int, windowSecs int64) {
	if maxRequests == 0 {
		maxRequests = MockDefaultMaxRequests
	}
	if windowSecs == 0 {
		windowSecs = MockDefaultWindowSecs
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MaxRequests = maxRequests
	m.WindowSecs = windowSecs
}

// Enqueue appends scripted replies.
func (m *Transport) Enqueue(steps ...Step) *Transport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, steps...)
	return m
}

// Calls returns the number of requests received.
func (m *Transport) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentRequestCount
}

// Pending returns the number of queued replies not yet served.
func (m *Transport) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.steps)
}

// Requests returns a copy of every request received.
func (m *Transport) Requests() []Recorded {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Recorded(nil), m.recorded...)
}

func (m *Transport) Do(req *http.Request) (*http.Response, error) {
	rec := Recorded{Method: req.Method, URL: req.URL.String(), Header: req.Header.Clone()}
	if req.Body != nil {
		rec.Body, _ = io.ReadAll(req.Body)
		req.Body.Close()
	}

	m.mu.Lock()
	m.currentRequestCount++
	m.recorded = append(m.recorded, rec)
	count := m.currentRequestCount
	var step Step
	switch {
	case m.ShouldReturn429Always || (m.RequestsUntilRateLimit > 0 && count > m.RequestsUntilRateLimit):
		step = RateLimited("")
	case len(m.steps) > 0:
		step = m.steps[0]
		m.steps = m.steps[1:]
	case m.Handler != nil:
		handler := m.Handler
		m.mu.Unlock()
		step = handler(rec)
		m.mu.Lock()
	default:
		step = JSON(http.StatusOK, `{}`)
	}
	header := m.rateLimitHeaders(count)
	m.mu.Unlock()

	if step.Delay > 0 {
		if err := wait(req.Context(), step.Delay); err != nil {
			return nil, err
		}
	}
	if step.Err != nil {
		return nil, step.Err
	}
	if err := req.Context().Err(); err != nil {
		return nil, err
	}

	for k, vs := range step.Header {
		header[k] = append([]string(nil), vs...)
	}
	status := step.Status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		StatusCode: status,
		Status:     strconv.Itoa(status) + " " + http.StatusText(status),
		Header:     header,
		Body:       io.NopCloser(bytes.NewBufferString(step.Body)),
		Request:    req,
	}, nil
}

// rateLimitHeaders reports the remaining budget the way the API does.
func (m *Transport) rateLimitHeaders(count int) http.Header {
	h := http.Header{}
	if m.MaxRequests <= 0 {
		return h
	}
	remaining := m.MaxRequests - count
	if remaining < 0 {
		remaining = 0
	}
	h.Set("X-RateLimit-Limit", strconv.Itoa(m.MaxRequests))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if remaining == 0 {
		h.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Unix()+m.WindowSecs, 10))
	}
	return h
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ErrConnectionRefused is a convenience transport failure.
var ErrConnectionRefused = errors.New("dial tcp 127.0.0.1:443: connect: connection refused")
