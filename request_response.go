// request_response.go
// -------------------
// Value types that flow through the executor: the caller-facing
// RequestOptions, the Descriptor handed to the middleware chain, and the
// buffered Response.
package dcaauth

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/opengovern/dca-auth-go/apierr"
)

// RequestOptions tune a single Execute call.
type RequestOptions struct {
	Query   url.Values
	Headers map[string]string
	// Body is JSON-encoded unless it is already []byte or json.RawMessage.
	Body any
	// Timeout overrides the configured per-attempt timeout.
	Timeout time.Duration
	// SkipAuth sends the request without any Authorization header.
	SkipAuth bool
	// IdempotencyKey marks a non-idempotent request as safe to retry and is
	// sent as the Idempotency-Key header.
	IdempotencyKey string
	// Family groups endpoints for rate-limit tracking. Defaults to the first
	// path segment after /api.
	Family string

	noRefresh bool
}

// Descriptor is one prepared request. It is never mutated after dispatch;
// middlewares that need to change it work on a Clone.
type Descriptor struct {
	Method    string
	URL       string
	Header    http.Header
	Body      []byte
	Timeout   time.Duration
	SkipAuth  bool
	Family    string
	RequestID string
	// Attempt is zero for the first dispatch of a logical request.
	Attempt int

	noRefresh bool
}

// Clone returns a deep copy of d.
func (d *Descriptor) Clone() *Descriptor {
	c := *d
	c.Header = d.Header.Clone()
	if c.Header == nil {
		c.Header = http.Header{}
	}
	if d.Body != nil {
		c.Body = append([]byte(nil), d.Body...)
	}
	return &c
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// Request is the descriptor that produced this response, after every
	// middleware has run.
	Request *Descriptor
	// Attempts is the number of dispatches made for the logical request.
	Attempts int
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Decode unmarshals the JSON body into v. An empty body leaves v untouched.
func (r *Response) Decode(v any) error {
	if r == nil || len(r.Body) == 0 || v == nil {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		e := apierr.Wrap(apierr.KindUnknown, err, "failed to decode response body")
		e.StatusCode = r.StatusCode
		return e
	}
	return nil
}
