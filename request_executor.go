package dcaauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/opengovern/dca-auth-go/apierr"
	"github.com/opengovern/dca-auth-go/internal"
)

// ExecutorConfig is the session-wide request configuration shared by every
// manager.
type ExecutorConfig struct {
	BaseURL string
	APIKey  string
	Headers map[string]string

	Timeout       time.Duration
	MaxRetries    int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration

	AutoRefresh             bool
	RefreshSkew             time.Duration
	RetryNonIdempotent      bool
	RespectRateLimitHeaders bool
}

func (c Config) executorConfig() ExecutorConfig {
	return ExecutorConfig{
		BaseURL:                 c.APIURL,
		APIKey:                  c.APIKey,
		Headers:                 c.Headers,
		Timeout:                 c.Timeout,
		MaxRetries:              c.Retries,
		RetryDelay:              c.RetryDelay,
		MaxRetryDelay:           c.MaxRetryDelay,
		AutoRefresh:             c.AutoRefreshToken,
		RefreshSkew:             c.RefreshSkew,
		RetryNonIdempotent:      c.RetryNonIdempotent,
		RespectRateLimitHeaders: c.RespectRateLimitHeaders,
	}
}

// Executor turns (method, path, options) into a dispatched request and owns
// retry, backoff, rate-limit handling and transparent token refresh.
type Executor struct {
	cfg      ExecutorConfig
	doer     Doer
	creds    *CredentialStore
	events   EventPublisher
	limiter  *RateLimiter
	metrics  *Metrics
	logger   *slog.Logger
	dispatch DispatchFunc
	refresh  singleflight.Group

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

type ExecutorOption func(*Executor)

func WithExecutorLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithExecutorMetrics(m *Metrics) ExecutorOption {
	return func(e *Executor) { e.metrics = m }
}

// WithMiddlewares installs user middlewares. mws[0] runs first.
func WithMiddlewares(mws ...Middleware) ExecutorOption {
	return func(e *Executor) { e.dispatch = Chain(e.dispatch, mws...) }
}

func WithRateLimiter(r *RateLimiter) ExecutorOption {
	return func(e *Executor) {
		if r != nil {
			e.limiter = r
		}
	}
}

type nopPublisher struct{}

func (nopPublisher) Emit(string, any) {}

func NewExecutor(cfg ExecutorConfig, doer Doer, creds *CredentialStore, events EventPublisher, opts ...ExecutorOption) *Executor {
	if doer == nil {
		doer = &http.Client{}
	}
	if creds == nil {
		creds = NewCredentialStore(nil)
	}
	if events == nil {
		events = nopPublisher{}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = DefaultMaxRetryDelay
	}
	e := &Executor{
		cfg:     cfg,
		doer:    doer,
		creds:   creds,
		events:  events,
		limiter: NewRateLimiter(),
		logger:  slog.Default(),
		sleep:   sleepContext,
		now:     time.Now,
	}
	// The attach-auth link sits directly above the transport; user
	// middlewares wrap it.
	e.dispatch = e.attachAuth(e.transport)
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(slog.String("component", "executor"))
	return e
}

// Credentials returns the store the executor reads tokens from.
func (e *Executor) Credentials() *CredentialStore { return e.creds }

// RateLimiter returns the header-driven rate limit tracker.
func (e *Executor) RateLimiter() *RateLimiter { return e.limiter }

// Execute runs one logical request. Non-2xx results are returned as
// *apierr.Error; the Response is only returned on success.
func (e *Executor) Execute(ctx context.Context, method, path string, opts RequestOptions) (*Response, error) {
	d, err := e.newDescriptor(method, path, opts)
	if err != nil {
		return nil, err
	}

	if e.canRefresh(d) {
		if token, err := e.creds.AccessToken(ctx); err == nil && token != "" &&
			expiresWithin(token, e.cfg.RefreshSkew, e.now()) {
			e.logger.DebugContext(ctx, "access token near expiry, refreshing ahead of request")
			e.refreshIfStale(ctx, token)
		}
	}

	return e.executeWithRetry(ctx, d)
}

func (e *Executor) newDescriptor(method, path string, opts RequestOptions) (*Descriptor, error) {
	d := &Descriptor{
		Method:    strings.ToUpper(method),
		URL:       e.resolve(path),
		Header:    http.Header{},
		Timeout:   e.cfg.Timeout,
		SkipAuth:  opts.SkipAuth,
		Family:    opts.Family,
		noRefresh: opts.noRefresh,
	}
	if len(opts.Query) > 0 {
		sep := "?"
		if strings.Contains(d.URL, "?") {
			sep = "&"
		}
		d.URL += sep + opts.Query.Encode()
	}
	if opts.Timeout > 0 {
		d.Timeout = opts.Timeout
	}
	if d.Family == "" {
		d.Family = familyOf(path)
	}

	d.Header.Set("Content-Type", "application/json")
	d.Header.Set("Accept", "application/json")
	d.Header.Set("User-Agent", UserAgent)
	d.Header.Set("X-SDK-Version", Version)
	d.Header.Set("X-SDK-Language", "Go")
	for k, v := range e.cfg.Headers {
		d.Header.Set(k, v)
	}
	if e.cfg.APIKey != "" {
		d.Header.Set("X-API-Key", e.cfg.APIKey)
	}
	for k, v := range opts.Headers {
		d.Header.Set(k, v)
	}
	if opts.IdempotencyKey != "" {
		d.Header.Set("Idempotency-Key", opts.IdempotencyKey)
	}
	if d.Header.Get("X-Request-ID") == "" {
		d.Header.Set("X-Request-ID", uuid.NewString())
	}
	d.RequestID = d.Header.Get("X-Request-ID")
	if d.SkipAuth {
		d.Header.Del("Authorization")
	}

	body, err := encodeBody(opts.Body)
	if err != nil {
		return nil, err
	}
	d.Body = body
	return d, nil
}

func (e *Executor) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return e.cfg.BaseURL + "/" + strings.TrimLeft(path, "/")
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	case string:
		return []byte(b), nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindValidation, err, "request body is not JSON encodable")
	}
	return data, nil
}

func (e *Executor) executeWithRetry(ctx context.Context, d *Descriptor) (*Response, error) {
	maxRetries := e.cfg.MaxRetries
	attempt := 0
	dispatches := 0
	refreshed := false

	for {
		if err := ctx.Err(); err != nil {
			return nil, apierr.FromTransportError(err)
		}
		if e.cfg.RespectRateLimitHeaders && !e.limiter.canProceed(d.Family) {
			wait := e.limiter.delayBeforeNextRequest(d.Family)
			e.logger.InfoContext(ctx, "rate limit budget spent, waiting for reset",
				slog.String("family", d.Family), slog.Duration("wait", wait))
			if err := e.sleep(ctx, wait); err != nil {
				return nil, apierr.FromTransportError(err)
			}
		}

		cur := d.Clone()
		cur.Attempt = attempt
		e.logger.DebugContext(ctx, "sending request",
			slog.String("method", cur.Method),
			slog.String("url", cur.URL),
			slog.Int("attempt", attempt+1),
			slog.String("request_id", cur.RequestID))

		resp, err := e.dispatchOnce(ctx, cur)
		dispatches++
		if err != nil {
			apiErr := apierr.FromTransportError(err)
			if ctx.Err() != nil || !isTransportKind(apiErr.Kind) {
				return nil, apiErr
			}
			if attempt < maxRetries && e.retryable(d) {
				delay := e.calculateBackoff(attempt)
				e.logger.WarnContext(ctx, "request failed, retrying",
					slog.String("url", d.URL), slog.String("error", err.Error()),
					slog.Duration("backoff", delay), slog.Int("attempt", attempt+1), slog.Int("max_retries", maxRetries))
				e.emitRetry(d, attempt+1, delay, RetryReasonNetwork, apiErr)
				if err := e.sleep(ctx, delay); err != nil {
					return nil, apierr.FromTransportError(err)
				}
				attempt++
				continue
			}
			e.logger.DebugContext(ctx, "giving up after transport error",
				slog.String("url", d.URL), slog.Int("dispatches", dispatches))
			return nil, apiErr
		}

		resp.Attempts = dispatches
		e.limiter.Update(d.Family, resp.Header)

		switch {
		case resp.OK():
			if dispatches > 1 {
				e.logger.DebugContext(ctx, "request succeeded after retries", slog.Int("dispatches", dispatches))
			}
			return resp, nil

		case resp.StatusCode == http.StatusTooManyRequests:
			retryAfter := internal.RetryAfterOrDefault(resp.Header.Get("Retry-After"), e.now())
			e.metrics.rateLimited(d.Family)
			e.events.Emit(EventRateLimit, RateLimitEvent{
				RetryAfter: retryAfter,
				Method:     d.Method,
				URL:        d.URL,
				Family:     d.Family,
				Attempt:    attempt + 1,
			})
			if attempt < maxRetries {
				delay := time.Duration(retryAfter) * time.Second
				e.logger.InfoContext(ctx, "rate limited, backing off",
					slog.String("url", d.URL), slog.Int("retry_after", retryAfter), slog.Int("attempt", attempt+1))
				e.emitRetry(d, attempt+1, delay, RetryReasonRateLimit, nil)
				if err := e.sleep(ctx, delay); err != nil {
					return nil, apierr.FromTransportError(err)
				}
				attempt++
				continue
			}
			apiErr := apierr.Classify(resp.StatusCode, resp.Header, resp.Body)
			apiErr.RetryAfter = retryAfter
			apiErr.WithDetail("retry_after", retryAfter)
			return nil, apiErr

		case resp.StatusCode == http.StatusUnauthorized:
			if attempt == 0 && !refreshed && e.canRefresh(d) {
				refreshed = true
				sent := ""
				if resp.Request != nil {
					sent = bearerToken(resp.Request.Header.Get("Authorization"))
				}
				if e.refreshIfStale(ctx, sent) {
					e.logger.InfoContext(ctx, "retrying with refreshed token", slog.String("url", d.URL))
					e.emitRetry(d, attempt+1, 0, RetryReasonRefresh, nil)
					continue
				}
			}
			return nil, apierr.Classify(resp.StatusCode, resp.Header, resp.Body)

		default:
			e.logger.DebugContext(ctx, "request failed, not retrying",
				slog.String("url", d.URL), slog.Int("status", resp.StatusCode))
			return nil, apierr.Classify(resp.StatusCode, resp.Header, resp.Body)
		}
	}
}

func (e *Executor) dispatchOnce(ctx context.Context, d *Descriptor) (*Response, error) {
	actx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	start := e.now()
	resp, err := e.dispatch(actx, d)
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	e.metrics.observeRequest(d.Method, d.Family, status, e.now().Sub(start))
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, apierr.New(apierr.KindUnknown, "middleware returned no response")
	}
	return resp, nil
}

// transport is the innermost link: one HTTP round trip with the body fully
// read.
func (e *Executor) transport(ctx context.Context, d *Descriptor) (*Response, error) {
	var body io.Reader
	if d.Body != nil {
		body = bytes.NewReader(d.Body)
	}
	req, err := http.NewRequestWithContext(ctx, d.Method, d.URL, body)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindConfiguration, err, "invalid request")
	}
	req.Header = d.Header.Clone()

	resp, err := e.doer.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		Request:    d,
	}, nil
}

// retryable reports whether a transport failure may be retried: idempotent
// methods always, others only with an Idempotency-Key or when configured.
func (e *Executor) retryable(d *Descriptor) bool {
	switch d.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	}
	return e.cfg.RetryNonIdempotent || d.Header.Get("Idempotency-Key") != ""
}

func (e *Executor) canRefresh(d *Descriptor) bool {
	return e.cfg.AutoRefresh && !d.SkipAuth && !d.noRefresh && d.Header.Get("Authorization") == ""
}

// calculateBackoff returns RetryDelay * 2^attempt capped at MaxRetryDelay.
// NewExecutor guarantees RetryDelay > 0, so a non-positive product can only
// come from overflow.
func (e *Executor) calculateBackoff(attempt int) time.Duration {
	if attempt >= 30 {
		return e.cfg.MaxRetryDelay
	}
	backoff := e.cfg.RetryDelay * time.Duration(1<<attempt)
	if backoff > e.cfg.MaxRetryDelay || backoff <= 0 {
		backoff = e.cfg.MaxRetryDelay
	}
	return backoff
}

func (e *Executor) emitRetry(d *Descriptor, attempt int, delay time.Duration, reason string, err error) {
	e.metrics.retry(reason)
	e.events.Emit(EventRequestRetry, RetryEvent{
		Method:  d.Method,
		URL:     d.URL,
		Attempt: attempt,
		Delay:   delay,
		Reason:  reason,
		Err:     err,
	})
}

func isTransportKind(k apierr.Kind) bool {
	return k == apierr.KindNetwork || k == apierr.KindTimeout
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// errNoRefreshToken is logged when a refresh is requested without a stored
// refresh token.
var errNoRefreshToken = errors.New("no refresh token stored")
