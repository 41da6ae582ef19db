package dcaauth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opengovern/dca-auth-go/apierr"
	"github.com/opengovern/dca-auth-go/emitter"
	"github.com/opengovern/dca-auth-go/mock"
)

const testBaseURL = "https://api.test"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		BaseURL:       testBaseURL,
		APIKey:        "key-123",
		Timeout:       time.Second,
		MaxRetries:    3,
		RetryDelay:    100 * time.Millisecond,
		MaxRetryDelay: 30 * time.Second,
		AutoRefresh:   true,
		RefreshSkew:   30 * time.Second,
	}
}

type harness struct {
	exec   *Executor
	events *emitter.Emitter
	creds  *CredentialStore

	mu     sync.Mutex
	sleeps []time.Duration
	fired  []string
}

func newHarness(t *testing.T, doer Doer, cfg ExecutorConfig, opts ...ExecutorOption) *harness {
	t.Helper()
	h := &harness{events: emitter.New(emitter.WithLogger(discardLogger())), creds: NewCredentialStore(nil)}
	h.events.On(emitter.Wildcard, func(ev string, _ any) {
		h.mu.Lock()
		h.fired = append(h.fired, ev)
		h.mu.Unlock()
	})
	opts = append([]ExecutorOption{WithExecutorLogger(discardLogger())}, opts...)
	h.exec = NewExecutor(cfg, doer, h.creds, h.events, opts...)
	h.exec.sleep = func(ctx context.Context, d time.Duration) error {
		h.mu.Lock()
		h.sleeps = append(h.sleeps, d)
		h.mu.Unlock()
		return ctx.Err()
	}
	return h
}

func (h *harness) count(event string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, e := range h.fired {
		if e == event {
			n++
		}
	}
	return n
}

// authRouter answers refresh with the given pair and other requests with 200
// only when they carry Bearer valid.
func authRouter(valid string, pair TokenPair, refreshes *int32) func(mock.Recorded) mock.Step {
	return func(r mock.Recorded) mock.Step {
		if strings.HasSuffix(r.URL, refreshPath) {
			atomic.AddInt32(refreshes, 1)
			body, _ := json.Marshal(pair)
			return mock.JSON(http.StatusOK, string(body))
		}
		if r.Header.Get("Authorization") == "Bearer "+valid {
			return mock.JSON(http.StatusOK, `{"ok":true}`)
		}
		return mock.JSON(http.StatusUnauthorized, `{"message":"Token expired","code":"TOKEN_EXPIRED"}`)
	}
}

func TestExecute_RefreshesOnceOn401AndRetriesWithNewToken(t *testing.T) {
	var refreshes int32
	tr := &mock.Transport{Handler: authRouter("new", TokenPair{AccessToken: "new", RefreshToken: "r2"}, &refreshes)}
	h := newHarness(t, tr, testExecutorConfig())
	require.NoError(t, h.creds.SetTokens(context.Background(), "old", "r1"))

	resp, err := h.exec.Execute(context.Background(), http.MethodGet, "/api/licenses/L-1", RequestOptions{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Body))
	assert.Equal(t, int32(1), refreshes)

	reqs := tr.Requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, "Bearer old", reqs[0].Header.Get("Authorization"))

	assert.Equal(t, testBaseURL+refreshPath, reqs[1].URL)
	assert.Empty(t, reqs[1].Header.Get("Authorization"))
	assert.JSONEq(t, `{"refreshToken":"r1"}`, string(reqs[1].Body))

	assert.Equal(t, "Bearer new", reqs[2].Header.Get("Authorization"))
	assert.Equal(t, reqs[0].Header.Get("X-Request-ID"), reqs[2].Header.Get("X-Request-ID"))

	access, refresh, err := h.creds.Tokens(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new", access)
	assert.Equal(t, "r2", refresh)
	assert.Equal(t, 1, h.count(EventAuthRefresh))
	assert.Empty(t, h.sleeps)
}

func TestExecute_401WithoutRefreshTokenIsTerminal(t *testing.T) {
	tr := (&mock.Transport{}).Enqueue(mock.JSON(http.StatusUnauthorized, `{"message":"nope"}`))
	h := newHarness(t, tr, testExecutorConfig())
	require.NoError(t, h.creds.SetTokens(context.Background(), "old", ""))

	_, err := h.exec.Execute(context.Background(), http.MethodGet, "/api/auth/me", RequestOptions{})
	require.Error(t, err)
	assert.True(t, apierr.IsAuthentication(err))
	assert.Equal(t, 1, tr.Calls())
	assert.Equal(t, 0, h.count(EventAuthRefresh))
}

func TestExecute_FailedRefreshLeavesTokensUntouched(t *testing.T) {
	tr := &mock.Transport{Handler: func(r mock.Recorded) mock.Step {
		return mock.JSON(http.StatusUnauthorized, `{"message":"invalid"}`)
	}}
	h := newHarness(t, tr, testExecutorConfig())
	require.NoError(t, h.creds.SetTokens(context.Background(), "old", "r1"))

	_, err := h.exec.Execute(context.Background(), http.MethodGet, "/api/auth/me", RequestOptions{})
	assert.True(t, apierr.IsAuthentication(err))
	assert.Equal(t, 2, tr.Calls())

	access, refresh, _ := h.creds.Tokens(context.Background())
	assert.Equal(t, "old", access)
	assert.Equal(t, "r1", refresh)
}

func TestExecute_StillUnauthorizedAfterRefreshDoesNotLoop(t *testing.T) {
	var refreshes int32
	tr := &mock.Transport{Handler: authRouter("never", TokenPair{AccessToken: "new", RefreshToken: "r2"}, &refreshes)}
	h := newHarness(t, tr, testExecutorConfig())
	require.NoError(t, h.creds.SetTokens(context.Background(), "old", "r1"))

	_, err := h.exec.Execute(context.Background(), http.MethodGet, "/api/auth/me", RequestOptions{})
	assert.True(t, apierr.IsAuthentication(err))
	assert.Equal(t, int32(1), refreshes)
	assert.Equal(t, 3, tr.Calls())
}

func TestExecute_AutoRefreshDisabled(t *testing.T) {
	var refreshes int32
	tr := &mock.Transport{Handler: authRouter("new", TokenPair{AccessToken: "new"}, &refreshes)}
	cfg := testExecutorConfig()
	cfg.AutoRefresh = false
	h := newHarness(t, tr, cfg)
	require.NoError(t, h.creds.SetTokens(context.Background(), "old", "r1"))

	_, err := h.exec.Execute(context.Background(), http.MethodGet, "/api/auth/me", RequestOptions{})
	assert.True(t, apierr.IsAuthentication(err))
	assert.Equal(t, int32(0), refreshes)
}

func TestRefresh_WithoutRefreshTokenMakesNoRequest(t *testing.T) {
	tr := &mock.Transport{}
	h := newHarness(t, tr, testExecutorConfig())

	assert.False(t, h.exec.Refresh(context.Background()))
	assert.Equal(t, 0, tr.Calls())
}

func TestRefresh_ConcurrentCallersShareOneExchange(t *testing.T) {
	var refreshes int32
	mux := http.NewServeMux()
	mux.HandleFunc(refreshPath, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&refreshes, 1)
		time.Sleep(50 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"accessToken":"new","refreshToken":"r2"}`))
	})
	mux.HandleFunc("/api/licenses", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer new" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"expired"}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":[]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := testExecutorConfig()
	cfg.BaseURL = srv.URL
	h := newHarness(t, srv.Client(), cfg)
	require.NoError(t, h.creds.SetTokens(context.Background(), "old", "r1"))

	const callers = 10
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.exec.Execute(context.Background(), http.MethodGet, "/api/licenses", RequestOptions{})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&refreshes))
	assert.Equal(t, 1, h.count(EventAuthRefresh))
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestExecute_RefreshesAheadOfExpiry(t *testing.T) {
	var refreshes int32
	fresh := signedToken(t, time.Now().Add(time.Hour))
	tr := &mock.Transport{Handler: authRouter(fresh, TokenPair{AccessToken: fresh, RefreshToken: "r2"}, &refreshes)}
	h := newHarness(t, tr, testExecutorConfig())
	require.NoError(t, h.creds.SetTokens(context.Background(), signedToken(t, time.Now().Add(10*time.Second)), "r1"))

	_, err := h.exec.Execute(context.Background(), http.MethodGet, "/api/licenses", RequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(1), refreshes)

	reqs := tr.Requests()
	require.Len(t, reqs, 2)
	assert.True(t, strings.HasSuffix(reqs[0].URL, refreshPath))
	assert.Equal(t, "Bearer "+fresh, reqs[1].Header.Get("Authorization"))
}

func TestExecute_RateLimitWaitsRetryAfter(t *testing.T) {
	tr := (&mock.Transport{}).Enqueue(mock.RateLimited("2"), mock.JSON(http.StatusOK, `{}`))
	h := newHarness(t, tr, testExecutorConfig())

	var got RateLimitEvent
	h.events.On(EventRateLimit, func(_ string, p any) { got = p.(RateLimitEvent) })

	resp, err := h.exec.Execute(context.Background(), http.MethodGet, "/api/licenses", RequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Attempts)
	assert.Equal(t, []time.Duration{2 * time.Second}, h.sleeps)
	assert.Equal(t, 2, got.RetryAfter)
	assert.Equal(t, "licenses", got.Family)
	assert.Equal(t, 1, h.count(EventRequestRetry))
}

func TestExecute_RateLimitExhaustedDefaultsTo60(t *testing.T) {
	tr := (&mock.Transport{}).Enqueue(mock.RateLimited(""))
	cfg := testExecutorConfig()
	cfg.MaxRetries = 0
	h := newHarness(t, tr, cfg)

	var got RateLimitEvent
	h.events.On(EventRateLimit, func(_ string, p any) { got = p.(RateLimitEvent) })

	_, err := h.exec.Execute(context.Background(), http.MethodPost, "/api/licenses/verify", RequestOptions{})
	require.Error(t, err)

	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierr.KindRateLimit, apiErr.Kind)
	assert.Equal(t, 60, apiErr.RetryAfter)
	assert.Equal(t, 60, apiErr.Details["retry_after"])
	assert.Equal(t, 60, got.RetryAfter)
	assert.Empty(t, h.sleeps)
	assert.Equal(t, 1, tr.Calls())
}

func TestExecute_RateLimitExhaustionAfterRetries(t *testing.T) {
	tr := &mock.Transport{ShouldReturn429Always: true}
	h := newHarness(t, tr, testExecutorConfig())

	_, err := h.exec.Execute(context.Background(), http.MethodGet, "/api/licenses", RequestOptions{})
	assert.True(t, apierr.IsRateLimit(err))
	assert.Equal(t, 4, tr.Calls())
	assert.Len(t, h.sleeps, 3)
}

func TestExecute_NetworkBackoffDoublesAndStopsAtMax(t *testing.T) {
	tr := &mock.Transport{Handler: func(mock.Recorded) mock.Step { return mock.Failure(mock.ErrConnectionRefused) }}
	h := newHarness(t, tr, testExecutorConfig())

	_, err := h.exec.Execute(context.Background(), http.MethodGet, "/api/licenses", RequestOptions{})
	require.Error(t, err)
	assert.Equal(t, apierr.KindNetwork, apierr.KindOf(err))
	assert.ErrorIs(t, err, mock.ErrConnectionRefused)

	assert.Equal(t, 4, tr.Calls())
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
	}, h.sleeps)
	assert.Equal(t, 3, h.count(EventRequestRetry))
}

func TestExecute_NetworkRecoveryReturnsResponse(t *testing.T) {
	tr := (&mock.Transport{}).Enqueue(
		mock.Failure(mock.ErrConnectionRefused),
		mock.JSON(http.StatusOK, `{"valid":true}`),
	)
	h := newHarness(t, tr, testExecutorConfig())

	resp, err := h.exec.Execute(context.Background(), http.MethodGet, "/api/licenses", RequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Attempts)
	assert.Equal(t, []time.Duration{100 * time.Millisecond}, h.sleeps)
}

func TestCalculateBackoff_Capped(t *testing.T) {
	cfg := testExecutorConfig()
	cfg.RetryDelay = 10 * time.Second
	e := NewExecutor(cfg, &mock.Transport{}, nil, nil)

	assert.Equal(t, 10*time.Second, e.calculateBackoff(0))
	assert.Equal(t, 20*time.Second, e.calculateBackoff(1))
	assert.Equal(t, 30*time.Second, e.calculateBackoff(2))
	assert.Equal(t, 30*time.Second, e.calculateBackoff(40))
}

func TestNewExecutor_ZeroConfigUsesDefaults(t *testing.T) {
	tr := &mock.Transport{}
	e := NewExecutor(ExecutorConfig{BaseURL: testBaseURL}, tr, nil, nil, WithExecutorLogger(discardLogger()))

	assert.Equal(t, DefaultTimeout, e.cfg.Timeout)
	assert.Equal(t, DefaultRetryDelay, e.cfg.RetryDelay)
	assert.Equal(t, DefaultMaxRetryDelay, e.cfg.MaxRetryDelay)
	assert.Equal(t, DefaultRetryDelay, e.calculateBackoff(0))
	assert.Equal(t, 2*DefaultRetryDelay, e.calculateBackoff(1))

	resp, err := e.Execute(context.Background(), http.MethodGet, "/api/licenses", RequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, tr.Calls())
}

func TestExecute_PostNotRetriedOnTransportFailure(t *testing.T) {
	tr := &mock.Transport{Handler: func(mock.Recorded) mock.Step { return mock.Failure(mock.ErrConnectionRefused) }}
	h := newHarness(t, tr, testExecutorConfig())

	_, err := h.exec.Execute(context.Background(), http.MethodPost, "/api/licenses/activate", RequestOptions{Body: map[string]string{"key": "K"}})
	assert.Equal(t, apierr.KindNetwork, apierr.KindOf(err))
	assert.Equal(t, 1, tr.Calls())

	_, err = h.exec.Execute(context.Background(), http.MethodPost, "/api/licenses/activate", RequestOptions{IdempotencyKey: "idem-1"})
	require.Error(t, err)
	assert.Equal(t, 1+4, tr.Calls())
	assert.Equal(t, "idem-1", tr.Requests()[1].Header.Get("Idempotency-Key"))
}

func TestExecute_PerAttemptTimeout(t *testing.T) {
	tr := (&mock.Transport{}).Enqueue(mock.Step{Status: http.StatusOK, Delay: time.Second})
	cfg := testExecutorConfig()
	cfg.MaxRetries = 0
	h := newHarness(t, tr, cfg)

	_, err := h.exec.Execute(context.Background(), http.MethodGet, "/api/licenses", RequestOptions{Timeout: 20 * time.Millisecond})
	require.Error(t, err)
	assert.Equal(t, apierr.KindTimeout, apierr.KindOf(err))
}

func TestExecute_CallerCancellationStopsBackoff(t *testing.T) {
	tr := &mock.Transport{Handler: func(mock.Recorded) mock.Step { return mock.Failure(mock.ErrConnectionRefused) }}
	cfg := testExecutorConfig()
	cfg.RetryDelay = time.Hour
	cfg.MaxRetryDelay = time.Hour
	e := NewExecutor(cfg, tr, nil, nil, WithExecutorLogger(discardLogger()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := e.Execute(ctx, http.MethodGet, "/api/licenses", RequestOptions{})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, apierr.KindTimeout, apierr.KindOf(err))
	assert.Equal(t, 1, tr.Calls())
}

func TestExecute_ServerErrorIsTerminal(t *testing.T) {
	tr := (&mock.Transport{}).Enqueue(
		mock.JSON(http.StatusServiceUnavailable, `{"message":"maintenance"}`),
		mock.JSON(http.StatusServiceUnavailable, `{"message":"maintenance"}`),
		mock.JSON(http.StatusServiceUnavailable, `{"message":"maintenance"}`),
		mock.JSON(http.StatusOK, `{"valid":true}`),
	)
	h := newHarness(t, tr, testExecutorConfig())

	_, err := h.exec.Execute(context.Background(), http.MethodGet, "/api/licenses", RequestOptions{})
	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierr.KindServer, apiErr.Kind)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "maintenance", apiErr.Message)
	assert.Equal(t, 1, tr.Calls())
	assert.Equal(t, 3, tr.Pending())
	assert.Empty(t, h.sleeps)
	assert.Zero(t, h.count(EventRequestRetry))
}

func TestExecute_SkipAuthNeverSendsAuthorization(t *testing.T) {
	tr := &mock.Transport{}
	h := newHarness(t, tr, testExecutorConfig())
	require.NoError(t, h.creds.SetTokens(context.Background(), "stored", "r1"))

	addAuth := func(next DispatchFunc) DispatchFunc {
		return func(ctx context.Context, d *Descriptor) (*Response, error) {
			c := d.Clone()
			c.Header.Set("Authorization", "Bearer from-middleware")
			return next(ctx, c)
		}
	}
	h.exec.dispatch = Chain(h.exec.attachAuth(h.exec.transport), addAuth)

	_, err := h.exec.Execute(context.Background(), http.MethodPost, "/api/auth/login", RequestOptions{
		SkipAuth: true,
		Headers:  map[string]string{"Authorization": "Bearer explicit"},
	})
	require.NoError(t, err)
	assert.Empty(t, tr.Requests()[0].Header.Values("Authorization"))
}

func TestExecute_ExplicitAuthorizationIsKept(t *testing.T) {
	tr := &mock.Transport{}
	h := newHarness(t, tr, testExecutorConfig())
	require.NoError(t, h.creds.SetTokens(context.Background(), "stored", ""))

	_, err := h.exec.Execute(context.Background(), http.MethodGet, "/api/auth/me", RequestOptions{
		Headers: map[string]string{"Authorization": "Bearer explicit"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer explicit", tr.Requests()[0].Header.Get("Authorization"))
}

func TestExecute_DescriptorHeadersAndURL(t *testing.T) {
	tr := &mock.Transport{}
	cfg := testExecutorConfig()
	cfg.Headers = map[string]string{"X-Tenant": "acme"}
	h := newHarness(t, tr, cfg)

	_, err := h.exec.Execute(context.Background(), http.MethodGet, "api/licenses", RequestOptions{
		Query: map[string][]string{"page": {"2"}},
	})
	require.NoError(t, err)

	req := tr.Requests()[0]
	assert.Equal(t, testBaseURL+"/api/licenses?page=2", req.URL)
	assert.Equal(t, "key-123", req.Header.Get("X-API-Key"))
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Equal(t, UserAgent, req.Header.Get("User-Agent"))
	assert.Equal(t, Version, req.Header.Get("X-SDK-Version"))
	assert.Equal(t, "Go", req.Header.Get("X-SDK-Language"))
	assert.Equal(t, "acme", req.Header.Get("X-Tenant"))
	assert.NotEmpty(t, req.Header.Get("X-Request-ID"))
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestExecute_MiddlewaresRunPerAttempt(t *testing.T) {
	tr := (&mock.Transport{}).Enqueue(mock.Failure(mock.ErrConnectionRefused), mock.JSON(http.StatusOK, `{}`))
	var seen []string
	trace := func(next DispatchFunc) DispatchFunc {
		return func(ctx context.Context, d *Descriptor) (*Response, error) {
			seen = append(seen, d.Header.Get("Authorization"))
			return next(ctx, d)
		}
	}
	h := newHarness(t, tr, testExecutorConfig(), WithMiddlewares(trace))
	require.NoError(t, h.creds.SetTokens(context.Background(), "tok", ""))

	_, err := h.exec.Execute(context.Background(), http.MethodGet, "/api/licenses", RequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"", ""}, seen)
	assert.Equal(t, "Bearer tok", tr.Requests()[1].Header.Get("Authorization"))
}

func TestExecute_MiddlewareErrorIsTerminal(t *testing.T) {
	tr := &mock.Transport{}
	deny := func(next DispatchFunc) DispatchFunc {
		return func(ctx context.Context, d *Descriptor) (*Response, error) {
			return nil, apierr.New(apierr.KindAuthorization, "blocked by policy")
		}
	}
	h := newHarness(t, tr, testExecutorConfig(), WithMiddlewares(deny))

	_, err := h.exec.Execute(context.Background(), http.MethodGet, "/api/licenses", RequestOptions{})
	assert.True(t, errors.Is(err, apierr.ErrAuthorization))
	assert.Equal(t, 0, tr.Calls())
	assert.Empty(t, h.sleeps)
}

func TestExecute_RespectsRateLimitHeaders(t *testing.T) {
	tr := &mock.Transport{}
	tr.SetRateLimitDefaults(1, 5)
	cfg := testExecutorConfig()
	cfg.RespectRateLimitHeaders = true
	h := newHarness(t, tr, cfg)

	_, err := h.exec.Execute(context.Background(), http.MethodGet, "/api/licenses", RequestOptions{})
	require.NoError(t, err)

	info := h.exec.RateLimiter().Info("licenses")
	require.NotNil(t, info)
	assert.Equal(t, 1, *info.Limit)
	assert.Equal(t, 0, *info.Remaining)

	_, err = h.exec.Execute(context.Background(), http.MethodGet, "/api/licenses", RequestOptions{})
	require.NoError(t, err)
	require.Len(t, h.sleeps, 1)
	assert.Greater(t, h.sleeps[0], 3*time.Second)
	assert.LessOrEqual(t, h.sleeps[0], 5*time.Second)
}

func TestExecute_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	tr := (&mock.Transport{}).Enqueue(mock.RateLimited("1"), mock.JSON(http.StatusOK, `{}`))
	h := newHarness(t, tr, testExecutorConfig(), WithExecutorMetrics(m))

	_, err := h.exec.Execute(context.Background(), http.MethodGet, "/api/licenses", RequestOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("GET", "licenses", "429")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("GET", "licenses", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Retries.WithLabelValues(RetryReasonRateLimit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimited.WithLabelValues("licenses")))
}

func TestResponse_Decode(t *testing.T) {
	var out map[string]any
	assert.NoError(t, (&Response{}).Decode(&out))
	assert.Nil(t, out)

	err := (&Response{StatusCode: 200, Body: []byte("{bad")}).Decode(&out)
	assert.Equal(t, apierr.KindUnknown, apierr.KindOf(err))
}
