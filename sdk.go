// sdk.go
// ------
// The sdk.go file contains the Client, the main entry point of the SDK.
//
// Key functionalities include:
// - Initializing the SDK with New() from a Config
// - Resource managers (Licenses, Auth, Users, Webhooks) sharing one Executor
// - Raw requests via Request() and the verb helpers
// - Token management and the realtime channel
//
// The Client is itself an emitter: every manager event, executor event
// (rate_limit, request:retry, auth:refresh) and realtime event is published
// on it.
package dcaauth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"

	"github.com/opengovern/dca-auth-go/apierr"
	"github.com/opengovern/dca-auth-go/emitter"
	"github.com/opengovern/dca-auth-go/realtime"
)

const (
	Version   = "1.0.0"
	UserAgent = "DCA-Auth-Go-SDK/" + Version
)

type Client struct {
	*emitter.Emitter

	Licenses *LicenseManager
	Auth     *AuthManager
	Users    *UserManager
	Webhooks *WebhookManager
	Realtime *realtime.Channel

	cfg    Config
	exec   *Executor
	creds  *CredentialStore
	logger *slog.Logger
	subs   []*emitter.Subscription
}

// New builds a Client. Initial tokens from cfg are written to the
// configured storage.
func New(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.logger().With(slog.String("sdk", "dca-auth"))
	events := emitter.New(emitter.WithLogger(logger))
	creds := NewCredentialStore(cfg.Storage)

	if cfg.AccessToken != "" || cfg.RefreshToken != "" {
		if err := creds.SetTokens(context.Background(), cfg.AccessToken, cfg.RefreshToken); err != nil {
			return nil, err
		}
	}

	var doer Doer = http.DefaultClient
	if cfg.HTTPClient != nil {
		doer = cfg.HTTPClient
	}
	exec := NewExecutor(cfg.executorConfig(), doer, creds, events,
		WithExecutorLogger(logger),
		WithExecutorMetrics(cfg.Metrics),
		WithMiddlewares(cfg.Middlewares...),
	)

	c := &Client{
		Emitter:  events,
		Licenses: newLicenseManager(exec, logger),
		Auth:     newAuthManager(exec, logger),
		Users:    newUserManager(exec, logger),
		Webhooks: newWebhookManager(exec, logger),
		Realtime: realtime.New(cfg.WSURL, realtime.WithLogger(logger), realtime.WithPublisher(events)),
		cfg:      cfg,
		exec:     exec,
		creds:    creds,
		logger:   logger,
	}

	forward := func(event string, payload any) { c.Emit(event, payload) }
	for _, m := range []*emitter.Emitter{c.Licenses.Emitter, c.Auth.Emitter, c.Users.Emitter, c.Webhooks.Emitter} {
		c.subs = append(c.subs, m.On(emitter.Wildcard, forward))
	}

	logger.Debug("client initialised", slog.String("api_url", cfg.APIURL), slog.String("ws_url", cfg.WSURL))
	return c, nil
}

// Config returns the effective configuration.
func (c *Client) Config() Config { return c.cfg }

// Executor returns the shared request executor.
func (c *Client) Executor() *Executor { return c.exec }

// Request sends a raw request through the executor.
func (c *Client) Request(ctx context.Context, method, path string, opts RequestOptions) (*Response, error) {
	return c.exec.Execute(ctx, method, path, opts)
}

func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Request(ctx, http.MethodGet, path, RequestOptions{Query: query})
}

func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Request(ctx, http.MethodPost, path, RequestOptions{Body: body})
}

func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.Request(ctx, http.MethodPut, path, RequestOptions{Body: body})
}

func (c *Client) Patch(ctx context.Context, path string, body any) (*Response, error) {
	return c.Request(ctx, http.MethodPatch, path, RequestOptions{Body: body})
}

func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Request(ctx, http.MethodDelete, path, RequestOptions{})
}

// SetTokens stores a token pair. An empty refresh token keeps the stored one.
func (c *Client) SetTokens(ctx context.Context, access, refresh string) error {
	if err := c.creds.SetTokens(ctx, access, refresh); err != nil {
		return err
	}
	c.Emit(EventAuthTokens, TokensEvent{AccessToken: access, RefreshToken: refresh})
	return nil
}

// ClearTokens removes both stored tokens.
func (c *Client) ClearTokens(ctx context.Context) error {
	if err := c.creds.Clear(ctx); err != nil {
		return err
	}
	c.Emit(EventAuthClear, nil)
	return nil
}

func (c *Client) AccessToken(ctx context.Context) (string, error) {
	return c.creds.AccessToken(ctx)
}

// IsAuthenticated reports whether an access token is stored.
func (c *Client) IsAuthenticated(ctx context.Context) bool {
	token, err := c.creds.AccessToken(ctx)
	return err == nil && token != ""
}

// RateLimitInfo returns the last X-RateLimit-* state seen for a family
// ("licenses", "auth", ...), or nil.
func (c *Client) RateLimitInfo(family string) *RateLimitInfo {
	return c.exec.RateLimiter().Info(family)
}

// Token implements oauth2.TokenSource over the stored credentials, refreshing
// first when the access token is within RefreshSkew of expiry.
func (c *Client) Token() (*oauth2.Token, error) {
	return c.token(context.Background())
}

// TokenSource returns an oauth2.TokenSource bound to ctx.
func (c *Client) TokenSource(ctx context.Context) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, tokenSourceFunc(func() (*oauth2.Token, error) {
		return c.token(ctx)
	}))
}

type tokenSourceFunc func() (*oauth2.Token, error)

func (f tokenSourceFunc) Token() (*oauth2.Token, error) { return f() }

func (c *Client) token(ctx context.Context) (*oauth2.Token, error) {
	access, refresh, err := c.creds.Tokens(ctx)
	if err != nil {
		return nil, err
	}
	if access == "" || expiresWithin(access, c.cfg.RefreshSkew, c.exec.now()) {
		if c.exec.refreshIfStale(ctx, access) {
			if access, refresh, err = c.creds.Tokens(ctx); err != nil {
				return nil, err
			}
		}
	}
	if access == "" {
		return nil, apierr.New(apierr.KindAuthentication, "no access token available")
	}
	return oauthToken(access, refresh), nil
}

// ConnectRealtime authenticates the realtime channel with the stored access
// token and connects it. With no stored token the handshake is anonymous.
func (c *Client) ConnectRealtime(ctx context.Context) error {
	token, err := c.creds.AccessToken(ctx)
	if err != nil {
		return err
	}
	c.Realtime.SetAuth(token)
	return c.Realtime.Connect(ctx)
}

func (c *Client) DisconnectRealtime() error {
	return c.Realtime.Disconnect()
}

// Close disconnects realtime, clears stored credentials and drops every
// listener.
func (c *Client) Close(ctx context.Context) error {
	errRealtime := c.Realtime.Disconnect()
	errStorage := c.creds.Storage().Clear(ctx)
	for _, sub := range c.subs {
		sub.Unsubscribe()
	}
	c.subs = nil
	c.RemoveAllListeners()
	return errors.Join(errRealtime, asStorageError(errStorage))
}
