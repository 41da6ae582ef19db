// config.go
// ----------
// This file defines Config, the single settings object shared by the client,
// the executor and every resource manager.
//
// DefaultConfig supplies the documented defaults; ConfigFromEnv overlays
// DCA_AUTH_* environment variables on top of them. Collaborators (HTTP client,
// credential storage, logger, metrics, middlewares) are injected here too.
package dcaauth

import (
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/opengovern/dca-auth-go/apierr"
	"github.com/opengovern/dca-auth-go/storage"
)

const (
	DefaultAPIURL        = "https://api.dca-auth.com"
	DefaultTimeout       = 30 * time.Second
	DefaultRetries       = 3
	DefaultRetryDelay    = time.Second
	DefaultMaxRetryDelay = 30 * time.Second
	DefaultRefreshSkew   = 30 * time.Second
)

// Config configures a Client.
type Config struct {
	APIURL       string `envconfig:"API_URL"`
	APIKey       string `envconfig:"API_KEY"`
	AccessToken  string `envconfig:"ACCESS_TOKEN"`
	RefreshToken string `envconfig:"REFRESH_TOKEN"`

	Timeout       time.Duration `envconfig:"TIMEOUT"`
	Retries       int           `envconfig:"RETRIES"`         // Max retries after the first attempt
	RetryDelay    time.Duration `envconfig:"RETRY_DELAY"`     // Base for exponential backoff
	MaxRetryDelay time.Duration `envconfig:"MAX_RETRY_DELAY"` // Cap for a single backoff sleep

	AutoRefreshToken bool          `envconfig:"AUTO_REFRESH_TOKEN"`
	RefreshSkew      time.Duration `envconfig:"REFRESH_SKEW"` // Refresh ahead of JWT expiry

	// RetryNonIdempotent allows transport-failure retries of POST and PATCH
	// requests that carry no Idempotency-Key.
	RetryNonIdempotent bool `envconfig:"RETRY_NON_IDEMPOTENT"`
	// RespectRateLimitHeaders waits for X-RateLimit-Reset before calling a
	// family whose remaining budget is zero.
	RespectRateLimitHeaders bool `envconfig:"RESPECT_RATE_LIMIT_HEADERS"`

	WSURL   string            `envconfig:"WS_URL"`
	Headers map[string]string `envconfig:"HEADERS"`
	Debug   bool              `envconfig:"DEBUG"`

	HTTPClient  Doer            `ignored:"true"`
	Storage     storage.Storage `ignored:"true"`
	Logger      *slog.Logger    `ignored:"true"`
	Metrics     *Metrics        `ignored:"true"`
	Middlewares []Middleware    `ignored:"true"`
}

// DefaultConfig returns a Config with every default filled in.
func DefaultConfig() Config {
	return Config{
		APIURL:           DefaultAPIURL,
		Timeout:          DefaultTimeout,
		Retries:          DefaultRetries,
		RetryDelay:       DefaultRetryDelay,
		MaxRetryDelay:    DefaultMaxRetryDelay,
		AutoRefreshToken: true,
		RefreshSkew:      DefaultRefreshSkew,
	}
}

// ConfigFromEnv loads DCA_AUTH_* variables over DefaultConfig.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := envconfig.Process("DCA_AUTH", &cfg); err != nil {
		return cfg, apierr.Wrap(apierr.KindConfiguration, err, "invalid environment configuration")
	}
	return cfg, nil
}

// withDefaults fills zero durations and the API URL. Retries is taken as
// given so callers can disable retrying with 0.
func (c Config) withDefaults() Config {
	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}
	c.APIURL = strings.TrimRight(c.APIURL, "/")
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.MaxRetryDelay <= 0 {
		c.MaxRetryDelay = DefaultMaxRetryDelay
	}
	if c.RefreshSkew <= 0 {
		c.RefreshSkew = DefaultRefreshSkew
	}
	if c.WSURL == "" {
		c.WSURL = websocketURL(c.APIURL)
	}
	return c
}

// Validate reports the first invalid setting as a Configuration error.
func (c Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return apierr.New(apierr.KindConfiguration, "api url must be an absolute http(s) URL").
			WithDetail("api_url", c.APIURL)
	}
	if c.Retries < 0 {
		return apierr.New(apierr.KindConfiguration, "retries must not be negative").
			WithDetail("retries", c.Retries)
	}
	if c.WSURL != "" {
		ws, err := url.Parse(c.WSURL)
		if err != nil || (ws.Scheme != "ws" && ws.Scheme != "wss") {
			return apierr.New(apierr.KindConfiguration, "websocket url must use ws or wss").
				WithDetail("ws_url", c.WSURL)
		}
	}
	return nil
}

// websocketURL derives the realtime endpoint from the API URL.
func websocketURL(apiURL string) string {
	switch {
	case strings.HasPrefix(apiURL, "https://"):
		return "wss://" + strings.TrimPrefix(apiURL, "https://")
	case strings.HasPrefix(apiURL, "http://"):
		return "ws://" + strings.TrimPrefix(apiURL, "http://")
	}
	return apiURL
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	if c.Debug {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.Default()
}
