package dcaauth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/oauth2"

	"github.com/opengovern/dca-auth-go/apierr"
	"github.com/opengovern/dca-auth-go/storage"
)

// CredentialStore is the only writer of the access/refresh token pair.
// Pair updates go through one lock so readers of Tokens never observe a new
// access token alongside an old refresh token.
type CredentialStore struct {
	mu      sync.RWMutex
	storage storage.Storage
}

func NewCredentialStore(s storage.Storage) *CredentialStore {
	if s == nil {
		s = storage.NewMemoryStorage()
	}
	return &CredentialStore{storage: s}
}

// Storage returns the underlying backend.
func (c *CredentialStore) Storage() storage.Storage { return c.storage }

func (c *CredentialStore) AccessToken(ctx context.Context) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.get(ctx, storage.KeyAccessToken)
}

func (c *CredentialStore) RefreshToken(ctx context.Context) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.get(ctx, storage.KeyRefreshToken)
}

// Tokens returns a consistent snapshot of both tokens.
func (c *CredentialStore) Tokens(ctx context.Context) (access, refresh string, err error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if access, err = c.get(ctx, storage.KeyAccessToken); err != nil {
		return "", "", err
	}
	if refresh, err = c.get(ctx, storage.KeyRefreshToken); err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (c *CredentialStore) get(ctx context.Context, key string) (string, error) {
	v, ok, err := c.storage.Get(ctx, key)
	if err != nil {
		return "", asStorageError(err)
	}
	if !ok {
		return "", nil
	}
	return v, nil
}

// SetTokens replaces the pair. An empty refresh token keeps the stored one.
func (c *CredentialStore) SetTokens(ctx context.Context, access, refresh string) error {
	values := map[string]string{storage.KeyAccessToken: access}
	if refresh != "" {
		values[storage.KeyRefreshToken] = refresh
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return asStorageError(storage.SetMany(ctx, c.storage, values))
}

// Clear removes both tokens.
func (c *CredentialStore) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return asStorageError(storage.SetMany(ctx, c.storage, map[string]string{
		storage.KeyAccessToken:  "",
		storage.KeyRefreshToken: "",
	}))
}

func asStorageError(err error) error {
	if err == nil {
		return nil
	}
	var e *apierr.Error
	if errors.As(err, &e) {
		return err
	}
	return apierr.Wrap(apierr.KindStorage, err, "Storage operation failed")
}

// TokenExpiry reads the exp claim of a JWT without verifying its signature.
// It returns false for tokens that are not JWTs or carry no exp.
func TokenExpiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// expiresWithin reports whether token is a JWT expiring within skew of now.
func expiresWithin(token string, skew time.Duration, now time.Time) bool {
	exp, ok := TokenExpiry(token)
	return ok && exp.Sub(now) <= skew
}

func oauthToken(access, refresh string) *oauth2.Token {
	tok := &oauth2.Token{AccessToken: access, TokenType: "Bearer", RefreshToken: refresh}
	if exp, ok := TokenExpiry(access); ok {
		tok.Expiry = exp
	}
	return tok
}
