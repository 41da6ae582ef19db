// Package storage provides the key-value backends the SDK keeps credentials
// in. All backends are safe for concurrent use.
package storage

import (
	"context"
	"fmt"

	"github.com/opengovern/dca-auth-go/apierr"
)

// Well-known keys.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
)

// Storage is a string key-value store.
type Storage interface {
	// Get returns the value stored under key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// BatchStorage is implemented by backends that can write several keys in one
// step. Callers fall back to sequential Set/Remove otherwise.
type BatchStorage interface {
	Storage
	// SetMany writes every entry in values; an empty value removes the key.
	SetMany(ctx context.Context, values map[string]string) error
}

// SetMany writes values through BatchStorage when s supports it.
func SetMany(ctx context.Context, s Storage, values map[string]string) error {
	if b, ok := s.(BatchStorage); ok {
		return b.SetMany(ctx, values)
	}
	for k, v := range values {
		var err error
		if v == "" {
			err = s.Remove(ctx, k)
		} else {
			err = s.Set(ctx, k, v)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func storageErr(op, key string, err error) error {
	if err == nil {
		return nil
	}
	e := apierr.Wrap(apierr.KindStorage, err, fmt.Sprintf("storage %s failed", op))
	if key != "" {
		e.WithDetail("key", key)
	}
	return e
}
