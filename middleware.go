package dcaauth

import (
	"context"
	"strings"
)

// DispatchFunc sends one descriptor and returns the buffered response.
// Non-2xx statuses are returned as responses, not errors; only a failure to
// obtain a response is an error.
type DispatchFunc func(ctx context.Context, d *Descriptor) (*Response, error)

// Middleware wraps a DispatchFunc. User middlewares sit between the retry
// loop and the attach-auth link, so they run once per attempt and see the
// descriptor before credentials are added.
type Middleware func(next DispatchFunc) DispatchFunc

// Chain composes mws around final; mws[0] is the outermost.
func Chain(final DispatchFunc, mws ...Middleware) DispatchFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			final = mws[i](final)
		}
	}
	return final
}

// attachAuth adds the stored bearer token unless the descriptor opts out of
// auth or already carries an explicit Authorization header.
func (e *Executor) attachAuth(next DispatchFunc) DispatchFunc {
	return func(ctx context.Context, d *Descriptor) (*Response, error) {
		if d.SkipAuth {
			if d.Header.Get("Authorization") == "" {
				return next(ctx, d)
			}
			c := d.Clone()
			c.Header.Del("Authorization")
			return next(ctx, c)
		}
		if d.Header.Get("Authorization") != "" {
			return next(ctx, d)
		}
		token, err := e.creds.AccessToken(ctx)
		if err != nil {
			return nil, err
		}
		if token == "" {
			return next(ctx, d)
		}
		c := d.Clone()
		c.Header.Set("Authorization", "Bearer "+token)
		return next(ctx, c)
	}
}

// bearerToken extracts the token from an Authorization header value.
func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return header[len(prefix):]
	}
	return ""
}
