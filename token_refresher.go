package dcaauth

import (
	"context"
	"log/slog"
	"net/http"
)

const refreshPath = "/api/auth/refresh"

// Refresh exchanges the stored refresh token for a new pair. Concurrent
// callers share one in-flight exchange. It reports whether new tokens were
// stored; on failure the stored tokens are left untouched.
func (e *Executor) Refresh(ctx context.Context) bool {
	return e.runRefresh(ctx, "", true)
}

// refreshIfStale refreshes unless the stored access token already differs
// from stale, which means another caller refreshed since stale was sent.
func (e *Executor) refreshIfStale(ctx context.Context, stale string) bool {
	return e.runRefresh(ctx, stale, false)
}

func (e *Executor) runRefresh(ctx context.Context, stale string, force bool) bool {
	// The exchange outlives any single caller's cancellation; every attempt
	// is still bounded by the per-request timeout.
	flightCtx := context.WithoutCancel(ctx)
	ch := e.refresh.DoChan("refresh", func() (any, error) {
		if !force {
			current, err := e.creds.AccessToken(flightCtx)
			if err == nil && current != "" && current != stale {
				e.logger.DebugContext(flightCtx, "access token already replaced, skipping refresh")
				return true, nil
			}
		}
		return e.exchangeRefreshToken(flightCtx), nil
	})

	select {
	case res := <-ch:
		ok, _ := res.Val.(bool)
		return ok
	case <-ctx.Done():
		return false
	}
}

func (e *Executor) exchangeRefreshToken(ctx context.Context) bool {
	refreshToken, err := e.creds.RefreshToken(ctx)
	if err != nil {
		e.logger.WarnContext(ctx, "failed to read refresh token", slog.String("error", err.Error()))
		return false
	}
	if refreshToken == "" {
		e.logger.DebugContext(ctx, "token refresh skipped", slog.String("reason", errNoRefreshToken.Error()))
		return false
	}

	resp, err := e.Execute(ctx, http.MethodPost, refreshPath, RequestOptions{
		Body:      map[string]string{"refreshToken": refreshToken},
		SkipAuth:  true,
		Family:    "auth",
		noRefresh: true,
	})
	if err != nil {
		e.metrics.refresh(false)
		e.logger.WarnContext(ctx, "failed to refresh token", slog.String("error", err.Error()))
		return false
	}

	var pair TokenPair
	if err := resp.Decode(&pair); err != nil || pair.AccessToken == "" {
		e.metrics.refresh(false)
		e.logger.WarnContext(ctx, "refresh response carried no access token")
		return false
	}
	if err := e.creds.SetTokens(ctx, pair.AccessToken, pair.RefreshToken); err != nil {
		e.metrics.refresh(false)
		e.logger.ErrorContext(ctx, "failed to store refreshed tokens", slog.String("error", err.Error()))
		return false
	}

	e.metrics.refresh(true)
	e.logger.InfoContext(ctx, "access token refreshed")
	e.events.Emit(EventAuthRefresh, pair)
	return true
}
