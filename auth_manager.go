package dcaauth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/opengovern/dca-auth-go/apierr"
)

const authPath = "/api/auth"

// AuthManager wraps session and account endpoints and emits auth.* events.
// Login and Logout are the only manager calls that change stored tokens.
type AuthManager struct {
	manager
}

func newAuthManager(exec *Executor, logger *slog.Logger) *AuthManager {
	return &AuthManager{manager: newManager(exec, "auth", "auth", logger)}
}

// Login authenticates and stores the returned token pair.
func (m *AuthManager) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	var res LoginResponse
	if err := m.call(ctx, http.MethodPost, authPath+"/login", RequestOptions{Body: req, SkipAuth: true}, &res); err != nil {
		return nil, err
	}
	if err := m.exec.Credentials().SetTokens(ctx, res.AccessToken, res.RefreshToken); err != nil {
		return nil, err
	}
	m.emit("login", &res.User)
	return &res, nil
}

func (m *AuthManager) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	var user User
	if err := m.call(ctx, http.MethodPost, authPath+"/register", RequestOptions{Body: req, SkipAuth: true}, &user); err != nil {
		return nil, err
	}
	m.emit("register", &user)
	return &user, nil
}

// Logout revokes the session server-side and always clears local tokens. A
// server-side Authentication failure is ignored since the session is gone
// either way.
func (m *AuthManager) Logout(ctx context.Context) error {
	creds := m.exec.Credentials()
	refresh, err := creds.RefreshToken(ctx)
	if err != nil {
		return err
	}

	var body any
	if refresh != "" {
		body = map[string]string{"refreshToken": refresh}
	}
	callErr := m.call(ctx, http.MethodPost, authPath+"/logout", RequestOptions{Body: body}, nil)
	if callErr != nil && !apierr.IsAuthentication(callErr) {
		m.logger.WarnContext(ctx, "server-side logout failed", slog.String("error", callErr.Error()))
	} else {
		callErr = nil
	}

	if err := creds.Clear(ctx); err != nil {
		return err
	}
	m.emit("logout", nil)
	return callErr
}

// Me returns the authenticated user.
func (m *AuthManager) Me(ctx context.Context) (*User, error) {
	var user User
	if err := m.call(ctx, http.MethodGet, authPath+"/me", RequestOptions{}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Refresh forces a token exchange. Success is announced by the client as
// auth:refresh.
func (m *AuthManager) Refresh(ctx context.Context) bool {
	return m.exec.Refresh(ctx)
}

func (m *AuthManager) ChangePassword(ctx context.Context, req ChangePasswordRequest) error {
	if err := m.send(ctx, http.MethodPost, authPath+"/change-password", req, nil); err != nil {
		return err
	}
	m.emit("password_changed", nil)
	return nil
}

// SetupTwoFactor starts 2FA enrolment and returns the shared secret.
func (m *AuthManager) SetupTwoFactor(ctx context.Context) (*TwoFactorSetup, error) {
	var setup TwoFactorSetup
	if err := m.call(ctx, http.MethodPost, authPath+"/2fa/setup", RequestOptions{}, &setup); err != nil {
		return nil, err
	}
	return &setup, nil
}

type twoFactorCode struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

func (m *AuthManager) EnableTwoFactor(ctx context.Context, code string) error {
	if err := m.send(ctx, http.MethodPost, authPath+"/2fa/enable", twoFactorCode{Code: code}, nil); err != nil {
		return err
	}
	m.emit("2fa_enabled", nil)
	return nil
}

func (m *AuthManager) DisableTwoFactor(ctx context.Context, code string) error {
	if err := m.send(ctx, http.MethodPost, authPath+"/2fa/disable", twoFactorCode{Code: code}, nil); err != nil {
		return err
	}
	m.emit("2fa_disabled", nil)
	return nil
}
