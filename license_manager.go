package dcaauth

import (
	"context"
	"log/slog"
	"net/http"
)

const licensesPath = "/api/licenses"

// LicenseManager wraps the license endpoints and emits license.* events.
type LicenseManager struct {
	manager
}

func newLicenseManager(exec *Executor, logger *slog.Logger) *LicenseManager {
	return &LicenseManager{manager: newManager(exec, "license", "licenses", logger)}
}

// Verify checks a license key against a hardware id. A well-formed but
// invalid license is reported through VerificationResult.Valid, not an error.
func (m *LicenseManager) Verify(ctx context.Context, req VerifyLicenseRequest) (*VerificationResult, error) {
	var res VerificationResult
	if err := m.send(ctx, http.MethodPost, licensesPath+"/verify", req, &res); err != nil {
		return nil, err
	}
	if res.Valid {
		m.emit("verified", &res)
	} else {
		m.logger.DebugContext(ctx, "license verification rejected", slog.String("reason", res.Error))
		m.emit("invalid", &res)
	}
	return &res, nil
}

func (m *LicenseManager) Activate(ctx context.Context, req ActivateLicenseRequest) (*Activation, error) {
	var act Activation
	if err := m.send(ctx, http.MethodPost, licensesPath+"/activate", req, &act); err != nil {
		return nil, err
	}
	m.emit("activated", &act)
	return &act, nil
}

func (m *LicenseManager) Deactivate(ctx context.Context, req DeactivateLicenseRequest) error {
	if err := m.send(ctx, http.MethodPost, licensesPath+"/deactivate", req, nil); err != nil {
		return err
	}
	m.emit("deactivated", req)
	return nil
}

func (m *LicenseManager) Get(ctx context.Context, id string) (*License, error) {
	path, err := resourcePath(licensesPath, id)
	if err != nil {
		return nil, err
	}
	var lic License
	if err := m.call(ctx, http.MethodGet, path, RequestOptions{}, &lic); err != nil {
		return nil, err
	}
	return &lic, nil
}

func (m *LicenseManager) List(ctx context.Context, params SearchParams) (*Page[License], error) {
	var page Page[License]
	if err := m.list(ctx, licensesPath, params, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Create issues a new license. MaxActivations defaults to 1.
func (m *LicenseManager) Create(ctx context.Context, req CreateLicenseRequest) (*License, error) {
	if req.MaxActivations == 0 {
		req.MaxActivations = 1
	}
	var lic License
	if err := m.send(ctx, http.MethodPost, licensesPath, req, &lic); err != nil {
		return nil, err
	}
	m.emit("created", &lic)
	return &lic, nil
}

func (m *LicenseManager) Revoke(ctx context.Context, id, reason string) (*License, error) {
	path, err := resourcePath(licensesPath, id, "revoke")
	if err != nil {
		return nil, err
	}
	var body any
	if reason != "" {
		body = map[string]string{"reason": reason}
	}
	var lic License
	if err := m.call(ctx, http.MethodPost, path, RequestOptions{Body: body}, &lic); err != nil {
		return nil, err
	}
	m.emit("revoked", &lic)
	return &lic, nil
}

// Activations lists the devices a license is active on.
func (m *LicenseManager) Activations(ctx context.Context, id string) ([]Activation, error) {
	path, err := resourcePath(licensesPath, id, "activations")
	if err != nil {
		return nil, err
	}
	var acts []Activation
	if err := m.call(ctx, http.MethodGet, path, RequestOptions{}, &acts); err != nil {
		return nil, err
	}
	return acts, nil
}
