package apierr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_StatusDispatch(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind Kind
		wantCode string
	}{
		{name: "401", status: 401, body: `{"message":"expired token","code":"TOKEN_EXPIRED"}`, wantKind: KindAuthentication, wantCode: "TOKEN_EXPIRED"},
		{name: "403", status: 403, body: `{"message":"nope"}`, wantKind: KindAuthorization, wantCode: CodeAuthorization},
		{name: "409", status: 409, body: `{"message":"exists","code":"CONFLICT"}`, wantKind: KindConflict, wantCode: "CONFLICT"},
		{name: "500", status: 500, body: `{"message":"boom"}`, wantKind: KindServer, wantCode: CodeServer},
		{name: "503 raw text", status: 503, body: `upstream unavailable`, wantKind: KindServer, wantCode: CodeServer},
		{name: "400 generic", status: 400, body: `{"message":"bad","code":"BAD_INPUT"}`, wantKind: KindUnknown, wantCode: "BAD_INPUT"},
		{name: "418 generic", status: 418, body: `teapot`, wantKind: KindUnknown, wantCode: CodeUnknown},
		{name: "401 wins over license code", status: 401, body: `{"message":"x","code":"LICENSE_EXPIRED"}`, wantKind: KindAuthentication, wantCode: "LICENSE_EXPIRED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Classify(tt.status, http.Header{}, []byte(tt.body))
			require.NotNil(t, err)
			assert.Equal(t, tt.wantKind, err.Kind)
			assert.Equal(t, tt.wantCode, err.Code)
			assert.Equal(t, tt.status, err.StatusCode)
		})
	}
}

func TestClassify_UnparseableBodyFallsBackToText(t *testing.T) {
	err := Classify(502, http.Header{}, []byte("  Bad Gateway \n"))
	assert.Equal(t, "Bad Gateway", err.Message)
	assert.Equal(t, CodeServer, err.Code)

	err = Classify(400, http.Header{}, nil)
	assert.Equal(t, "Unknown error", err.Message)
	assert.Equal(t, CodeUnknown, err.Code)
}

func TestClassify_ValidationCarriesFields(t *testing.T) {
	body := `{"message":"invalid input","code":"VALIDATION_ERROR","details":{"fields":{"email":["is required","must be valid"],"password":"too short"}}}`
	err := Classify(400, http.Header{}, []byte(body))

	assert.Equal(t, KindValidation, err.Kind)
	assert.Equal(t, []string{"is required", "must be valid"}, err.Fields["email"])
	assert.Equal(t, []string{"too short"}, err.Fields["password"])
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestClassify_NotFoundUsesResourceDetails(t *testing.T) {
	body := `{"message":"missing","code":"NOT_FOUND","details":{"resource":"User","id":"42"}}`
	err := Classify(404, http.Header{}, []byte(body))

	assert.Equal(t, KindNotFound, err.Kind)
	assert.Equal(t, "User with id 42 not found", err.Message)
	assert.Equal(t, "User", err.Detail("resource"))
	assert.Equal(t, "42", err.Detail("id"))
}

func TestClassify_LicenseNotFoundOn404(t *testing.T) {
	body := `{"message":"License not found","code":"LICENSE_NOT_FOUND","details":{"license_key":"ABC"}}`
	err := Classify(404, http.Header{}, []byte(body))

	assert.Equal(t, KindLicenseNotFound, err.Kind)
	assert.Equal(t, "ABC", err.Details["license_key"])
	assert.Equal(t, "License not found", err.Message)
	assert.Equal(t, 404, err.StatusCode)
	assert.True(t, errors.Is(err, ErrLicense))
	assert.True(t, errors.Is(err, ErrLicenseNotFound))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.True(t, IsNotFound(err))
}

func TestClassify_LicenseSubKinds(t *testing.T) {
	tests := []struct {
		code string
		want Kind
	}{
		{code: "LICENSE_EXPIRED", want: KindLicenseExpired},
		{code: "LICENSE_INACTIVE", want: KindLicenseInactive},
		{code: "LICENSE_REVOKED", want: KindLicenseInactive},
		{code: "LICENSE_ACTIVATION_ERROR", want: KindLicenseActivationFailed},
		{code: "LICENSE_ACTIVATION_FAILED", want: KindLicenseActivationFailed},
		{code: "LICENSE_HARDWARE_MISMATCH", want: KindLicense},
		{code: "MAX_ACTIVATIONS_REACHED", want: KindMaxActivations},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			body := fmt.Sprintf(`{"code":%q,"details":{"license_key":"K-1"}}`, tt.code)
			err := Classify(422, http.Header{}, []byte(body))
			assert.Equal(t, tt.want, err.Kind)
			assert.Equal(t, tt.code, err.Code)
			assert.True(t, err.Kind.IsLicense())
		})
	}
}

func TestClassify_MaxActivationsDetails(t *testing.T) {
	body := `{"code":"MAX_ACTIVATIONS_REACHED","details":{"license_key":"K-9","max_activations":3,"current_activations":3}}`
	err := Classify(409, http.Header{}, []byte(body))

	assert.Equal(t, KindMaxActivations, err.Kind)
	assert.Equal(t, 3, err.Details["max_activations"])
	assert.Equal(t, 3, err.Details["current_activations"])
	assert.Contains(t, err.Message, "K-9")
}

func TestClassify_RateLimitRetryAfter(t *testing.T) {
	header := http.Header{}
	header.Set("Retry-After", "17")
	err := Classify(429, header, []byte(`{"message":"slow down","details":{"retry_after":99}}`))
	assert.Equal(t, KindRateLimit, err.Kind)
	assert.Equal(t, 17, err.RetryAfter)

	err = Classify(429, http.Header{}, []byte(`{"message":"slow down","details":{"retry_after":99}}`))
	assert.Equal(t, 99, err.RetryAfter)
	assert.True(t, IsRateLimit(err))
}

func TestClassify_OtherDomainCodes(t *testing.T) {
	assert.Equal(t, KindTwoFactor, Classify(400, nil, []byte(`{"code":"TWO_FACTOR_INVALID"}`)).Kind)
	assert.Equal(t, KindWebhook, Classify(400, nil, []byte(`{"code":"WEBHOOK_URL_UNREACHABLE"}`)).Kind)
	assert.Equal(t, KindImportExport, Classify(400, nil, []byte(`{"code":"LICENSES_EXPORT_ERROR"}`)).Kind)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestFromTransportError(t *testing.T) {
	assert.Equal(t, KindTimeout, FromTransportError(context.DeadlineExceeded).Kind)
	assert.Equal(t, KindTimeout, FromTransportError(fmt.Errorf("dial: %w", timeoutErr{})).Kind)

	refused := FromTransportError(errors.New("connection refused"))
	assert.Equal(t, KindNetwork, refused.Kind)
	assert.Equal(t, CodeNetwork, refused.Code)
	assert.EqualError(t, errors.Unwrap(refused), "connection refused")

	existing := New(KindStorage, "disk full")
	assert.Same(t, existing, FromTransportError(existing))
	assert.Nil(t, FromTransportError(nil))
}

func TestError_IsOnlyMatchesSentinels(t *testing.T) {
	a := New(KindConflict, "a")
	b := New(KindConflict, "b")
	assert.False(t, errors.Is(a, b))
	assert.True(t, errors.Is(fmt.Errorf("wrapped: %w", a), ErrConflict))
	assert.Equal(t, KindConflict, KindOf(fmt.Errorf("wrapped: %w", a)))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
}

func TestError_Formatting(t *testing.T) {
	err := NewNotFound("License", "")
	assert.Equal(t, "NotFound: License not found (code: NOT_FOUND)", err.Error())

	wrapped := Wrap(KindStorage, errors.New("disk full"), "Storage operation failed")
	assert.Equal(t, "Storage: Storage operation failed (code: STORAGE_ERROR): disk full", wrapped.Error())
	assert.Equal(t, "Kind(99)", Kind(99).String())
}
