// Package apierr defines the closed error taxonomy of the DCA-Auth SDK.
//
// Every failure that crosses the SDK boundary is an *Error whose Kind is one
// of the constants below. Callers branch on the kind with errors.Is against
// the package sentinels, or read the payload with errors.As:
//
//	var apiErr *apierr.Error
//	if errors.As(err, &apiErr) && apiErr.Kind == apierr.KindRateLimit {
//		time.Sleep(time.Duration(apiErr.RetryAfter) * time.Second)
//	}
//
//	if errors.Is(err, apierr.ErrLicense) {
//		// any license sub-kind
//	}
package apierr

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind tags an Error with its place in the taxonomy.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuthentication
	KindAuthorization
	KindValidation
	KindNotFound
	KindConflict
	KindRateLimit
	KindNetwork
	KindTimeout
	KindServer
	KindLicense
	KindLicenseExpired
	KindLicenseNotFound
	KindLicenseInactive
	KindLicenseActivationFailed
	KindMaxActivations
	KindWebSocket
	KindConfiguration
	KindStorage
	KindCrypto
	KindWebhook
	KindTwoFactor
	KindImportExport
)

var kindNames = map[Kind]string{
	KindUnknown:                 "Unknown",
	KindAuthentication:          "Authentication",
	KindAuthorization:           "Authorization",
	KindValidation:              "Validation",
	KindNotFound:                "NotFound",
	KindConflict:                "Conflict",
	KindRateLimit:               "RateLimit",
	KindNetwork:                 "Network",
	KindTimeout:                 "Timeout",
	KindServer:                  "Server",
	KindLicense:                 "License",
	KindLicenseExpired:          "LicenseExpired",
	KindLicenseNotFound:         "LicenseNotFound",
	KindLicenseInactive:         "LicenseInactive",
	KindLicenseActivationFailed: "LicenseActivationFailed",
	KindMaxActivations:          "MaxActivations",
	KindWebSocket:               "WebSocket",
	KindConfiguration:           "Configuration",
	KindStorage:                 "Storage",
	KindCrypto:                  "Crypto",
	KindWebhook:                 "Webhook",
	KindTwoFactor:               "TwoFactor",
	KindImportExport:            "ImportExport",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// IsLicense reports whether k is KindLicense or one of its sub-kinds.
func (k Kind) IsLicense() bool {
	return k >= KindLicense && k <= KindMaxActivations
}

// Machine-readable codes. Server-provided codes take precedence when present.
const (
	CodeUnknown           = "UNKNOWN_ERROR"
	CodeAuthentication    = "AUTHENTICATION_ERROR"
	CodeAuthorization     = "AUTHORIZATION_ERROR"
	CodeValidation        = "VALIDATION_ERROR"
	CodeNotFound          = "NOT_FOUND"
	CodeConflict          = "CONFLICT"
	CodeRateLimit         = "RATE_LIMIT_EXCEEDED"
	CodeNetwork           = "NETWORK_ERROR"
	CodeTimeout           = "TIMEOUT_ERROR"
	CodeServer            = "SERVER_ERROR"
	CodeLicense           = "LICENSE_ERROR"
	CodeLicenseExpired    = "LICENSE_EXPIRED"
	CodeLicenseNotFound   = "LICENSE_NOT_FOUND"
	CodeLicenseInactive   = "LICENSE_INACTIVE"
	CodeLicenseActivation = "LICENSE_ACTIVATION_ERROR"
	CodeMaxActivations    = "MAX_ACTIVATIONS_REACHED"
	CodeWebSocket         = "WEBSOCKET_ERROR"
	CodeConfiguration     = "CONFIGURATION_ERROR"
	CodeStorage           = "STORAGE_ERROR"
	CodeCrypto            = "CRYPTO_ERROR"
	CodeWebhook           = "WEBHOOK_ERROR"
	CodeTwoFactor         = "TWO_FACTOR_ERROR"
	CodeImportExport      = "IMPORT_EXPORT_ERROR"
)

var defaultCodes = map[Kind]string{
	KindUnknown:                 CodeUnknown,
	KindAuthentication:          CodeAuthentication,
	KindAuthorization:           CodeAuthorization,
	KindValidation:              CodeValidation,
	KindNotFound:                CodeNotFound,
	KindConflict:                CodeConflict,
	KindRateLimit:               CodeRateLimit,
	KindNetwork:                 CodeNetwork,
	KindTimeout:                 CodeTimeout,
	KindServer:                  CodeServer,
	KindLicense:                 CodeLicense,
	KindLicenseExpired:          CodeLicenseExpired,
	KindLicenseNotFound:         CodeLicenseNotFound,
	KindLicenseInactive:         CodeLicenseInactive,
	KindLicenseActivationFailed: CodeLicenseActivation,
	KindMaxActivations:          CodeMaxActivations,
	KindWebSocket:               CodeWebSocket,
	KindConfiguration:           CodeConfiguration,
	KindStorage:                 CodeStorage,
	KindCrypto:                  CodeCrypto,
	KindWebhook:                 CodeWebhook,
	KindTwoFactor:               CodeTwoFactor,
	KindImportExport:            CodeImportExport,
}

// DefaultCode returns the code used for k when the server sends none.
func DefaultCode(k Kind) string {
	if code, ok := defaultCodes[k]; ok {
		return code
	}
	return CodeUnknown
}

// Error is the single failure type surfaced by the SDK.
type Error struct {
	Kind       Kind
	Message    string
	Code       string
	Details    map[string]any
	StatusCode int

	// Fields holds per-field messages for KindValidation.
	Fields map[string][]string
	// RetryAfter is the server-advised wait in seconds for KindRateLimit.
	RetryAfter int

	Err error

	sentinel bool
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s (code: %s)", e.Kind, e.Message, e.Code)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the package sentinels by kind. ErrLicense matches every
// license sub-kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || !t.sentinel {
		return false
	}
	if t.Kind == KindLicense {
		return e.Kind.IsLicense()
	}
	return e.Kind == t.Kind
}

// Detail returns a details entry rendered as a string, or "".
func (e *Error) Detail(key string) string {
	if e == nil || e.Details == nil {
		return ""
	}
	v, ok := e.Details[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// WithDetail sets a details entry and returns e.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = value
	return e
}

func sentinel(k Kind) *Error {
	return &Error{Kind: k, Message: k.String(), Code: DefaultCode(k), sentinel: true}
}

// Sentinels for errors.Is.
var (
	ErrUnknown                 = sentinel(KindUnknown)
	ErrAuthentication          = sentinel(KindAuthentication)
	ErrAuthorization           = sentinel(KindAuthorization)
	ErrValidation              = sentinel(KindValidation)
	ErrNotFound                = sentinel(KindNotFound)
	ErrConflict                = sentinel(KindConflict)
	ErrRateLimit               = sentinel(KindRateLimit)
	ErrNetwork                 = sentinel(KindNetwork)
	ErrTimeout                 = sentinel(KindTimeout)
	ErrServer                  = sentinel(KindServer)
	ErrLicense                 = sentinel(KindLicense)
	ErrLicenseExpired          = sentinel(KindLicenseExpired)
	ErrLicenseNotFound         = sentinel(KindLicenseNotFound)
	ErrLicenseInactive         = sentinel(KindLicenseInactive)
	ErrLicenseActivationFailed = sentinel(KindLicenseActivationFailed)
	ErrMaxActivations          = sentinel(KindMaxActivations)
	ErrWebSocket               = sentinel(KindWebSocket)
	ErrConfiguration           = sentinel(KindConfiguration)
	ErrStorage                 = sentinel(KindStorage)
	ErrCrypto                  = sentinel(KindCrypto)
	ErrWebhook                 = sentinel(KindWebhook)
	ErrTwoFactor               = sentinel(KindTwoFactor)
	ErrImportExport            = sentinel(KindImportExport)
)

// New builds an error of kind k with the kind's default code.
func New(k Kind, message string) *Error {
	return &Error{Kind: k, Message: message, Code: DefaultCode(k)}
}

// Newf is New with a format string.
func Newf(k Kind, format string, args ...any) *Error {
	return New(k, fmt.Sprintf(format, args...))
}

// Wrap builds an error of kind k around cause.
func Wrap(k Kind, cause error, message string) *Error {
	e := New(k, message)
	e.Err = cause
	return e
}

// NewValidation builds a KindValidation error carrying per-field messages.
func NewValidation(message string, fields map[string][]string) *Error {
	if message == "" {
		message = "Validation failed"
	}
	e := New(KindValidation, message)
	e.Fields = fields
	e.Details = map[string]any{"fields": fields}
	return e
}

// NewNotFound builds a KindNotFound error for resource (and optional id).
func NewNotFound(resource, id string) *Error {
	if resource == "" {
		resource = "Resource"
	}
	msg := resource + " not found"
	if id != "" {
		msg = fmt.Sprintf("%s with id %s not found", resource, id)
	}
	e := New(KindNotFound, msg)
	e.StatusCode = 404
	e.Details = map[string]any{"resource": resource, "id": id}
	return e
}

// NewRateLimit builds a KindRateLimit error. retryAfter is in seconds.
func NewRateLimit(message string, retryAfter int) *Error {
	if message == "" {
		message = "Rate limit exceeded"
	}
	e := New(KindRateLimit, message)
	e.StatusCode = 429
	e.RetryAfter = retryAfter
	e.Details = map[string]any{"retry_after": retryAfter}
	return e
}

// NewServer builds a KindServer error for a 5xx status.
func NewServer(message string, status int) *Error {
	if message == "" {
		message = "Server error occurred"
	}
	e := New(KindServer, message)
	e.StatusCode = status
	return e
}

// NewMaxActivations builds the activation-limit error.
func NewMaxActivations(licenseKey string, maxActivations, current int) *Error {
	e := Newf(KindMaxActivations, "License %s has reached maximum activations (%d/%d)", licenseKey, current, maxActivations)
	e.Details = map[string]any{
		"license_key":         licenseKey,
		"reason":              "max_activations_reached",
		"max_activations":     maxActivations,
		"current_activations": current,
	}
	return e
}

// FromTransportError classifies a failure to obtain any HTTP response.
func FromTransportError(err error) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return existing
	}
	if isTimeout(err) {
		return Wrap(KindTimeout, err, "Request timed out")
	}
	return Wrap(KindNetwork, err, "Connection error")
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// FromError returns err as an *Error, wrapping foreign errors as KindUnknown.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(KindUnknown, err, "Request failed")
}

// KindOf returns the kind of err, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRateLimit reports whether err is a rate-limit error.
func IsRateLimit(err error) bool { return errors.Is(err, ErrRateLimit) }

// IsNotFound reports whether err is a NotFound or LicenseNotFound error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrLicenseNotFound)
}

// IsAuthentication reports whether err is an authentication failure.
func IsAuthentication(err error) bool { return errors.Is(err, ErrAuthentication) }
