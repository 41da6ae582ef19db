package apierr

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/opengovern/dca-auth-go/internal"
)

type errorPayload struct {
	Message string         `json:"message"`
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details"`
}

// Classify maps a non-2xx response to a typed error. Transport-level statuses
// (401, 403, 429, 5xx) decide the kind on their own; for the remaining
// statuses a domain code from the body (LICENSE_*, TWO_FACTOR_*, WEBHOOK_*,
// *_IMPORT_ERROR / *_EXPORT_ERROR) refines the result before falling back to
// the status mapping.
func Classify(status int, header http.Header, body []byte) *Error {
	message, code, details := parsePayload(body)

	switch {
	case status == http.StatusUnauthorized:
		return withPayload(New(KindAuthentication, message), status, code, details)
	case status == http.StatusForbidden:
		return withPayload(New(KindAuthorization, message), status, code, details)
	case status == http.StatusTooManyRequests:
		return classifyRateLimit(message, code, details, header)
	case status >= http.StatusInternalServerError:
		return withPayload(NewServer(message, status), status, code, details)
	}

	if e := classifyDomainCode(message, code, details, status); e != nil {
		return e
	}

	switch status {
	case http.StatusBadRequest:
		if code == CodeValidation {
			e := NewValidation(message, fieldsFrom(details["fields"]))
			e.StatusCode = status
			mergeDetails(e, details)
			return e
		}
	case http.StatusNotFound:
		e := NewNotFound(stringDetail(details, "resource"), stringDetail(details, "id"))
		mergeDetails(e, details)
		if code != CodeUnknown {
			e.Code = code
		}
		return e
	case http.StatusConflict:
		return withPayload(New(KindConflict, message), status, code, details)
	}

	e := New(KindUnknown, message)
	e.Code = code
	e.Details = details
	e.StatusCode = status
	return e
}

func parsePayload(body []byte) (string, string, map[string]any) {
	var p errorPayload
	if len(body) == 0 || json.Unmarshal(body, &p) != nil {
		text := strings.TrimSpace(string(body))
		if text == "" {
			text = "Unknown error"
		}
		return text, CodeUnknown, map[string]any{}
	}
	message := p.Message
	if message == "" {
		message = p.Error
	}
	if message == "" {
		message = "Unknown error"
	}
	code := p.Code
	if code == "" {
		code = CodeUnknown
	}
	if p.Details == nil {
		p.Details = map[string]any{}
	}
	return message, code, p.Details
}

func withPayload(e *Error, status int, code string, details map[string]any) *Error {
	e.StatusCode = status
	if code != CodeUnknown {
		e.Code = code
	}
	e.Details = details
	return e
}

func mergeDetails(e *Error, details map[string]any) {
	for k, v := range details {
		if _, exists := e.Details[k]; !exists || e.Details[k] == "" {
			e.WithDetail(k, v)
		}
	}
}

func classifyRateLimit(message, code string, details map[string]any, header http.Header) *Error {
	retryAfter, ok := internal.ParseRetryAfter(header.Get("Retry-After"), time.Now())
	if !ok {
		retryAfter = intDetail(details, "retry_after", intDetail(details, "retryAfter", 0))
	}
	e := NewRateLimit(message, retryAfter)
	if code != CodeUnknown {
		e.Code = code
	}
	mergeDetails(e, details)
	return e
}

func classifyDomainCode(message, code string, details map[string]any, status int) *Error {
	var e *Error
	switch {
	case code == CodeMaxActivations || code == "LICENSE_MAX_ACTIVATIONS" || code == "LICENSE_MAX_ACTIVATIONS_REACHED":
		key := stringDetailOr(details, "license_key", "unknown")
		e = NewMaxActivations(key, intDetail(details, "max_activations", 0), intDetail(details, "current_activations", 0))
	case strings.HasPrefix(code, "LICENSE_"):
		e = classifyLicense(message, code, details)
	case strings.HasPrefix(code, "TWO_FACTOR") || strings.HasPrefix(code, "2FA_"):
		e = New(KindTwoFactor, message)
	case strings.HasPrefix(code, "WEBHOOK_"):
		e = New(KindWebhook, message)
	case strings.HasSuffix(code, "IMPORT_ERROR") || strings.HasSuffix(code, "EXPORT_ERROR"):
		e = New(KindImportExport, message)
	default:
		return nil
	}
	if message != "Unknown error" {
		e.Message = message
	}
	e.Code = code
	e.StatusCode = status
	mergeDetails(e, details)
	return e
}

func classifyLicense(message, code string, details map[string]any) *Error {
	key := stringDetailOr(details, "license_key", "unknown")
	switch code {
	case CodeLicenseExpired:
		return Newf(KindLicenseExpired, "License %s has expired", key)
	case CodeLicenseNotFound:
		return Newf(KindLicenseNotFound, "License %s not found", key)
	case CodeLicenseInactive, "LICENSE_SUSPENDED", "LICENSE_REVOKED":
		return Newf(KindLicenseInactive, "License %s is %s", key, stringDetailOr(details, "status", "inactive"))
	case CodeLicenseActivation, "LICENSE_ACTIVATION_FAILED":
		return New(KindLicenseActivationFailed, message)
	default:
		return New(KindLicense, message)
	}
}

func fieldsFrom(v any) map[string][]string {
	fields := map[string][]string{}
	raw, ok := v.(map[string]any)
	if !ok {
		return fields
	}
	for name, msgs := range raw {
		switch m := msgs.(type) {
		case string:
			fields[name] = []string{m}
		case []any:
			for _, item := range m {
				fields[name] = append(fields[name], fmt.Sprint(item))
			}
		default:
			fields[name] = []string{fmt.Sprint(m)}
		}
	}
	return fields
}

func stringDetail(details map[string]any, key string) string {
	return stringDetailOr(details, key, "")
}

func stringDetailOr(details map[string]any, key, fallback string) string {
	v, ok := details[key]
	if !ok || v == nil {
		return fallback
	}
	switch s := v.(type) {
	case string:
		if s == "" {
			return fallback
		}
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprint(s)
	}
}

func intDetail(details map[string]any, key string, fallback int) int {
	switch v := details[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return fallback
}
