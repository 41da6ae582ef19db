package dcaauth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"

	"github.com/opengovern/dca-auth-go/apierr"
)

const webhooksPath = "/api/webhooks"

// SignatureHeader carries the hex HMAC-SHA256 of a delivery body.
const SignatureHeader = "X-DCA-Signature"

// WebhookManager wraps webhook administration and emits webhook.* events.
type WebhookManager struct {
	manager
}

func newWebhookManager(exec *Executor, logger *slog.Logger) *WebhookManager {
	return &WebhookManager{manager: newManager(exec, "webhook", "webhooks", logger)}
}

func (m *WebhookManager) Create(ctx context.Context, req CreateWebhookRequest) (*Webhook, error) {
	var hook Webhook
	if err := m.send(ctx, http.MethodPost, webhooksPath, req, &hook); err != nil {
		return nil, err
	}
	m.emit("created", &hook)
	return &hook, nil
}

func (m *WebhookManager) Get(ctx context.Context, id string) (*Webhook, error) {
	path, err := resourcePath(webhooksPath, id)
	if err != nil {
		return nil, err
	}
	var hook Webhook
	if err := m.call(ctx, http.MethodGet, path, RequestOptions{}, &hook); err != nil {
		return nil, err
	}
	return &hook, nil
}

func (m *WebhookManager) List(ctx context.Context, params SearchParams) (*Page[Webhook], error) {
	var page Page[Webhook]
	if err := m.list(ctx, webhooksPath, params, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (m *WebhookManager) Update(ctx context.Context, id string, req UpdateWebhookRequest) (*Webhook, error) {
	path, err := resourcePath(webhooksPath, id)
	if err != nil {
		return nil, err
	}
	var hook Webhook
	if err := m.send(ctx, http.MethodPatch, path, req, &hook); err != nil {
		return nil, err
	}
	m.emit("updated", &hook)
	return &hook, nil
}

func (m *WebhookManager) Delete(ctx context.Context, id string) error {
	path, err := resourcePath(webhooksPath, id)
	if err != nil {
		return err
	}
	if err := m.call(ctx, http.MethodDelete, path, RequestOptions{}, nil); err != nil {
		return err
	}
	m.emit("deleted", id)
	return nil
}

// Test asks the server to send a test delivery and returns its record.
func (m *WebhookManager) Test(ctx context.Context, id string) (*WebhookDelivery, error) {
	path, err := resourcePath(webhooksPath, id, "test")
	if err != nil {
		return nil, err
	}
	var delivery WebhookDelivery
	if err := m.call(ctx, http.MethodPost, path, RequestOptions{}, &delivery); err != nil {
		return nil, err
	}
	m.emit("tested", &delivery)
	return &delivery, nil
}

func (m *WebhookManager) Deliveries(ctx context.Context, id string, params SearchParams) (*Page[WebhookDelivery], error) {
	path, err := resourcePath(webhooksPath, id, "deliveries")
	if err != nil {
		return nil, err
	}
	var page Page[WebhookDelivery]
	if err := m.list(ctx, path, params, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// VerifySignature checks a delivery body against its signature header value
// ("<hex>" or "sha256=<hex>").
func (m *WebhookManager) VerifySignature(payload []byte, signature, secret string) error {
	if secret == "" {
		return apierr.New(apierr.KindWebhook, "webhook secret is required")
	}
	sig := strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	got, err := hex.DecodeString(sig)
	if err != nil || len(got) != sha256.Size {
		return apierr.New(apierr.KindWebhook, "malformed webhook signature").WithDetail("signature", signature)
	}
	if !hmac.Equal(got, signPayload(payload, secret)) {
		m.logger.Warn("webhook signature mismatch", slog.Int("bytes", len(payload)))
		return apierr.New(apierr.KindWebhook, "webhook signature mismatch")
	}
	return nil
}

// SignPayload returns the hex signature VerifySignature accepts.
func SignPayload(payload []byte, secret string) string {
	return hex.EncodeToString(signPayload(payload, secret))
}

func signPayload(payload []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return mac.Sum(nil)
}
