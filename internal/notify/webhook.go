package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/CosmoTheDev/devsecwatch-worker/internal/config"
)

// SignatureHeader carries "sha256=<hex HMAC>" of the body when a secret is set.
const SignatureHeader = "X-Devsecwatch-Signature"

// WebhookChannel posts the envelope as JSON to an operator-chosen endpoint.
type WebhookChannel struct {
	url    string
	secret string
	client *http.Client
}

// NewWebhook creates a WebhookChannel from cfg.
func NewWebhook(cfg config.WebhookConfig) *WebhookChannel {
	return &WebhookChannel{url: cfg.URL, secret: cfg.Secret, client: &http.Client{Timeout: httpTimeout}}
}

func (w *WebhookChannel) Name() string       { return "webhook" }
func (w *WebhookChannel) IsConfigured() bool { return w.url != "" }

func (w *WebhookChannel) Send(ctx context.Context, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	var header http.Header
	if w.secret != "" {
		header = http.Header{SignatureHeader: {"sha256=" + Sign(w.secret, body)}}
	}
	return postJSON(ctx, w.client, "webhook", w.url, body, header)
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
