package alert

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
)

// Webhook posts the raw Notification JSON to an HTTP endpoint. With a
// secret, the body is signed in X-Signature-256.
type Webhook struct {
	client *http.Client
	url    string
	secret string
}

// NewWebhook creates a generic webhook notifier.
func NewWebhook(url, secret string) *Webhook {
	return &Webhook{client: newClient(), url: url, secret: secret}
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) Send(ctx context.Context, n *Notification) error {
	var sign func(http.Header, []byte)
	if w.secret != "" {
		sign = func(h http.Header, body []byte) {
			mac := hmac.New(sha256.New, []byte(w.secret))
			mac.Write(body)
			h.Set("X-Signature-256", "sha256="+hex.EncodeToString(mac.Sum(nil)))
		}
	}
	return postJSON(ctx, w.client, "webhook", w.url, n, sign)
}
