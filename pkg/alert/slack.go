package alert

import (
	"context"
	"fmt"
	"net/http"
)

// Slack posts Block Kit messages to an incoming webhook.
type Slack struct {
	client     *http.Client
	webhookURL string
}

// NewSlack creates a Slack notifier.
func NewSlack(webhookURL string) *Slack {
	return &Slack{client: newClient(), webhookURL: webhookURL}
}

func (s *Slack) Name() string { return "slack" }

func (s *Slack) Send(ctx context.Context, n *Notification) error {
	text := func(kind, v string) map[string]any {
		return map[string]any{"type": kind, "text": v}
	}
	blocks := []map[string]any{
		{"type": "header", "text": text("plain_text", "🔥 "+n.Title)},
		{"type": "section", "text": text("mrkdwn", fmt.Sprintf("*%s*\n%s", n.summary(), n.Body))},
	}
	if n.URL != "" {
		blocks = append(blocks, map[string]any{
			"type":     "context",
			"elements": []map[string]any{text("mrkdwn", fmt.Sprintf("<%s|Open thread>", n.URL))},
		})
	}
	return postJSON(ctx, s.client, "slack webhook", s.webhookURL, map[string]any{"blocks": blocks}, nil)
}
