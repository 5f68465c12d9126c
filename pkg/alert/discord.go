package alert

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/elonfeng/feedpulse/pkg/numeric"
)

// Discord posts one embed per notification, colored by level.
type Discord struct {
	client     *http.Client
	webhookURL string
}

// NewDiscord creates a Discord notifier.
func NewDiscord(webhookURL string) *Discord {
	return &Discord{client: newClient(), webhookURL: webhookURL}
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Send(ctx context.Context, n *Notification) error {
	embed := map[string]any{
		"title":       "🔥 " + n.Title,
		"url":         n.URL,
		"description": fmt.Sprintf("**%s**\n\n%s", n.summary(), n.Body),
		"color":       levelColor(n.Level),
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	}
	return postJSON(ctx, d.client, "discord webhook", d.webhookURL, map[string]any{"embeds": []map[string]any{embed}}, nil)
}

func levelColor(l numeric.Level) int {
	switch l {
	case numeric.LevelHigh:
		return 0xE53935
	case numeric.LevelMedium:
		return 0xFF6600
	default:
		return 0x43A047
	}
}
