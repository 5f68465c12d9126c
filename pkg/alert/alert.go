// Package alert broadcasts high-arousal items to chat and webhook
// destinations.
package alert

import (
	"context"
	"errors"
	"fmt"

	"github.com/elonfeng/feedpulse/pkg/numeric"
)

// Notification is the data sent to alert destinations.
type Notification struct {
	Title    string        `json:"title"`
	Body     string        `json:"body"`
	URL      string        `json:"url"`
	Arousal  float64       `json:"arousal"`
	Toxicity *float64      `json:"toxicity,omitempty"`
	Level    numeric.Level `json:"level"`
}

// Notifier delivers alerts to a specific destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n *Notification) error
}

// Manager broadcasts notifications to all registered notifiers.
type Manager struct {
	notifiers []Notifier
}

// NewManager creates a new alert manager.
func NewManager(notifiers []Notifier) *Manager {
	return &Manager{notifiers: notifiers}
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return len(m.notifiers) > 0
}

// Broadcast sends a notification to all registered notifiers.
func (m *Manager) Broadcast(ctx context.Context, n *Notification) error {
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// summary is the one-line score summary shared by the chat notifiers.
func (n *Notification) summary() string {
	s := fmt.Sprintf("Arousal: %d%% (%s)", numeric.Percent(n.Arousal), n.Level)
	if n.Toxicity != nil {
		s += fmt.Sprintf(" | Toxicity: %d%%", numeric.Percent(*n.Toxicity))
	}
	return s
}
