package alert

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/elonfeng/feedpulse/pkg/numeric"
	"github.com/elonfeng/feedpulse/pkg/reconcile"
)

// DefaultThreshold is the arousal at or above which an item is broadcast.
const DefaultThreshold = 0.7

const (
	sendTimeout = 15 * time.Second
	titleLimit  = 120
	bodyLimit   = 400
)

// Hook is a reconcile.Hooks that broadcasts each item whose arousal reaches
// the threshold. Every key is broadcast at most once per process. Sends run
// in the background so rendering never waits on a notifier; Wait blocks
// until they are done.
type Hook struct {
	reconcile.NopHooks

	mgr       *Manager
	threshold float64
	toxicity  reconcile.ScoreLookup

	mu      sync.Mutex
	alerted map[string]bool

	sends sync.WaitGroup
}

// NewHook creates an alert hook. toxicity, when set, adds the cached
// toxicity score to notifications.
func NewHook(mgr *Manager, threshold float64, toxicity reconcile.ScoreLookup) *Hook {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Hook{
		mgr:       mgr,
		threshold: threshold,
		toxicity:  toxicity,
		alerted:   make(map[string]bool),
	}
}

// Arousal broadcasts o when score reaches the threshold.
func (h *Hook) Arousal(o reconcile.Overlay, score float64) {
	if score < h.threshold || !h.mgr.HasNotifiers() {
		return
	}

	h.mu.Lock()
	if h.alerted[o.Key] {
		h.mu.Unlock()
		return
	}
	h.alerted[o.Key] = true
	h.mu.Unlock()

	n := &Notification{
		Title:   truncate(firstLine(o.Text), titleLimit),
		Body:    truncate(o.Text, bodyLimit),
		URL:     o.Key,
		Arousal: score,
		Level:   numeric.LevelOf(score),
	}
	if n.Title == "" {
		n.Title = o.Key
	}
	if h.toxicity != nil {
		if t, ok := h.toxicity.Cached(o.Key); ok {
			n.Toxicity = &t
		}
	}

	h.sends.Add(1)
	go func() {
		defer h.sends.Done()
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := h.mgr.Broadcast(ctx, n); err != nil {
			slog.Warn("alert: broadcast failed", "key", n.URL, "err", err)
			return
		}
		slog.Info("alert: broadcast", "key", n.URL, "arousal", n.Arousal)
	}()
}

// Wait blocks until every broadcast started so far has finished.
func (h *Hook) Wait() {
	h.sends.Wait()
}

// Alerted reports whether key has been broadcast.
func (h *Hook) Alerted(key string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.alerted[key]
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

var _ reconcile.Hooks = (*Hook)(nil)
