package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/elonfeng/feedpulse/pkg/document"
	"github.com/elonfeng/feedpulse/pkg/numeric"
)

// GuardThreshold is the cached arousal above which navigation is held.
const GuardThreshold = 0.5

// ScoreLookup reads a memoized score without computing it.
type ScoreLookup interface {
	Cached(key string) (float64, bool)
}

// EmotionStore persists the reader's emotion tag per item key.
type EmotionStore interface {
	Load(ctx context.Context, key string) (string, error)
	Save(ctx context.Context, key, emotion string) error
}

// Decision is the guard's answer for a navigation into an item.
type Decision struct {
	Key       string        `json:"key"`
	Intercept bool          `json:"intercept"`
	Percent   int           `json:"percent,omitempty"`
	Level     numeric.Level `json:"level,omitempty"`
	Emotion   string        `json:"emotion,omitempty"`
}

// Guard decides whether opening an item should first ask the reader how
// they feel about it.
type Guard struct {
	arousal  ScoreLookup
	emotions EmotionStore
}

// NewGuard creates a guard over the arousal cache. emotions may be nil.
func NewGuard(arousal ScoreLookup, emotions EmotionStore) *Guard {
	return &Guard{arousal: arousal, emotions: emotions}
}

// Attach marks item as guarded. It reports false when a guard was already
// attached to this node.
func (g *Guard) Attach(item document.Item) bool {
	if item.Marked(GuardMarker) {
		return false
	}
	item.Mark(GuardMarker)
	return true
}

// IsNavigation reports whether following href from inside an item opens the
// item's discussion. Links inside the overlay never count.
func IsNavigation(href string, inItem, inOverlay bool) bool {
	if href == "" || inOverlay {
		return false
	}
	return strings.Contains(href, "/comments/") || inItem
}

// Intercept decides for key using only the cached arousal score; an item
// that has not been scored yet is never intercepted.
func (g *Guard) Intercept(ctx context.Context, key string) Decision {
	d := Decision{Key: key}
	score, ok := g.arousal.Cached(key)
	if !ok || score <= GuardThreshold {
		return d
	}

	d.Intercept = true
	d.Percent = numeric.Percent(score)
	d.Level = numeric.LevelOf(score)
	if g.emotions != nil {
		emotion, err := g.emotions.Load(ctx, key)
		if err != nil {
			slog.Warn("reconcile: load emotion failed", "key", key, "err", err)
		}
		d.Emotion = emotion
	}
	return d
}

// Proceed records the emotion the reader picked before continuing. An empty
// emotion leaves the stored tag untouched.
func (g *Guard) Proceed(ctx context.Context, key, emotion string) error {
	if emotion == "" || g.emotions == nil {
		return nil
	}
	if err := g.emotions.Save(ctx, key, emotion); err != nil {
		return fmt.Errorf("save emotion: %w", err)
	}
	return nil
}
