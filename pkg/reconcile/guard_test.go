package reconcile

import (
	"context"
	"testing"

	"github.com/elonfeng/feedpulse/internal/store"
	"github.com/elonfeng/feedpulse/pkg/numeric"
)

type staticLookup map[string]float64

func (s staticLookup) Cached(key string) (float64, bool) {
	v, ok := s[key]
	return v, ok
}

func TestGuardIntercept(t *testing.T) {
	ctx := context.Background()
	tags := store.NewEmotionTags(store.NewMemory())
	if err := tags.Save(ctx, "hot", "angry"); err != nil {
		t.Fatal(err)
	}
	g := NewGuard(staticLookup{"hot": 0.734, "edge": 0.5, "calm": 0.1}, tags)

	tests := []struct {
		key       string
		intercept bool
		percent   int
		emotion   string
	}{
		{"hot", true, 73, "angry"},
		{"edge", false, 0, ""},
		{"calm", false, 0, ""},
		{"unscored", false, 0, ""},
	}
	for _, tt := range tests {
		d := g.Intercept(ctx, tt.key)
		if d.Intercept != tt.intercept || d.Percent != tt.percent || d.Emotion != tt.emotion {
			t.Errorf("Intercept(%q) = %+v", tt.key, d)
		}
	}
	if d := g.Intercept(ctx, "hot"); d.Level != numeric.LevelHigh {
		t.Errorf("level = %q", d.Level)
	}
}

func TestGuardProceedSavesEmotion(t *testing.T) {
	ctx := context.Background()
	tags := store.NewEmotionTags(store.NewMemory())
	g := NewGuard(staticLookup{}, tags)

	if err := g.Proceed(ctx, "k", ""); err != nil {
		t.Fatal(err)
	}
	if err := g.Proceed(ctx, "k", "sad"); err != nil {
		t.Fatal(err)
	}
	if got, _ := tags.Load(ctx, "k"); got != "sad" {
		t.Errorf("stored emotion = %q", got)
	}
	if err := g.Proceed(ctx, "k", "bored"); err == nil {
		t.Error("unknown emotion should be rejected")
	}
}

func TestIsNavigation(t *testing.T) {
	tests := []struct {
		href              string
		inItem, inOverlay bool
		want              bool
	}{
		{"/r/golang/comments/abc/x/", false, false, true},
		{"https://example.com/article", true, false, true},
		{"https://example.com/article", false, false, false},
		{"/r/golang/comments/abc/x/", true, true, false},
		{"", true, false, false},
	}
	for _, tt := range tests {
		if got := IsNavigation(tt.href, tt.inItem, tt.inOverlay); got != tt.want {
			t.Errorf("IsNavigation(%q, %v, %v) = %v", tt.href, tt.inItem, tt.inOverlay, got)
		}
	}
}
