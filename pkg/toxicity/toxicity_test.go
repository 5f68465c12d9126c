package toxicity

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/elonfeng/feedpulse/pkg/classifier"
)

type fakeClassifier struct {
	labels []classifier.Label
	err    error
	calls  atomic.Int32
}

func (f *fakeClassifier) Classify(context.Context, string) ([]classifier.Label, error) {
	f.calls.Add(1)
	return f.labels, f.err
}

func TestHeuristic(t *testing.T) {
	tests := []struct {
		text string
		want float64
	}{
		{"", 0},
		{"a perfectly pleasant post", 0},
		{"you absolute IDIOT", 0.15},
		{"stupid idiot, shut up", 0.45},
		{"idiot idiot idiot", 0.15},
		{"hate stupid idiot moron kill trash dumb", 0.9},
		{"hate stupid idiot moron kill trash dumb loser shut up worthless", 0.9},
	}
	for _, tt := range tests {
		got := Heuristic(tt.text)
		if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("Heuristic(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestFromLabels(t *testing.T) {
	labels := []classifier.Label{
		{Label: "TOXIC", Score: 0.4},
		{Label: "severe_toxic", Score: 0.2},
		{Label: "identity_hate", Score: 0.6},
		{Label: "neutral", Score: 0.99},
	}
	if got := FromLabels(labels); got != 0.6 {
		t.Errorf("FromLabels = %v, want 0.6", got)
	}
	if got := FromLabels(nil); got != 0 {
		t.Errorf("FromLabels(nil) = %v", got)
	}
}

func TestScorerUsesClassifier(t *testing.T) {
	fc := &fakeClassifier{labels: []classifier.Label{{Label: "insult", Score: 0.82}}}
	s := NewScorer(Ready(fc), nil)
	ctx := context.Background()

	if got := s.Score(ctx, "k", "hello"); got != 0.82 {
		t.Fatalf("Score = %v, want 0.82", got)
	}
	// First text for a key wins.
	if got := s.Score(ctx, "k", "stupid idiot"); got != 0.82 {
		t.Errorf("rescored key: %v", got)
	}
	if fc.calls.Load() != 1 {
		t.Errorf("classifier called %d times, want 1", fc.calls.Load())
	}
	if v, ok := s.Cached("k"); !ok || v != 0.82 {
		t.Errorf("Cached = %v, %v", v, ok)
	}
}

func TestScorerFallsBackOnClassifyError(t *testing.T) {
	fc := &fakeClassifier{err: errors.New("rate limited")}
	s := NewScorer(Ready(fc), nil)

	if got := s.Score(context.Background(), "k", "stupid idiot, shut up"); got < 0.449 || got > 0.451 {
		t.Errorf("Score = %v, want heuristic 0.45", got)
	}
}

// ctxClassifier fails like a real inference call once its context is done.
type ctxClassifier struct{ labels []classifier.Label }

func (c ctxClassifier) Classify(ctx context.Context, _ string) ([]classifier.Label, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.labels, nil
}

func TestCancelledCallerStillClassifies(t *testing.T) {
	fc := ctxClassifier{labels: []classifier.Label{{Label: "toxic", Score: 0.66}}}
	lazy := NewLazy(func(ctx context.Context) (classifier.Classifier, error) {
		time.Sleep(10 * time.Millisecond)
		return fc, nil
	})
	s := NewScorer(lazy, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if got := s.Score(ctx, "k", "no listed words here"); got != 0.66 {
		t.Fatalf("Score = %v, want classifier score 0.66", got)
	}
	if v, ok := s.Cached("k"); !ok || v != 0.66 {
		t.Errorf("Cached = %v, %v", v, ok)
	}
}

func TestInitFailureIsSticky(t *testing.T) {
	var inits atomic.Int32
	lazy := NewLazy(func(context.Context) (classifier.Classifier, error) {
		inits.Add(1)
		return nil, errors.New("model download failed")
	})
	s := NewScorer(lazy, nil)
	ctx := context.Background()

	for i, key := range []string{"a", "b", "c"} {
		if got := s.Score(ctx, key, "you moron"); got != 0.15 {
			t.Errorf("call %d: Score = %v, want 0.15", i, got)
		}
	}
	if inits.Load() != 1 {
		t.Errorf("init attempted %d times, want 1", inits.Load())
	}
	if lazy.State() != StateFailed {
		t.Errorf("state = %v, want failed", lazy.State())
	}
	if _, err := lazy.Get(ctx); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Get after failure = %v", err)
	}
}

func TestConcurrentInitShared(t *testing.T) {
	gate := make(chan struct{})
	var inits atomic.Int32
	fc := &fakeClassifier{labels: []classifier.Label{{Label: "toxic", Score: 0.5}}}
	lazy := NewLazy(func(context.Context) (classifier.Classifier, error) {
		inits.Add(1)
		<-gate
		return fc, nil
	})

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			_, err := lazy.Get(context.Background())
			return err
		})
	}
	for lazy.State() != StateInitializing {
		time.Sleep(time.Millisecond)
	}
	close(gate)
	if err := g.Wait(); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if inits.Load() != 1 {
		t.Errorf("init ran %d times, want 1", inits.Load())
	}
	if lazy.State() != StateReady {
		t.Errorf("state = %v", lazy.State())
	}
}

func TestDisabledClassifierUsesHeuristic(t *testing.T) {
	s := NewScorer(nil, nil)
	if got := s.Score(context.Background(), "k", "trash"); got != 0.15 {
		t.Errorf("Score = %v, want 0.15", got)
	}
}
