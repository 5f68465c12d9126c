// Package toxicity scores item text with a classifier, falling back to a
// keyword heuristic when the classifier is unavailable.
package toxicity

import (
	"context"
	"log/slog"
	"strings"

	"github.com/elonfeng/feedpulse/pkg/cache"
	"github.com/elonfeng/feedpulse/pkg/classifier"
	"github.com/elonfeng/feedpulse/pkg/numeric"
)

// LabelTerms select the classifier labels that count toward the score.
var LabelTerms = []string{"toxic", "insult", "obscene", "threat", "hate"}

// Scorer memoizes one toxicity score per item key. The first text scored
// for a key wins.
type Scorer struct {
	lazy  *Lazy
	cache *cache.Tiered
}

// NewScorer creates a scorer. A nil lazy scores with the heuristic only;
// a nil c gets a memory-only cache without metrics.
func NewScorer(lazy *Lazy, c *cache.Tiered) *Scorer {
	if lazy == nil {
		lazy = NewLazy(nil)
	}
	if c == nil {
		c = cache.NewTiered("toxicity", nil, nil, nil)
	}
	return &Scorer{lazy: lazy, cache: c}
}

// Score returns the toxicity of text in [0,1]. It never fails, and
// cancelling ctx does not abort a started classification.
func (s *Scorer) Score(ctx context.Context, key, text string) float64 {
	return s.cache.GetOrCompute(ctx, key, func(ctx context.Context) float64 {
		return s.compute(context.WithoutCancel(ctx), key, text)
	})
}

// Cached returns the memoized score for key without computing.
func (s *Scorer) Cached(key string) (float64, bool) {
	return s.cache.Peek(key)
}

// Cache exposes the memoization tier.
func (s *Scorer) Cache() *cache.Tiered { return s.cache }

func (s *Scorer) compute(ctx context.Context, key, text string) float64 {
	c, err := s.lazy.Get(ctx)
	if err == nil {
		var labels []classifier.Label
		labels, err = c.Classify(ctx, text)
		if err == nil {
			return FromLabels(labels)
		}
		slog.Warn("toxicity: classify failed, using heuristic", "key", key, "err", err)
	}
	return Heuristic(text)
}

// FromLabels returns the highest confidence among labels whose name contains
// one of LabelTerms.
func FromLabels(labels []classifier.Label) float64 {
	score := 0.0
	for _, l := range labels {
		name := strings.ToLower(l.Label)
		for _, term := range LabelTerms {
			if strings.Contains(name, term) {
				score = max(score, numeric.Clamp01(l.Score))
				break
			}
		}
	}
	return score
}
