// Package arousal scores how inflammatory an item's discussion is from its
// comment-to-score ratio and the concentration of low-scored comments.
package arousal

import (
	"context"
	"log/slog"
	"time"

	"github.com/elonfeng/feedpulse/pkg/cache"
	"github.com/elonfeng/feedpulse/pkg/document"
	"github.com/elonfeng/feedpulse/pkg/identity"
)

// Scorer memoizes one arousal score per item key. The remote low-score
// concentration signal goes through its own tiered cache.
type Scorer struct {
	source   CommentSource
	scores   *cache.Tiered
	lowScore *cache.Tiered
	now      func() time.Time
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithScoreCache replaces the memory-only arousal score cache.
func WithScoreCache(c *cache.Tiered) Option {
	return func(s *Scorer) { s.scores = c }
}

// WithNow injects the clock used by the age signal.
func WithNow(now func() time.Time) Option {
	return func(s *Scorer) { s.now = now }
}

// NewScorer creates a scorer. lowScore is normally a memory + persisted
// cache; a nil lowScore gets a memory-only one.
func NewScorer(source CommentSource, lowScore *cache.Tiered, opts ...Option) *Scorer {
	s := &Scorer{
		source:   source,
		lowScore: lowScore,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.scores == nil {
		s.scores = cache.NewTiered("arousal", nil, nil, nil)
	}
	if s.lowScore == nil {
		s.lowScore = cache.NewTiered("lowscore", nil, nil, nil)
	}
	return s
}

// Score returns the arousal of item in [0,1]. It may block on the comment
// fetch and never fails.
func (s *Scorer) Score(ctx context.Context, item document.Item, key, text string) float64 {
	return s.scores.GetOrCompute(ctx, key, func(ctx context.Context) float64 {
		return s.Explain(context.WithoutCancel(ctx), item, key, text).Score
	})
}

// Cached returns the memoized score for key without computing.
func (s *Scorer) Cached(key string) (float64, bool) {
	return s.scores.Peek(key)
}

// Explain computes every signal for item. The concentration is read through
// the low-score cache, so repeated calls do not refetch.
func (s *Scorer) Explain(ctx context.Context, item document.Item, key, text string) Breakdown {
	comments := CommentCount(item)
	postScore := max(0, PostScore(item))
	ratio := RatioSignal(comments, postScore)
	concentration := s.Concentration(ctx, key)
	age := AgeHours(item, s.now())

	return Breakdown{
		Key:           key,
		Comments:      comments,
		PostScore:     postScore,
		Ratio:         ratio,
		Concentration: concentration,
		Score:         Blend(ratio, concentration),
		AgeHours:      age,
		Velocity:      Velocity(comments, age),
		TextIntensity: TextIntensity(text),
		LowApproval:   LowApproval(UpvoteRatio(item)),
	}
}

// Concentration returns the low-score concentration for key, fetching the
// comment listing on a cache miss. Fetch failures yield 0, which is cached
// like any other result. Cancelling ctx does not abort a started fetch.
func (s *Scorer) Concentration(ctx context.Context, key string) float64 {
	key = identity.Normalize(key)
	return s.lowScore.GetOrCompute(ctx, key, func(ctx context.Context) float64 {
		ctx = context.WithoutCancel(ctx)
		if s.source == nil {
			return 0
		}
		things, err := s.source.Comments(ctx, key)
		if err != nil {
			slog.Warn("arousal: comment fetch failed", "key", key, "err", err)
			return 0
		}
		scores := CollectCommentScores(things, MaxCommentScores)
		slog.Debug("arousal: collected comment scores", "key", key, "count", len(scores))
		return LowScoreConcentration(scores)
	})
}

// LowScoreCache exposes the concentration cache.
func (s *Scorer) LowScoreCache() *cache.Tiered { return s.lowScore }
