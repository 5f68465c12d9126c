package scheduler

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/elonfeng/feedpulse/pkg/document"
)

// Fetcher loads a fresh rendition of the remote document.
type Fetcher func(ctx context.Context) (*document.Snapshot, error)

// PageFetcher fetches an HTML page.
func PageFetcher(l *document.Loader, pageURL string) Fetcher {
	return func(ctx context.Context) (*document.Snapshot, error) {
		return l.Page(ctx, pageURL)
	}
}

// FeedFetcher fetches an RSS/Atom feed.
func FeedFetcher(l *document.Loader, feedURL string) Fetcher {
	return func(ctx context.Context) (*document.Snapshot, error) {
		return l.Feed(ctx, feedURL)
	}
}

// Trigger starts a reconciliation pass.
type Trigger interface {
	Trigger(ctx context.Context)
}

// Pruner drops expired persisted cache entries.
type Pruner interface {
	Prune(ctx context.Context) (int, error)
}

// Scheduler periodically refetches the remote document, swaps it into the
// live page and triggers reconciliation. It also prunes the persisted cache.
type Scheduler struct {
	fetch    Fetcher
	live     *document.Live
	loop     Trigger
	pruner   Pruner
	pollInt  time.Duration
	pruneInt time.Duration
}

// New creates a new scheduler. pruner may be nil.
func New(fetch Fetcher, live *document.Live, loop Trigger, pruner Pruner, pollInt, pruneInt time.Duration) *Scheduler {
	if pollInt == 0 {
		pollInt = 5 * time.Minute
	}
	if pruneInt == 0 {
		pruneInt = time.Hour
	}
	return &Scheduler{
		fetch:    fetch,
		live:     live,
		loop:     loop,
		pruner:   pruner,
		pollInt:  pollInt,
		pruneInt: pruneInt,
	}
}

// Run starts the scheduler loop. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	pollTicker := time.NewTicker(s.pollInt)
	pruneTicker := time.NewTicker(s.pruneInt)
	defer pollTicker.Stop()
	defer pruneTicker.Stop()

	// Run immediately on start.
	fmt.Fprintln(os.Stderr, "scheduler: initial fetch...")
	s.refresh(ctx)

	fmt.Fprintf(os.Stderr, "scheduler: running (poll every %s, prune every %s)\n",
		s.pollInt, s.pruneInt)

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "scheduler: stopped")
			return ctx.Err()
		case <-pollTicker.C:
			s.refresh(ctx)
		case <-pruneTicker.C:
			s.prune(ctx)
		}
	}
}

// refresh replaces the live document and triggers a pass. On fetch failure
// the previous document stays live and no pass is triggered.
func (s *Scheduler) refresh(ctx context.Context) {
	snap, err := s.fetch(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "  fetch error: %v\n", err)
		return
	}
	s.live.Replace(snap)
	fmt.Fprintf(os.Stderr, "  fetched: %d items\n", len(snap.Items()))
	s.loop.Trigger(ctx)
}

func (s *Scheduler) prune(ctx context.Context) {
	if s.pruner == nil {
		return
	}
	n, err := s.pruner.Prune(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "  prune error: %v\n", err)
		return
	}
	if n > 0 {
		fmt.Fprintf(os.Stderr, "  pruned: %d cache entries\n", n)
	}
}
