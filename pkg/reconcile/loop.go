package reconcile

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/elonfeng/feedpulse/pkg/document"
	"github.com/elonfeng/feedpulse/pkg/identity"
)

// Markers set on item nodes. They die with the node, so a recreated item
// is injected again.
const (
	OverlayMarker = "feedpulse-overlay"
	GuardMarker   = "feedpulse-guard"
)

// ToxicityScorer is the text-only scorer.
type ToxicityScorer interface {
	Score(ctx context.Context, key, text string) float64
	Cached(key string) (float64, bool)
}

// ArousalScorer may block on network I/O.
type ArousalScorer interface {
	Score(ctx context.Context, item document.Item, key, text string) float64
	Cached(key string) (float64, bool)
}

// State is the loop's scan state.
type State int

const (
	Idle State = iota
	Scanning
)

func (s State) String() string {
	if s == Scanning {
		return "scanning"
	}
	return "idle"
}

// Result is a finished item. Unavailable results carry no scores.
type Result struct {
	Key       string  `json:"key"`
	Toxicity  float64 `json:"toxicity"`
	Arousal   float64 `json:"arousal"`
	Available bool    `json:"available"`
}

// ScanStats summarizes one pass.
type ScanStats struct {
	Items        int
	Unresolved   int
	Injected     int
	GuardsAdded  int
	AlreadyShown int
}

// Loop reconciles a Document with its overlays.
type Loop struct {
	doc      document.Document
	resolver *identity.Resolver
	toxicity ToxicityScorer
	arousal  ArousalScorer
	guard    *Guard
	hooks    multiHooks
	newID    func() string

	mu      sync.Mutex
	idle    *sync.Cond
	state   State
	pending bool
	keys    []string
	done    map[string]Result
	waiters map[string][]func(Result)

	// tasks tracks scans and scoring started by this loop.
	tasks sync.WaitGroup
}

// Option configures a Loop.
type Option func(*Loop)

// WithResolver replaces the default identity resolver.
func WithResolver(r *identity.Resolver) Option {
	return func(l *Loop) { l.resolver = r }
}

// WithHooks adds render hooks; they are called in the order given.
func WithHooks(h ...Hooks) Option {
	return func(l *Loop) { l.hooks = append(l.hooks, h...) }
}

// WithGuard replaces the guard built over the arousal scorer.
func WithGuard(g *Guard) Option {
	return func(l *Loop) { l.guard = g }
}

// WithIDs replaces the overlay id generator.
func WithIDs(f func() string) Option {
	return func(l *Loop) { l.newID = f }
}

// New creates an idle loop over doc.
func New(doc document.Document, tox ToxicityScorer, aro ArousalScorer, opts ...Option) *Loop {
	l := &Loop{
		doc:      doc,
		resolver: identity.NewResolver(),
		toxicity: tox,
		arousal:  aro,
		hooks:    multiHooks{},
		newID:    uuid.NewString,
		done:     make(map[string]Result),
		waiters:  make(map[string][]func(Result)),
	}
	l.idle = sync.NewCond(&l.mu)
	for _, o := range opts {
		o(l)
	}
	if l.guard == nil {
		l.guard = NewGuard(aro, nil)
	}
	return l
}

// Guard returns the navigation guard.
func (l *Loop) Guard() *Guard { return l.guard }

// State reports whether a scan is in flight.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Trigger requests a scan and returns immediately. Triggers that arrive
// while a scan is running collapse into one follow-up scan.
func (l *Loop) Trigger(ctx context.Context) {
	l.mu.Lock()
	if l.state == Scanning {
		l.pending = true
		l.mu.Unlock()
		return
	}
	l.state = Scanning
	l.tasks.Add(1)
	l.mu.Unlock()

	go func() {
		defer l.tasks.Done()
		l.drain(ctx)
	}()
}

// Scan runs a pass synchronously, after any pass already in flight. Scoring
// it starts continues in the background; use Wait to block until it is
// done.
func (l *Loop) Scan(ctx context.Context) ScanStats {
	l.mu.Lock()
	for l.state == Scanning {
		l.idle.Wait()
	}
	l.state = Scanning
	l.mu.Unlock()

	return l.drain(ctx)
}

// drain scans until no trigger is pending, then returns to Idle. The
// caller has moved the loop to Scanning. It returns the first pass's stats.
func (l *Loop) drain(ctx context.Context) ScanStats {
	stats := l.scan(ctx)
	for {
		l.mu.Lock()
		if !l.pending || ctx.Err() != nil {
			l.pending = false
			l.state = Idle
			l.idle.Broadcast()
			l.mu.Unlock()
			return stats
		}
		l.pending = false
		l.mu.Unlock()

		l.scan(ctx)
	}
}

// Wait blocks until every scan and scoring task started so far finishes.
func (l *Loop) Wait() {
	l.tasks.Wait()
}

func (l *Loop) scan(ctx context.Context) ScanStats {
	var stats ScanStats
	var keys []string

	for _, item := range l.doc.Items() {
		stats.Items++
		key := l.resolver.Resolve(l.doc, item)
		if key == "" {
			stats.Unresolved++
			continue
		}
		keys = append(keys, key)

		if l.guard.Attach(item) {
			stats.GuardsAdded++
		}
		if item.Marked(OverlayMarker) {
			stats.AlreadyShown++
			continue
		}
		item.Mark(OverlayMarker)

		o := Overlay{
			ID:   l.newID(),
			Key:  key,
			Item: item,
			Text: document.ExtractText(item),
		}
		l.hooks.Injected(o)
		stats.Injected++

		l.tasks.Add(1)
		go func() {
			defer l.tasks.Done()
			l.render(ctx, o)
		}()
	}

	l.mu.Lock()
	l.keys = keys
	l.forget(keys)
	l.mu.Unlock()

	slog.Debug("reconcile: scan",
		"items", stats.Items, "unresolved", stats.Unresolved,
		"injected", stats.Injected, "guards", stats.GuardsAdded)
	return stats
}

// render scores one overlay. Toxicity and arousal run independently and
// each result is dropped if the item was detached meanwhile.
func (l *Loop) render(ctx context.Context, o Overlay) {
	if o.Text == "" {
		l.hooks.Unavailable(o)
		l.finish(Result{Key: o.Key})
		return
	}

	res := Result{Key: o.Key, Available: true}
	var g errgroup.Group
	g.Go(func() error {
		res.Toxicity = l.toxicity.Score(ctx, o.Key, o.Text)
		if o.Item.Attached() {
			l.hooks.Toxicity(o, res.Toxicity)
		}
		return nil
	})
	g.Go(func() error {
		res.Arousal = l.arousal.Score(ctx, o.Item, o.Key, o.Text)
		if o.Item.Attached() {
			l.hooks.Arousal(o, res.Arousal)
		}
		return nil
	})
	_ = g.Wait()

	l.finish(res)
}

func (l *Loop) finish(res Result) {
	l.mu.Lock()
	l.done[res.Key] = res
	waiters := l.waiters[res.Key]
	delete(l.waiters, res.Key)
	l.mu.Unlock()

	for _, f := range waiters {
		f(res)
	}
}

// forget drops finished results and waiters for keys that are no longer on
// the page. Callers hold l.mu.
func (l *Loop) forget(keys []string) {
	live := make(map[string]bool, len(keys))
	for _, k := range keys {
		live[k] = true
	}
	for k := range l.done {
		if !live[k] {
			delete(l.done, k)
		}
	}
	for k := range l.waiters {
		if !live[k] {
			delete(l.waiters, k)
		}
	}
}

// OnItemReady calls f once when scoring for key has finished, immediately
// if it already has. Unavailable items count as finished. A waiter whose
// key is absent from the next scan is dropped without being called.
func (l *Loop) OnItemReady(key string, f func(Result)) {
	l.mu.Lock()
	res, ok := l.done[key]
	if !ok {
		tox, okT := l.toxicity.Cached(key)
		aro, okA := l.arousal.Cached(key)
		if okT && okA {
			res, ok = Result{Key: key, Toxicity: tox, Arousal: aro, Available: true}, true
		}
	}
	if !ok {
		l.waiters[key] = append(l.waiters[key], f)
	}
	l.mu.Unlock()

	if ok {
		f(res)
	}
}

// Keys returns the resolved keys of the last scan, in document order.
func (l *Loop) Keys() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.keys...)
}

// Lookup returns the cached scores for key.
func (l *Loop) Lookup(key string) (toxicity, arousal float64, okToxicity, okArousal bool) {
	toxicity, okToxicity = l.toxicity.Cached(key)
	arousal, okArousal = l.arousal.Cached(key)
	return
}
