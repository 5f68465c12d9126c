package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"
)

// KV is the durable key-value capability backing the persisted tier.
type KV interface {
	Get(ctx context.Context, keys ...string) (map[string][]byte, error)
	Set(ctx context.Context, values map[string][]byte) error
}

// Entry is one persisted score. TS is the computation time in epoch
// milliseconds.
type Entry struct {
	Score float64 `json:"score"`
	TS    int64   `json:"ts"`
}

// ComputedAt returns TS as a time.
func (e Entry) ComputedAt() time.Time {
	return time.UnixMilli(e.TS)
}

// Persisted is the durable, TTL- and size-bounded tier.
type Persisted struct {
	kv  KV
	opt PersistedOptions

	mu      sync.Mutex
	entries map[string]Entry
	load    *loadCall

	// flushMu orders rewrites so the last mutation is the last one stored.
	flushMu sync.Mutex
}

type loadCall struct {
	done chan struct{}
}

// NewPersisted creates a persisted tier over kv. Nothing is read until the
// first access.
func NewPersisted(kv KV, opt PersistedOptions) *Persisted {
	opt.applyDefaults()
	return &Persisted{
		kv:      kv,
		opt:     opt,
		entries: make(map[string]Entry),
	}
}

// TTL returns the configured entry lifetime.
func (p *Persisted) TTL() time.Duration { return p.opt.TTL }

// MaxEntries returns the configured size bound.
func (p *Persisted) MaxEntries() int { return p.opt.MaxEntries }

// Load reads the durable record once. Every caller, concurrent or later,
// shares the first load; only ctx cancellation makes a caller stop waiting.
// A failed or corrupt load leaves the tier empty and is not retried.
func (p *Persisted) Load(ctx context.Context) error {
	p.mu.Lock()
	c := p.load
	leader := c == nil
	if leader {
		c = &loadCall{done: make(chan struct{})}
		p.load = c
	}
	p.mu.Unlock()

	if leader {
		p.loadRecord(context.WithoutCancel(ctx))
		close(c.done)
	}

	// A finished load wins over a cancelled caller.
	select {
	case <-c.done:
		return nil
	default:
	}
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Persisted) loadRecord(ctx context.Context) {
	raw, err := p.kv.Get(ctx, p.opt.StorageKey)
	if err != nil {
		slog.Warn("cache: load failed, starting empty", "cache", p.opt.Name, "err", err)
		return
	}
	data, ok := raw[p.opt.StorageKey]
	if !ok {
		return
	}

	loaded := decodeEntries(data)
	if loaded == nil {
		slog.Warn("cache: persisted record is not an object, ignoring", "cache", p.opt.Name)
		return
	}

	now := p.opt.Clock.Now()
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, e := range loaded {
		if p.expired(e, now) {
			continue
		}
		p.entries[k] = e
	}
	slog.Debug("cache: loaded", "cache", p.opt.Name, "entries", len(p.entries))
}

// decodeEntries parses the record, silently dropping entries of the wrong
// shape. It returns nil when the record itself is unusable.
func decodeEntries(data []byte) map[string]Entry {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		return nil
	}

	out := make(map[string]Entry, len(raw))
	for k, msg := range raw {
		var e struct {
			Score *float64 `json:"score"`
			TS    *float64 `json:"ts"`
		}
		if err := json.Unmarshal(msg, &e); err != nil {
			continue
		}
		if e.Score == nil || e.TS == nil || !finite(*e.Score) || !finite(*e.TS) {
			continue
		}
		out[k] = Entry{Score: *e.Score, TS: int64(*e.TS)}
	}
	return out
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func (p *Persisted) expired(e Entry, now time.Time) bool {
	return now.Sub(e.ComputedAt()) > p.opt.TTL
}

// Get returns the entry for key if it exists and is within TTL.
func (p *Persisted) Get(ctx context.Context, key string) (Entry, bool) {
	if err := p.Load(ctx); err != nil {
		return Entry{}, false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[key]
	if !ok || p.expired(e, p.opt.Clock.Now()) {
		return Entry{}, false
	}
	return e, true
}

// Put records score for key, re-applies the retention policy and rewrites
// the durable record. Flush failures are logged; the in-process mirror keeps
// the new value either way.
func (p *Persisted) Put(ctx context.Context, key string, score float64) {
	if err := p.Load(ctx); err != nil {
		return
	}

	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	p.mu.Lock()
	now := p.opt.Clock.Now()
	p.entries[key] = Entry{Score: score, TS: now.UnixMilli()}
	p.entries = p.retain(now)
	data, err := json.Marshal(p.entries)
	n := len(p.entries)
	p.mu.Unlock()

	if err == nil {
		err = p.kv.Set(ctx, map[string][]byte{p.opt.StorageKey: data})
	}
	if err != nil {
		err = fmt.Errorf("flush %s: %w", p.opt.StorageKey, err)
		slog.Warn("cache: flush failed", "cache", p.opt.Name, "err", err)
	}
	p.opt.Metrics.Flush(p.opt.Name, n, err)
}

// Prune re-applies the retention policy and rewrites the record without
// adding an entry. It returns how many entries were dropped.
func (p *Persisted) Prune(ctx context.Context) (int, error) {
	if err := p.Load(ctx); err != nil {
		return 0, err
	}

	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	p.mu.Lock()
	before := len(p.entries)
	p.entries = p.retain(p.opt.Clock.Now())
	data, err := json.Marshal(p.entries)
	n := len(p.entries)
	p.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", p.opt.StorageKey, err)
	}

	if err := p.kv.Set(ctx, map[string][]byte{p.opt.StorageKey: data}); err != nil {
		p.opt.Metrics.Flush(p.opt.Name, n, err)
		return 0, fmt.Errorf("flush %s: %w", p.opt.StorageKey, err)
	}
	p.opt.Metrics.Flush(p.opt.Name, n, nil)
	return before - n, nil
}

// retain returns the entries allowed to stay: within TTL, at most
// MaxEntries, most recent first. Callers hold p.mu.
func (p *Persisted) retain(now time.Time) map[string]Entry {
	type ranked struct {
		key string
		e   Entry
	}
	list := make([]ranked, 0, len(p.entries))
	for k, e := range p.entries {
		if p.expired(e, now) {
			continue
		}
		list = append(list, ranked{k, e})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].e.TS != list[j].e.TS {
			return list[i].e.TS > list[j].e.TS
		}
		return list[i].key < list[j].key
	})
	if len(list) > p.opt.MaxEntries {
		list = list[:p.opt.MaxEntries]
	}

	out := make(map[string]Entry, len(list))
	for _, item := range list {
		out[item.key] = item.e
	}
	return out
}

// Len returns the number of mirrored entries.
func (p *Persisted) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Entries returns a copy of the mirrored entries.
func (p *Persisted) Entries() map[string]Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]Entry, len(p.entries))
	for k, e := range p.entries {
		out[k] = e
	}
	return out
}
