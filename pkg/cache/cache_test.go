package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) add(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

type fakeKV struct {
	mu     sync.Mutex
	data   map[string][]byte
	gets   atomic.Int32
	sets   atomic.Int32
	getErr error
	setErr error
	gate   chan struct{}
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: make(map[string][]byte)}
}

func (f *fakeKV) Get(_ context.Context, keys ...string) (map[string][]byte, error) {
	f.gets.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string][]byte)
	for _, k := range keys {
		if v, ok := f.data[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (f *fakeKV) Set(_ context.Context, values map[string][]byte) error {
	f.sets.Add(1)
	if f.setErr != nil {
		return f.setErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, v := range values {
		f.data[k] = v
	}
	return nil
}

func (f *fakeKV) record(t *testing.T) map[string]Entry {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var out map[string]Entry
	if err := json.Unmarshal(f.data[DefaultStorageKey], &out); err != nil {
		t.Fatalf("decode stored record: %v", err)
	}
	return out
}

func constant(v float64, calls *atomic.Int32) func(context.Context) float64 {
	return func(context.Context) float64 {
		calls.Add(1)
		return v
	}
}

func TestTieredMemoryOnly(t *testing.T) {
	c := NewTiered("toxicity", nil, nil, nil)
	ctx := context.Background()
	var calls atomic.Int32

	if got := c.GetOrCompute(ctx, "k", constant(0.3, &calls)); got != 0.3 {
		t.Fatalf("first = %v, want 0.3", got)
	}
	// Later computes for the same key never run.
	if got := c.GetOrCompute(ctx, "k", constant(0.9, &calls)); got != 0.3 {
		t.Fatalf("second = %v, want memoized 0.3", got)
	}
	if calls.Load() != 1 {
		t.Errorf("compute ran %d times, want 1", calls.Load())
	}
	if v, ok := c.Peek("k"); !ok || v != 0.3 {
		t.Errorf("Peek = %v, %v", v, ok)
	}
	if _, ok := c.Peek("other"); ok {
		t.Error("Peek of unknown key should miss")
	}
}

func TestPersistedPromotion(t *testing.T) {
	clk := newFakeClock()
	kv := newFakeKV()
	kv.data[DefaultStorageKey] = []byte(fmt.Sprintf(`{"k":{"score":0.42,"ts":%d}}`, clk.Now().Add(-time.Hour).UnixMilli()))

	p := NewPersisted(kv, PersistedOptions{Clock: clk})
	c := NewTiered("lowscore", nil, p, nil)
	var calls atomic.Int32

	if got := c.GetOrCompute(context.Background(), "k", constant(0.9, &calls)); got != 0.42 {
		t.Fatalf("got %v, want persisted 0.42", got)
	}
	if calls.Load() != 0 {
		t.Error("fresh persisted entry must not trigger compute")
	}
	if v, ok := c.Peek("k"); !ok || v != 0.42 {
		t.Errorf("persisted hit should be promoted to memory, Peek = %v, %v", v, ok)
	}
	if kv.sets.Load() != 0 {
		t.Error("a persisted hit must not rewrite the record")
	}
}

func TestPersistedStaleEntryRecomputed(t *testing.T) {
	clk := newFakeClock()
	kv := newFakeKV()
	kv.data[DefaultStorageKey] = []byte(fmt.Sprintf(`{"k":{"score":0.42,"ts":%d}}`, clk.Now().Add(-13*time.Hour).UnixMilli()))

	p := NewPersisted(kv, PersistedOptions{Clock: clk})
	c := NewTiered("lowscore", nil, p, nil)
	var calls atomic.Int32

	if got := c.GetOrCompute(context.Background(), "k", constant(0.7, &calls)); got != 0.7 {
		t.Fatalf("got %v, want recomputed 0.7", got)
	}
	rec := kv.record(t)
	if rec["k"].Score != 0.7 || rec["k"].TS != clk.Now().UnixMilli() {
		t.Errorf("stored entry = %+v", rec["k"])
	}
}

func TestPersistedEntryExpiresWhileMirrored(t *testing.T) {
	clk := newFakeClock()
	kv := newFakeKV()
	p := NewPersisted(kv, PersistedOptions{Clock: clk})
	ctx := context.Background()

	p.Put(ctx, "k", 0.5)
	if _, ok := p.Get(ctx, "k"); !ok {
		t.Fatal("fresh entry should be served")
	}
	clk.add(12*time.Hour + time.Millisecond)
	if _, ok := p.Get(ctx, "k"); ok {
		t.Error("entry older than TTL must not be served")
	}
}

func TestLoadSharedByConcurrentCallers(t *testing.T) {
	kv := newFakeKV()
	kv.gate = make(chan struct{})
	p := NewPersisted(kv, PersistedOptions{})

	var g errgroup.Group
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			_, _ = p.Get(context.Background(), fmt.Sprintf("k%d", i))
			return nil
		})
	}
	time.Sleep(20 * time.Millisecond)
	close(kv.gate)
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	if n := kv.gets.Load(); n != 1 {
		t.Errorf("store read %d times, want 1", n)
	}
}

func TestLoadFailureIsNotRetried(t *testing.T) {
	kv := newFakeKV()
	kv.getErr = errors.New("storage unavailable")
	p := NewPersisted(kv, PersistedOptions{})
	c := NewTiered("lowscore", nil, p, nil)
	ctx := context.Background()
	var calls atomic.Int32

	if got := c.GetOrCompute(ctx, "a", constant(0.1, &calls)); got != 0.1 {
		t.Fatalf("got %v", got)
	}
	if got := c.GetOrCompute(ctx, "b", constant(0.2, &calls)); got != 0.2 {
		t.Fatalf("got %v", got)
	}
	if n := kv.gets.Load(); n != 1 {
		t.Errorf("failed load retried: %d reads", n)
	}
	if calls.Load() != 2 {
		t.Errorf("compute calls = %d, want 2", calls.Load())
	}
}

func TestLoadCancelledCallerStopsWaiting(t *testing.T) {
	kv := newFakeKV()
	kv.gate = make(chan struct{})
	p := NewPersisted(kv, PersistedOptions{})

	go func() { _ = p.Load(context.Background()) }()
	for kv.gets.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Load(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Load with cancelled ctx = %v, want context.Canceled", err)
	}
	close(kv.gate)
	if err := p.Load(context.Background()); err != nil {
		t.Errorf("Load after completion = %v", err)
	}
}

func TestLoadedTierServesCancelledCaller(t *testing.T) {
	clk := newFakeClock()
	kv := newFakeKV()
	kv.data[DefaultStorageKey] = []byte(fmt.Sprintf(`{"k":{"score":0.42,"ts":%d}}`, clk.Now().UnixMilli()))
	p := NewPersisted(kv, PersistedOptions{Clock: clk})
	if err := p.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// Repeat so a random select choice would show up.
	for i := 0; i < 100; i++ {
		if err := p.Load(ctx); err != nil {
			t.Fatalf("Load after completion with cancelled ctx = %v", err)
		}
		if e, ok := p.Get(ctx, "k"); !ok || e.Score != 0.42 {
			t.Fatalf("Get = %+v, %v", e, ok)
		}
	}
}

func TestMalformedEntriesDropped(t *testing.T) {
	clk := newFakeClock()
	now := clk.Now().UnixMilli()
	kv := newFakeKV()
	kv.data[DefaultStorageKey] = []byte(fmt.Sprintf(`{
		"good": {"score": 0.5, "ts": %d},
		"string-score": {"score": "x", "ts": %d},
		"no-ts": {"score": 0.2},
		"null": null,
		"number": 7
	}`, now, now))

	p := NewPersisted(kv, PersistedOptions{Clock: clk})
	if err := p.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	entries := p.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected only the well-formed entry, got %v", entries)
	}
	if entries["good"].Score != 0.5 {
		t.Errorf("good = %+v", entries["good"])
	}
}

func TestCorruptRecordStartsEmpty(t *testing.T) {
	for _, raw := range []string{`[1,2,3]`, `not json`, `null`} {
		kv := newFakeKV()
		kv.data[DefaultStorageKey] = []byte(raw)
		p := NewPersisted(kv, PersistedOptions{})
		if err := p.Load(context.Background()); err != nil {
			t.Fatalf("load %q: %v", raw, err)
		}
		if p.Len() != 0 {
			t.Errorf("record %q: expected empty tier, got %d entries", raw, p.Len())
		}
	}
}

func TestWriteRetainsMostRecentMaxEntries(t *testing.T) {
	clk := newFakeClock()
	kv := newFakeKV()
	p := NewPersisted(kv, PersistedOptions{Clock: clk})
	ctx := context.Background()

	for i := 0; i < DefaultMaxEntries+10; i++ {
		p.Put(ctx, fmt.Sprintf("k%03d", i), 0.1)
		clk.add(time.Second)
	}

	rec := kv.record(t)
	if len(rec) != DefaultMaxEntries {
		t.Fatalf("stored %d entries, want %d", len(rec), DefaultMaxEntries)
	}
	for i := 0; i < 10; i++ {
		if _, ok := rec[fmt.Sprintf("k%03d", i)]; ok {
			t.Errorf("oldest entry k%03d should have been evicted", i)
		}
	}
	if _, ok := rec[fmt.Sprintf("k%03d", DefaultMaxEntries+9)]; !ok {
		t.Error("newest entry missing")
	}
	if p.Len() != DefaultMaxEntries {
		t.Errorf("mirror holds %d entries, want %d", p.Len(), DefaultMaxEntries)
	}
}

func TestWriteDropsExpiredEntries(t *testing.T) {
	clk := newFakeClock()
	kv := newFakeKV()
	p := NewPersisted(kv, PersistedOptions{Clock: clk})
	ctx := context.Background()

	p.Put(ctx, "old", 0.3)
	clk.add(13 * time.Hour)
	p.Put(ctx, "new", 0.4)

	rec := kv.record(t)
	if _, ok := rec["old"]; ok {
		t.Error("entry older than TTL retained on write")
	}
	if rec["new"].Score != 0.4 {
		t.Errorf("new = %+v", rec["new"])
	}
	for k, e := range rec {
		if clk.Now().Sub(e.ComputedAt()) > DefaultTTL {
			t.Errorf("retained stale entry %s", k)
		}
	}
}

func TestPruneCountsDropped(t *testing.T) {
	clk := newFakeClock()
	kv := newFakeKV()
	p := NewPersisted(kv, PersistedOptions{Clock: clk, TTL: time.Hour})
	ctx := context.Background()

	p.Put(ctx, "a", 0.1)
	p.Put(ctx, "b", 0.2)
	clk.add(2 * time.Hour)

	dropped, err := p.Prune(ctx)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if dropped != 2 {
		t.Errorf("dropped = %d, want 2", dropped)
	}
	if len(kv.record(t)) != 0 {
		t.Error("record should be empty after prune")
	}
}

func TestFlushFailureKeepsValue(t *testing.T) {
	kv := newFakeKV()
	kv.setErr = errors.New("quota exceeded")
	p := NewPersisted(kv, PersistedOptions{})
	c := NewTiered("lowscore", nil, p, nil)
	ctx := context.Background()
	var calls atomic.Int32

	if got := c.GetOrCompute(ctx, "k", constant(0.6, &calls)); got != 0.6 {
		t.Fatalf("got %v", got)
	}
	if got := c.GetOrCompute(ctx, "k", constant(0.1, &calls)); got != 0.6 {
		t.Fatalf("got %v, want memoized 0.6", got)
	}
	if _, ok := p.Get(ctx, "k"); !ok {
		t.Error("mirror should keep the value when the flush fails")
	}
}

func TestConcurrentMissesComputeOnce(t *testing.T) {
	c := NewTiered("arousal", nil, NewPersisted(newFakeKV(), PersistedOptions{}), nil)
	gate := make(chan struct{})
	var calls atomic.Int32
	compute := func(context.Context) float64 {
		calls.Add(1)
		<-gate
		return 0.8
	}

	var g errgroup.Group
	results := make([]float64, 10)
	for i := range results {
		g.Go(func() error {
			results[i] = c.GetOrCompute(context.Background(), "k", compute)
			return nil
		})
	}
	time.Sleep(20 * time.Millisecond)
	close(gate)
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	if calls.Load() != 1 {
		t.Errorf("compute ran %d times, want 1", calls.Load())
	}
	for i, r := range results {
		if r != 0.8 {
			t.Errorf("result[%d] = %v, want 0.8", i, r)
		}
	}
}

type countingMetrics struct {
	mu      sync.Mutex
	hits    map[Tier]int
	misses  int
	flushes int
}

func (m *countingMetrics) Hit(_ string, tier Tier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hits == nil {
		m.hits = make(map[Tier]int)
	}
	m.hits[tier]++
}

func (m *countingMetrics) Miss(string) {
	m.mu.Lock()
	m.misses++
	m.mu.Unlock()
}

func (m *countingMetrics) Flush(string, int, error) {
	m.mu.Lock()
	m.flushes++
	m.mu.Unlock()
}

func TestMetricsHooks(t *testing.T) {
	m := &countingMetrics{}
	p := NewPersisted(newFakeKV(), PersistedOptions{Metrics: m})
	c := NewTiered("lowscore", nil, p, m)
	ctx := context.Background()
	var calls atomic.Int32

	c.GetOrCompute(ctx, "k", constant(0.5, &calls))
	c.GetOrCompute(ctx, "k", constant(0.5, &calls))

	// A second process sharing the store sees a persisted hit.
	other := NewTiered("lowscore", nil, NewPersisted(p.kv, PersistedOptions{Metrics: m}), m)
	other.GetOrCompute(ctx, "k", constant(0.5, &calls))

	if m.misses != 1 || m.flushes != 1 {
		t.Errorf("misses = %d, flushes = %d, want 1 and 1", m.misses, m.flushes)
	}
	if m.hits[TierMemory] != 1 || m.hits[TierPersisted] != 1 {
		t.Errorf("hits = %v", m.hits)
	}
}
