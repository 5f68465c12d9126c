package cache

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// Tiered resolves a key through memory, then the optional persisted tier,
// then compute.
type Tiered struct {
	name      string
	memory    *Memory
	persisted *Persisted
	metrics   Metrics

	sf singleflight.Group
}

// NewTiered builds a cache. persisted may be nil for a memory-only cache;
// metrics may be nil.
func NewTiered(name string, memory *Memory, persisted *Persisted, metrics Metrics) *Tiered {
	if memory == nil {
		memory = NewMemory()
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &Tiered{
		name:      name,
		memory:    memory,
		persisted: persisted,
		metrics:   metrics,
	}
}

// Name returns the cache name used in metrics.
func (t *Tiered) Name() string { return t.name }

// Peek reads the memory tier only. It never blocks on I/O.
func (t *Tiered) Peek(key string) (float64, bool) {
	return t.memory.Get(key)
}

// Memory exposes the memory tier.
func (t *Tiered) Memory() *Memory { return t.memory }

// Persisted exposes the persisted tier, or nil.
func (t *Tiered) Persisted() *Persisted { return t.persisted }

// GetOrCompute returns the cached value for key or computes, stores and
// returns it. Concurrent callers missing the same key share one compute.
func (t *Tiered) GetOrCompute(ctx context.Context, key string, compute func(context.Context) float64) float64 {
	if v, ok := t.memory.Get(key); ok {
		t.metrics.Hit(t.name, TierMemory)
		return v
	}

	v, _, _ := t.sf.Do(key, func() (any, error) {
		if v, ok := t.memory.Get(key); ok {
			t.metrics.Hit(t.name, TierMemory)
			return v, nil
		}

		if t.persisted != nil {
			if e, ok := t.persisted.Get(ctx, key); ok {
				t.memory.Set(key, e.Score)
				t.metrics.Hit(t.name, TierPersisted)
				return e.Score, nil
			}
		}

		t.metrics.Miss(t.name)
		v := compute(ctx)
		t.memory.Set(key, v)
		if t.persisted != nil {
			t.persisted.Put(ctx, key, v)
		}
		return v, nil
	})
	return v.(float64)
}
