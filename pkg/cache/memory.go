package cache

import "sync"

// Memory is the in-process tier. Entries are never evicted.
type Memory struct {
	mu sync.RWMutex
	m  map[string]float64
}

// NewMemory creates an empty memory tier.
func NewMemory() *Memory {
	return &Memory{m: make(map[string]float64)}
}

// Get returns the value for key and whether it was present.
func (c *Memory) Get(key string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.m[key]
	return v, ok
}

// Set stores v under key.
func (c *Memory) Set(key string, v float64) {
	c.mu.Lock()
	c.m[key] = v
	c.mu.Unlock()
}

// Len returns the number of entries.
func (c *Memory) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

// Snapshot returns a copy of all entries.
func (c *Memory) Snapshot() map[string]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]float64, len(c.m))
	for k, v := range c.m {
		out[k] = v
	}
	return out
}
