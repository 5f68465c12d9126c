package prom

import (
	"github.com/elonfeng/feedpulse/pkg/cache"
	"github.com/prometheus/client_golang/prometheus"
)

// Adapter implements cache.Metrics and exports Prometheus counters/gauges.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	hits    *prometheus.CounterVec
	misses  *prometheus.CounterVec
	flushes *prometheus.CounterVec
	entries *prometheus.GaugeVec
}

// New constructs a Prometheus metrics adapter.
//   - reg: registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns:  Prometheus namespace
func New(reg prometheus.Registerer, ns string) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &Adapter{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Cache hits by cache and tier",
		}, []string{"cache", "tier"}),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Cache misses that led to a computation",
		}, []string{"cache"}),
		flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "cache",
			Name:      "flushes_total",
			Help:      "Persisted tier rewrites by result",
		}, []string{"cache", "result"}),
		entries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: "cache",
			Name:      "persisted_entries",
			Help:      "Entries retained in the persisted tier after the last rewrite",
		}, []string{"cache"}),
	}
	reg.MustRegister(a.hits, a.misses, a.flushes, a.entries)
	return a
}

// Hit increments the hit counter for the tier that answered.
func (a *Adapter) Hit(name string, tier cache.Tier) {
	a.hits.WithLabelValues(name, string(tier)).Inc()
}

// Miss increments the miss counter.
func (a *Adapter) Miss(name string) {
	a.misses.WithLabelValues(name).Inc()
}

// Flush records a persisted rewrite and the retained entry count.
func (a *Adapter) Flush(name string, entries int, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	a.flushes.WithLabelValues(name, result).Inc()
	a.entries.WithLabelValues(name).Set(float64(entries))
}

// Compile-time check: ensure Adapter implements cache.Metrics.
var _ cache.Metrics = (*Adapter)(nil)
