package cache

import "time"

const (
	// DefaultStorageKey is the store record holding the persisted tier.
	DefaultStorageKey = "lowScoreConcentrationCache"
	// DefaultTTL is how long a persisted entry stays valid.
	DefaultTTL = 12 * time.Hour
	// DefaultMaxEntries bounds the persisted tier.
	DefaultMaxEntries = 500
)

// Tier names a cache level, used as a metrics label.
type Tier string

const (
	TierMemory    Tier = "memory"
	TierPersisted Tier = "persisted"
)

// Metrics exposes cache-level observability hooks.
// NoopMetrics is used when none is configured.
type Metrics interface {
	Hit(cache string, tier Tier)
	Miss(cache string)
	Flush(cache string, entries int, err error)
}

// Clock provides the current time; tests inject a fake one.
type Clock interface{ Now() time.Time }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads the wall clock.
var SystemClock Clock = systemClock{}

// PersistedOptions configures a Persisted tier. Zero values get defaults.
type PersistedOptions struct {
	// Name labels metrics and log lines.
	Name string

	StorageKey string
	TTL        time.Duration
	MaxEntries int

	Clock   Clock
	Metrics Metrics
}

func (o *PersistedOptions) applyDefaults() {
	if o.Name == "" {
		o.Name = "persisted"
	}
	if o.StorageKey == "" {
		o.StorageKey = DefaultStorageKey
	}
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.MaxEntries <= 0 {
		o.MaxEntries = DefaultMaxEntries
	}
	if o.Clock == nil {
		o.Clock = SystemClock
	}
	if o.Metrics == nil {
		o.Metrics = NoopMetrics{}
	}
}

// NoopMetrics is a Metrics implementation that does nothing.
type NoopMetrics struct{}

func (NoopMetrics) Hit(string, Tier)         {}
func (NoopMetrics) Miss(string)              {}
func (NoopMetrics) Flush(string, int, error) {}

var _ Metrics = NoopMetrics{}
