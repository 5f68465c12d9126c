package toxicity

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/elonfeng/feedpulse/pkg/classifier"
)

// ErrUnavailable is returned once the classifier failed to initialize.
var ErrUnavailable = errors.New("classifier unavailable")

// State is the lifecycle of a Lazy classifier.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "uninitialized"
	}
}

// InitFunc constructs the shared classifier.
type InitFunc func(ctx context.Context) (classifier.Classifier, error)

// Lazy holds a classifier that is built on first use. Concurrent first
// callers share one initialization. A failed initialization is permanent.
type Lazy struct {
	init InitFunc

	mu    sync.Mutex
	state State
	c     classifier.Classifier
	err   error
	done  chan struct{}
}

// NewLazy wraps init. A nil init makes the holder permanently unavailable.
func NewLazy(init InitFunc) *Lazy {
	if init == nil {
		init = func(context.Context) (classifier.Classifier, error) {
			return nil, classifier.ErrDisabled
		}
	}
	return &Lazy{init: init}
}

// Ready wraps an already constructed classifier.
func Ready(c classifier.Classifier) *Lazy {
	return &Lazy{state: StateReady, c: c}
}

// State reports the current lifecycle state.
func (l *Lazy) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Get returns the classifier, initializing it if needed. After a failed
// initialization every call returns ErrUnavailable without retrying.
func (l *Lazy) Get(ctx context.Context) (classifier.Classifier, error) {
	l.mu.Lock()
	switch l.state {
	case StateReady:
		c := l.c
		l.mu.Unlock()
		return c, nil
	case StateFailed:
		l.mu.Unlock()
		return nil, ErrUnavailable
	case StateUninitialized:
		l.state = StateInitializing
		l.done = make(chan struct{})
		go l.run(context.WithoutCancel(ctx), l.done)
	}
	done := l.done
	l.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateReady {
		return nil, ErrUnavailable
	}
	return l.c, nil
}

func (l *Lazy) run(ctx context.Context, done chan struct{}) {
	c, err := l.init(ctx)
	if err == nil && c == nil {
		err = errors.New("classifier init returned nil")
	}

	l.mu.Lock()
	if err != nil {
		l.state = StateFailed
		l.err = err
	} else {
		l.state = StateReady
		l.c = c
	}
	l.mu.Unlock()
	close(done)

	if err != nil && !errors.Is(err, classifier.ErrDisabled) {
		slog.Error("toxicity: classifier init failed, using heuristic", "err", err)
	}
}

// Err returns the initialization error, if any.
func (l *Lazy) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}
