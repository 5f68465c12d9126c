package reconcile

import "github.com/elonfeng/feedpulse/pkg/document"

// Overlay is the per-item UI injected by the loop.
type Overlay struct {
	ID   string
	Key  string
	Item document.Item
	Text string
}

// Hooks render loop results. Score hooks are only called while the overlay's
// item is still attached. Implementations must be safe for concurrent use.
type Hooks interface {
	// Injected is called once when the overlay is created.
	Injected(o Overlay)
	// Toxicity delivers the item's toxicity score.
	Toxicity(o Overlay, score float64)
	// Arousal delivers the item's arousal score.
	Arousal(o Overlay, score float64)
	// Unavailable is called instead of the score hooks when the item has
	// no text to score.
	Unavailable(o Overlay)
}

// NopHooks ignores every call.
type NopHooks struct{}

func (NopHooks) Injected(Overlay)          {}
func (NopHooks) Toxicity(Overlay, float64) {}
func (NopHooks) Arousal(Overlay, float64)  {}
func (NopHooks) Unavailable(Overlay)       {}

var _ Hooks = NopHooks{}

// multiHooks fans a call out to several Hooks in order.
type multiHooks []Hooks

func (m multiHooks) Injected(o Overlay) {
	for _, h := range m {
		h.Injected(o)
	}
}

func (m multiHooks) Toxicity(o Overlay, score float64) {
	for _, h := range m {
		h.Toxicity(o, score)
	}
}

func (m multiHooks) Arousal(o Overlay, score float64) {
	for _, h := range m {
		h.Arousal(o, score)
	}
}

func (m multiHooks) Unavailable(o Overlay) {
	for _, h := range m {
		h.Unavailable(o)
	}
}
