// Package classifier provides text-classification backends that return
// (label, confidence) pairs for a piece of text.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Label is one classification output.
type Label struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Classifier labels text.
type Classifier interface {
	Classify(ctx context.Context, text string) ([]Label, error)
}

// ErrDisabled is returned by New when classification is turned off.
var ErrDisabled = errors.New("classifier disabled")

// Provider names.
const (
	ProviderHuggingFace = "huggingface"
	ProviderOpenAI      = "openai"
	ProviderAnthropic   = "anthropic"
	ProviderGemini      = "gemini"
)

// Options selects and configures a provider.
type Options struct {
	Enabled  bool
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration

	// HTTPClient overrides the client used by HTTP providers.
	HTTPClient *http.Client
}

// New builds the configured classifier. It performs no network I/O except
// for providers whose client constructor does.
func New(ctx context.Context, opt Options) (Classifier, error) {
	if !opt.Enabled {
		return nil, ErrDisabled
	}
	if opt.APIKey == "" {
		return nil, fmt.Errorf("create %s classifier: missing api key", opt.Provider)
	}
	if opt.Timeout <= 0 {
		opt.Timeout = 30 * time.Second
	}
	client := opt.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opt.Timeout}
	}

	switch strings.ToLower(opt.Provider) {
	case "", ProviderHuggingFace:
		return NewHuggingFace(client, opt.Model, opt.APIKey, opt.BaseURL), nil
	case ProviderOpenAI, ProviderAnthropic:
		return NewChat(client, strings.ToLower(opt.Provider), opt.Model, opt.APIKey, opt.BaseURL), nil
	case ProviderGemini:
		return NewGemini(ctx, client, opt.Model, opt.APIKey, opt.BaseURL)
	default:
		return nil, fmt.Errorf("create classifier: unknown provider %q", opt.Provider)
	}
}
