package classifier

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.0-flash"

// Gemini classifies text with a Gemini model using the same prompt as Chat.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini classifier backed by the Gemini API. client and
// baseURL may be empty to use the SDK defaults.
func NewGemini(ctx context.Context, client *http.Client, model, apiKey, baseURL string) (*Gemini, error) {
	if model == "" {
		model = defaultGeminiModel
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  client,
		HTTPOptions: genai.HTTPOptions{BaseURL: baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{client: gc, model: model}, nil
}

// Classify prompts the model and parses its JSON label list.
func (g *Gemini) Classify(ctx context.Context, text string) ([]Label, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(fmt.Sprintf(labelPrompt, text)), nil)
	if err != nil {
		return nil, fmt.Errorf("call gemini: %w", err)
	}
	return parseLabelReply(resp.Text())
}
