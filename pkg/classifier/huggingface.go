package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const (
	defaultHFBaseURL = "https://api-inference.huggingface.co"
	defaultHFModel   = "unitary/toxic-bert"
)

// HuggingFace calls a hosted text-classification model through the
// inference API.
type HuggingFace struct {
	client  *http.Client
	model   string
	token   string
	baseURL string
}

// NewHuggingFace creates a Hugging Face inference classifier.
func NewHuggingFace(client *http.Client, model, token, baseURL string) *HuggingFace {
	if model == "" {
		model = defaultHFModel
	}
	if baseURL == "" {
		baseURL = defaultHFBaseURL
	}
	return &HuggingFace{
		client:  client,
		model:   model,
		token:   token,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Classify returns every label the model scores for text.
func (h *HuggingFace) Classify(ctx context.Context, text string) ([]Label, error) {
	payload := map[string]any{
		"inputs":     text,
		"parameters": map[string]any{"top_k": nil},
		"options":    map[string]any{"wait_for_model": true},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal huggingface request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/models/"+h.model, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create huggingface request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+h.token)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call huggingface: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp map[string]any
		json.NewDecoder(resp.Body).Decode(&errResp)
		return nil, fmt.Errorf("huggingface status %d: %v", resp.StatusCode, errResp)
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode huggingface response: %w", err)
	}
	return decodeLabels(raw)
}

// decodeLabels accepts both the batched [[...]] and flat [...] shapes.
func decodeLabels(raw json.RawMessage) ([]Label, error) {
	var nested [][]Label
	if err := json.Unmarshal(raw, &nested); err == nil {
		var out []Label
		for _, group := range nested {
			out = append(out, group...)
		}
		return out, nil
	}

	var flat []Label
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, fmt.Errorf("decode labels: %w", err)
	}
	return flat, nil
}
