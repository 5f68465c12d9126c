package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHuggingFaceClassify(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"nested", `[[{"label":"toxic","score":0.91},{"label":"insult","score":0.4}]]`, 2},
		{"flat", `[{"label":"toxic","score":0.2}]`, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/models/unitary/toxic-bert" {
					t.Errorf("path = %s", r.URL.Path)
				}
				if got := r.Header.Get("Authorization"); got != "Bearer hf_token" {
					t.Errorf("Authorization = %q", got)
				}
				var req struct {
					Inputs string `json:"inputs"`
				}
				json.NewDecoder(r.Body).Decode(&req)
				if req.Inputs != "you are an idiot" {
					t.Errorf("inputs = %q", req.Inputs)
				}
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			h := NewHuggingFace(srv.Client(), "", "hf_token", srv.URL)
			labels, err := h.Classify(context.Background(), "you are an idiot")
			if err != nil {
				t.Fatalf("classify: %v", err)
			}
			if len(labels) != tt.want {
				t.Fatalf("got %d labels, want %d: %+v", len(labels), tt.want, labels)
			}
			if labels[0].Label != "toxic" {
				t.Errorf("first label = %+v", labels[0])
			}
		})
	}
}

func TestHuggingFaceErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"model loading"}`))
	}))
	defer srv.Close()

	h := NewHuggingFace(srv.Client(), "", "t", srv.URL)
	if _, err := h.Classify(context.Background(), "x"); err == nil {
		t.Fatal("expected error on 503")
	}
}

func TestChatOpenAI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"[{\"label\":\"threat\",\"score\":0.7}]"}}]}`))
	}))
	defer srv.Close()

	c := NewChat(srv.Client(), ProviderOpenAI, "", "k", srv.URL)
	labels, err := c.Classify(context.Background(), "text")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if len(labels) != 1 || labels[0].Label != "threat" || labels[0].Score != 0.7 {
		t.Errorf("labels = %+v", labels)
	}
}

func TestChatAnthropic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "k" {
			t.Errorf("missing api key header")
		}
		w.Write([]byte("{\"content\":[{\"text\":\"```json\\n[{\\\"label\\\":\\\"obscene\\\",\\\"score\\\":0.3}]\\n```\"}]}"))
	}))
	defer srv.Close()

	c := NewChat(srv.Client(), ProviderAnthropic, "", "k", srv.URL)
	labels, err := c.Classify(context.Background(), "text")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if len(labels) != 1 || labels[0].Label != "obscene" {
		t.Errorf("labels = %+v", labels)
	}
}

func TestGeminiClassify(t *testing.T) {
	reply := "```json\n[{\"label\":\"toxic\",\"score\":0.83},{\"label\":\"threat\",\"score\":0.1}]\n```"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/gemini-test:generateContent") {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("x-goog-api-key"); got != "g-key" {
			t.Errorf("api key header = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), "you are an idiot") {
			t.Errorf("prompt missing text: %s", body)
		}
		resp := map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"role":  "model",
					"parts": []map[string]any{{"text": reply}},
				},
			}},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	g, err := NewGemini(context.Background(), srv.Client(), "gemini-test", "g-key", srv.URL+"/")
	if err != nil {
		t.Fatalf("NewGemini: %v", err)
	}
	labels, err := g.Classify(context.Background(), "you are an idiot")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if len(labels) != 2 || labels[0].Label != "toxic" || labels[0].Score != 0.83 {
		t.Errorf("labels = %+v", labels)
	}
}

func TestGeminiErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"code":429,"message":"quota","status":"RESOURCE_EXHAUSTED"}}`))
	}))
	defer srv.Close()

	g, err := NewGemini(context.Background(), srv.Client(), "gemini-test", "g-key", srv.URL+"/")
	if err != nil {
		t.Fatalf("NewGemini: %v", err)
	}
	if _, err := g.Classify(context.Background(), "x"); err == nil {
		t.Fatal("expected error on 429")
	}
}

func TestParseLabelReply(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"bare", `[{"label":"toxic","score":0.5}]`, 1},
		{"fenced", "```json\n[{\"label\":\"toxic\",\"score\":0.5},{\"label\":\"insult\",\"score\":0.2}]\n```", 2},
		{"fenced no language", "```\n[]\n```", 0},
		{"padded", "  \n[{\"label\":\"hate\",\"score\":0.9}]\n", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			labels, err := parseLabelReply(tt.raw)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if len(labels) != tt.want {
				t.Errorf("got %d labels, want %d", len(labels), tt.want)
			}
		})
	}
}

func TestParseLabelReplyRejectsProse(t *testing.T) {
	if _, err := parseLabelReply("I think this post is fine."); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	if _, err := New(ctx, Options{}); !errors.Is(err, ErrDisabled) {
		t.Errorf("disabled: err = %v", err)
	}
	if _, err := New(ctx, Options{Enabled: true, Provider: ProviderOpenAI}); err == nil {
		t.Error("missing api key should fail")
	}
	if _, err := New(ctx, Options{Enabled: true, Provider: "bogus", APIKey: "k"}); err == nil {
		t.Error("unknown provider should fail")
	}

	c, err := New(ctx, Options{Enabled: true, APIKey: "k"})
	if err != nil {
		t.Fatalf("default provider: %v", err)
	}
	if _, ok := c.(*HuggingFace); !ok {
		t.Errorf("default provider = %T, want *HuggingFace", c)
	}
	c, err = New(ctx, Options{Enabled: true, Provider: "Anthropic", APIKey: "k"})
	if err != nil {
		t.Fatal(err)
	}
	if ch, ok := c.(*Chat); !ok || ch.provider != ProviderAnthropic {
		t.Errorf("anthropic provider = %#v", c)
	}
	c, err = New(ctx, Options{Enabled: true, Provider: ProviderGemini, APIKey: "k"})
	if err != nil {
		t.Fatal(err)
	}
	if g, ok := c.(*Gemini); !ok || g.model != defaultGeminiModel {
		t.Errorf("gemini provider = %#v", c)
	}
}
