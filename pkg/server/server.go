// Package server exposes the reconciliation loop's read accessors, emotion
// tags and navigation guard over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/elonfeng/feedpulse/pkg/identity"
	"github.com/elonfeng/feedpulse/pkg/numeric"
	"github.com/elonfeng/feedpulse/pkg/reconcile"
)

// Server provides the HTTP API.
type Server struct {
	loop     *reconcile.Loop
	emotions reconcile.EmotionStore
	gatherer prometheus.Gatherer
	port     int
}

// New creates a new HTTP server. emotions and gatherer may be nil, which
// disables the emotion and metrics endpoints.
func New(loop *reconcile.Loop, emotions reconcile.EmotionStore, gatherer prometheus.Gatherer, port int) *Server {
	if port == 0 {
		port = 8080
	}
	return &Server{
		loop:     loop,
		emotions: emotions,
		gatherer: gatherer,
		port:     port,
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/v1/scores", s.handleScores)
	mux.HandleFunc("/api/v1/items", s.handleItems)
	mux.HandleFunc("/api/v1/scan", s.handleScan)
	mux.HandleFunc("/api/v1/emotions", s.handleEmotions)
	mux.HandleFunc("/api/v1/guard", s.handleGuard)
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server: listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// scoreView is one item's cached scores. Missing scores are null.
type scoreView struct {
	Key           string        `json:"key"`
	Toxicity      *float64      `json:"toxicity"`
	Arousal       *float64      `json:"arousal"`
	ToxicityLevel numeric.Level `json:"toxicity_level,omitempty"`
	ArousalLevel  numeric.Level `json:"arousal_level,omitempty"`
}

func (s *Server) view(key string) scoreView {
	v := scoreView{Key: key}
	tox, aro, okT, okA := s.loop.Lookup(key)
	if okT {
		v.Toxicity = &tox
		v.ToxicityLevel = numeric.LevelOf(tox)
	}
	if okA {
		v.Arousal = &aro
		v.ArousalLevel = numeric.LevelOf(aro)
	}
	return v
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"loop":   s.loop.State().String(),
	})
}

func (s *Server) handleScores(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	key, ok := keyParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.view(key))
}

func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	keys := s.loop.Keys()
	items := make([]scoreView, 0, len(keys))
	for _, k := range keys {
		items = append(items, s.view(k))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  items,
		"count": len(items),
	})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	s.loop.Trigger(context.WithoutCancel(r.Context()))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
}

func (s *Server) handleEmotions(w http.ResponseWriter, r *http.Request) {
	if s.emotions == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "emotion tags disabled"})
		return
	}
	key, ok := keyParam(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		emotion, err := s.emotions.Load(r.Context(), key)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"key": key, "emotion": emotion})
	case http.MethodPut:
		var body struct {
			Emotion string `json:"emotion"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
			return
		}
		if err := s.emotions.Save(r.Context(), key, body.Emotion); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"key": key, "emotion": body.Emotion})
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (s *Server) handleGuard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	key, ok := keyParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.loop.Guard().Intercept(r.Context(), key))
}

// keyParam reads and normalizes the key query parameter.
func keyParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing key"})
		return "", false
	}
	return identity.Normalize(key), true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
