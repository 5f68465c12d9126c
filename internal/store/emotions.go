package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// EmotionTagsKey is the record holding every emotion tag.
const EmotionTagsKey = "emotionTags"

// Emotions a reader can tag an item with.
var Emotions = []string{"happy", "angry", "sad", "surprised", "love"}

// ValidEmotion reports whether e is one of Emotions.
func ValidEmotion(e string) bool {
	for _, v := range Emotions {
		if v == e {
			return true
		}
	}
	return false
}

// EmotionTags stores the reader's emotion tag per item key in a single
// JSON record.
type EmotionTags struct {
	store Store
	mu    sync.Mutex
}

// NewEmotionTags creates emotion tag storage over s.
func NewEmotionTags(s Store) *EmotionTags {
	return &EmotionTags{store: s}
}

// Save tags key with emotion.
func (e *EmotionTags) Save(ctx context.Context, key, emotion string) error {
	emotion = strings.ToLower(strings.TrimSpace(emotion))
	if !ValidEmotion(emotion) {
		return fmt.Errorf("unknown emotion %q (valid: %s)", emotion, strings.Join(Emotions, ", "))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	tags, err := e.all(ctx)
	if err != nil {
		return err
	}
	tags[key] = emotion

	data, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("encode emotion tags: %w", err)
	}
	if err := e.store.Set(ctx, map[string][]byte{EmotionTagsKey: data}); err != nil {
		return fmt.Errorf("save emotion tags: %w", err)
	}
	return nil
}

// Load returns the emotion for key, or "" when untagged.
func (e *EmotionTags) Load(ctx context.Context, key string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tags, err := e.all(ctx)
	if err != nil {
		return "", err
	}
	return tags[key], nil
}

func (e *EmotionTags) all(ctx context.Context) (map[string]string, error) {
	raw, err := e.store.Get(ctx, EmotionTagsKey)
	if err != nil {
		return nil, fmt.Errorf("load emotion tags: %w", err)
	}

	tags := make(map[string]string)
	if data, ok := raw[EmotionTagsKey]; ok {
		// A corrupt record is treated as empty rather than blocking new tags.
		_ = json.Unmarshal(data, &tags)
		if tags == nil {
			tags = make(map[string]string)
		}
	}
	return tags, nil
}
