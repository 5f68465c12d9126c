package arousal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// CommentSource fetches the comment listing of the item identified by key.
type CommentSource interface {
	Comments(ctx context.Context, key string) ([]Thing, error)
}

// maxPayload bounds how much of a comment listing response is read.
const maxPayload = 8 << 20

// HTTPFetcher fetches "<key>.json?limit=15&depth=1&raw_json=1" listings.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	cookie    string
}

// NewHTTPFetcher creates a fetcher. cookie is sent as-is when non-empty,
// for sessions that need a logged-in view.
func NewHTTPFetcher(client *http.Client, userAgent, cookie string) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if userAgent == "" {
		userAgent = "feedpulse/1.0"
	}
	return &HTTPFetcher{client: client, userAgent: userAgent, cookie: cookie}
}

// ListingURL returns the comment listing endpoint for key.
func ListingURL(key string) string {
	return key + ".json?limit=15&depth=1&raw_json=1"
}

// Comments fetches and decodes the top-level comment listing for key.
func (f *HTTPFetcher) Comments(ctx context.Context, key string) ([]Thing, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ListingURL(key), nil)
	if err != nil {
		return nil, fmt.Errorf("create comments request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/json")
	if f.cookie != "" {
		req.Header.Set("Cookie", f.cookie)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch comments: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("comments status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPayload))
	if err != nil {
		return nil, fmt.Errorf("read comments: %w", err)
	}
	return DecodeCommentListing(data)
}
