package document

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

// Loader fetches host pages over HTTP.
type Loader struct {
	client    *http.Client
	parser    *gofeed.Parser
	userAgent string
	selector  string
}

// NewLoader creates a loader. A nil client gets a 30s timeout client.
func NewLoader(client *http.Client, userAgent, selector string) *Loader {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if userAgent == "" {
		userAgent = "feedpulse/1.0"
	}
	return &Loader{
		client:    client,
		parser:    gofeed.NewParser(),
		userAgent: userAgent,
		selector:  selector,
	}
}

// Page fetches an HTML page and parses it as a snapshot located at pageURL.
func (l *Loader) Page(ctx context.Context, pageURL string) (*Snapshot, error) {
	resp, err := l.get(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return Parse(resp.Body, pageURL, l.selector)
}

// Feed fetches an RSS/Atom listing and renders its entries as feed items.
func (l *Loader) Feed(ctx context.Context, feedURL string) (*Snapshot, error) {
	resp, err := l.get(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	parsed, err := l.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feedURL, err)
	}
	return FromFeed(parsed, feedURL)
}

func (l *Loader) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request %s: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", l.userAgent)

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}
	return resp, nil
}

var feedTemplate = template.Must(template.New("feed").Parse(`<html><body>
{{range .}}<shreddit-post id="{{.ID}}" permalink="{{.Link}}" author="{{.Author}}">
<h3>{{.Title}}</h3>
{{if .Published}}<time datetime="{{.Published}}"></time>{{end}}
<div slot="text-body">{{.Body}}</div>
</shreddit-post>
{{end}}</body></html>`))

type feedEntry struct {
	ID        string
	Link      string
	Author    string
	Title     string
	Published string
	Body      string
}

// FromFeed renders parsed feed entries as shreddit-post items so that they
// go through the same identity and extraction paths as scraped pages.
func FromFeed(feed *gofeed.Feed, location string) (*Snapshot, error) {
	entries := make([]feedEntry, 0, len(feed.Items))
	for _, it := range feed.Items {
		link := it.Link
		if link == "" && len(it.Links) > 0 {
			link = it.Links[0]
		}

		e := feedEntry{
			ID:    it.GUID,
			Link:  link,
			Title: it.Title,
			Body:  htmlToText(firstNonEmpty(it.Content, it.Description)),
		}
		if it.Author != nil {
			e.Author = it.Author.Name
		}
		switch {
		case it.PublishedParsed != nil:
			e.Published = it.PublishedParsed.UTC().Format(time.RFC3339)
		case it.UpdatedParsed != nil:
			e.Published = it.UpdatedParsed.UTC().Format(time.RFC3339)
		}
		entries = append(entries, e)
	}

	var buf bytes.Buffer
	if err := feedTemplate.Execute(&buf, entries); err != nil {
		return nil, fmt.Errorf("render feed: %w", err)
	}
	return Parse(&buf, location, DefaultItemSelector)
}

func htmlToText(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return collapse(doc.Text())
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
