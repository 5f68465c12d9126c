// Package identity derives a stable key for a feed item from whatever
// attribution the host page happens to render.
package identity

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/elonfeng/feedpulse/pkg/document"
)

const commentsSegment = "/comments/"

// PermalinkSelector finds a comment-thread link inside an item.
const PermalinkSelector = `a[href*="/comments/"]`

// PermalinkAttrs are the item attributes that may carry a permalink, in
// priority order.
var PermalinkAttrs = []string{
	"permalink",
	"post-permalink",
	"content-href",
	"url",
	"href",
	"data-permalink",
}

// IDAttrs are the item attributes that may carry the post's own id.
var IDAttrs = []string{
	"id",
	"post-id",
	"thingid",
	"data-fullname",
	"fullname",
}

var locationToken = regexp.MustCompile(`(?i)/comments/([a-z0-9]+)/`)

// Extractor derives a key from an item, or returns "" to defer to the next
// extractor. Extractors never fail.
type Extractor func(doc document.Document, item document.Item) string

// Resolver tries its extractors in order; the first non-empty key wins.
type Resolver struct {
	extractors []Extractor
}

// NewResolver returns a resolver with the default extractor chain.
func NewResolver() *Resolver {
	return &Resolver{extractors: []Extractor{
		FromPermalinkLink,
		FromPermalinkAttrs,
		FromLocationToken,
		FromSoleItem,
	}}
}

// NewResolverWith builds a resolver over a custom extractor chain.
func NewResolverWith(extractors ...Extractor) *Resolver {
	return &Resolver{extractors: extractors}
}

// Resolve returns the item key, or "" when the item cannot be attributed.
// Callers must skip unresolvable items entirely.
func (r *Resolver) Resolve(doc document.Document, item document.Item) string {
	for _, extract := range r.extractors {
		if key := extract(doc, item); key != "" {
			return key
		}
	}
	return ""
}

// FromPermalinkLink uses the first comment-thread link inside the item,
// resolved against the page location.
func FromPermalinkLink(doc document.Document, item document.Item) string {
	href := item.SelectAttr(PermalinkSelector, "href")
	if href == "" {
		return ""
	}
	abs, ok := resolveRef(doc.Location(), href, false)
	if !ok {
		return ""
	}
	return Normalize(abs)
}

// FromPermalinkAttrs scans PermalinkAttrs and accepts the first value that
// resolves, against the page origin, to a comment-thread URL.
func FromPermalinkAttrs(doc document.Document, item document.Item) string {
	loc := doc.Location()
	for _, name := range PermalinkAttrs {
		raw := item.Attr(name)
		if raw == "" {
			continue
		}
		abs, ok := resolveRef(loc, raw, true)
		if !ok {
			continue
		}
		if strings.Contains(abs, commentsSegment) {
			return Normalize(abs)
		}
	}
	return ""
}

// FromLocationToken matches the post id in a comment-page location against
// the item's own id attributes.
func FromLocationToken(doc document.Document, item document.Item) string {
	loc := doc.Location()
	if loc == nil {
		return ""
	}
	m := locationToken.FindStringSubmatch(loc.Path)
	if m == nil {
		return ""
	}
	token := strings.ToLower(m[1])

	for _, name := range IDAttrs {
		v := strings.ToLower(item.Attr(name))
		if v != "" && strings.Contains(v, token) {
			return Normalize(loc.String())
		}
	}
	return ""
}

// FromSoleItem attributes the page location to the only item on a
// comment page.
func FromSoleItem(doc document.Document, item document.Item) string {
	loc := doc.Location()
	if loc == nil || !locationToken.MatchString(loc.Path) {
		return ""
	}
	if len(doc.Items()) != 1 {
		return ""
	}
	return Normalize(loc.String())
}

// resolveRef resolves raw against base, or against base's origin when
// originOnly is set. Relative refs without a base are rejected.
func resolveRef(base *url.URL, raw string, originOnly bool) (string, bool) {
	ref, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	if ref.IsAbs() {
		return ref.String(), ref.Host != ""
	}
	if base == nil || base.Host == "" {
		return "", false
	}
	b := base
	if originOnly {
		b = &url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/"}
	}
	return b.ResolveReference(ref).String(), true
}

// Normalize strips query and fragment, drops trailing slashes from the path
// and appends exactly one. Input that is not an absolute URL is returned
// unchanged. Normalize is idempotent.
func Normalize(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	if (scheme == "https" && strings.HasSuffix(host, ":443")) ||
		(scheme == "http" && strings.HasSuffix(host, ":80")) {
		host = host[:strings.LastIndex(host, ":")]
	}

	path := strings.TrimRight(u.EscapedPath(), "/")
	return scheme + "://" + host + path + "/"
}
