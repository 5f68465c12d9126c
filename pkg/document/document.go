// Package document is the host-page side of feedpulse: it models the feed as
// a set of live item handles that can be re-read at any time, marked by the
// reconciliation loop, and detached when the host replaces the page.
//
// Items are backed by goquery selections over a parsed HTML snapshot. A Live
// page holds the current snapshot; Replace detaches every item of the old one,
// which is how node recreation by the host is modelled.
package document

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// DefaultItemSelector matches one feed entry on the host page.
const DefaultItemSelector = "shreddit-post"

// Item is a handle to one feed entry at a point in time. Every accessor
// re-reads the underlying node.
type Item interface {
	// Attr returns the named attribute or "" when absent.
	Attr(name string) string
	// Text returns the whole text content of the item.
	Text() string
	// SelectText returns the text of every descendant matching selector,
	// in document order.
	SelectText(selector string) []string
	// SelectAttr returns attr of the first descendant matching selector.
	SelectAttr(selector, attr string) string
	// Attached reports whether the item still belongs to the live page.
	Attached() bool
	// Marked reports whether marker was set on this node.
	Marked(marker string) bool
	// Mark sets marker on this node. Marks die with the node.
	Mark(marker string)
}

// Document enumerates the content items currently on the host page.
type Document interface {
	// Location is the URL the page was loaded from. It may be nil.
	Location() *url.URL
	// Items returns the current items in document order.
	Items() []Item
}

// Snapshot is one parsed rendition of the host page.
type Snapshot struct {
	doc      *goquery.Document
	location *url.URL
	selector string
	detached atomic.Bool

	mu    sync.Mutex
	marks map[*html.Node]map[string]struct{}
}

// Parse reads an HTML page loaded from location. Items are the elements
// matching selector (DefaultItemSelector when empty).
func Parse(r io.Reader, location, selector string) (*Snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var loc *url.URL
	if location != "" {
		loc, err = url.Parse(location)
		if err != nil {
			return nil, fmt.Errorf("parse location %q: %w", location, err)
		}
	}

	if strings.TrimSpace(selector) == "" {
		selector = DefaultItemSelector
	}

	return &Snapshot{
		doc:      doc,
		location: loc,
		selector: selector,
		marks:    make(map[*html.Node]map[string]struct{}),
	}, nil
}

// ParseFile parses an HTML snapshot stored on disk.
func ParseFile(path, location, selector string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f, location, selector)
}

// Location returns a copy of the page URL.
func (s *Snapshot) Location() *url.URL {
	if s.location == nil {
		return nil
	}
	u := *s.location
	return &u
}

// Items returns the matching elements in document order.
func (s *Snapshot) Items() []Item {
	var items []Item
	s.doc.Find(s.selector).Each(func(_ int, sel *goquery.Selection) {
		items = append(items, &node{snap: s, sel: sel})
	})
	return items
}

// Detach marks every item of this snapshot as no longer attached.
func (s *Snapshot) Detach() {
	s.detached.Store(true)
}

type node struct {
	snap *Snapshot
	sel  *goquery.Selection
}

func (n *node) Attr(name string) string {
	v, _ := n.sel.Attr(name)
	return v
}

func (n *node) Text() string {
	return n.sel.Text()
}

func (n *node) SelectText(selector string) []string {
	var out []string
	n.sel.Find(selector).Each(func(_ int, s *goquery.Selection) {
		out = append(out, s.Text())
	})
	return out
}

func (n *node) SelectAttr(selector, attr string) string {
	v, _ := n.sel.Find(selector).First().Attr(attr)
	return v
}

func (n *node) Attached() bool {
	return !n.snap.detached.Load()
}

func (n *node) Marked(marker string) bool {
	key := n.sel.Get(0)
	n.snap.mu.Lock()
	defer n.snap.mu.Unlock()
	_, ok := n.snap.marks[key][marker]
	return ok
}

func (n *node) Mark(marker string) {
	key := n.sel.Get(0)
	n.snap.mu.Lock()
	defer n.snap.mu.Unlock()
	set, ok := n.snap.marks[key]
	if !ok {
		set = make(map[string]struct{})
		n.snap.marks[key] = set
	}
	set[marker] = struct{}{}
}

// Live is the host page as the reconciliation loop sees it: whatever
// snapshot was installed last.
type Live struct {
	mu  sync.RWMutex
	cur *Snapshot
}

// NewLive creates a live page showing s. s may be nil.
func NewLive(s *Snapshot) *Live {
	return &Live{cur: s}
}

// Replace installs s and detaches the previous snapshot.
func (l *Live) Replace(s *Snapshot) {
	l.mu.Lock()
	old := l.cur
	l.cur = s
	l.mu.Unlock()

	if old != nil && old != s {
		old.Detach()
	}
}

// Current returns the installed snapshot.
func (l *Live) Current() *Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cur
}

func (l *Live) Location() *url.URL {
	if s := l.Current(); s != nil {
		return s.Location()
	}
	return nil
}

func (l *Live) Items() []Item {
	if s := l.Current(); s != nil {
		return s.Items()
	}
	return nil
}

var (
	_ Document = (*Snapshot)(nil)
	_ Document = (*Live)(nil)
)
