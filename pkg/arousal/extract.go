package arousal

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/elonfeng/feedpulse/pkg/document"
	"github.com/elonfeng/feedpulse/pkg/identity"
	"github.com/elonfeng/feedpulse/pkg/numeric"
)

var (
	// CommentCountAttrs are read in order before falling back to text.
	CommentCountAttrs = []string{"comment-count", "comment_count", "comments"}
	// PostScoreAttrs are read in order before falling back to text.
	PostScoreAttrs = []string{"score", "upvote-count", "upvotes"}

	commentsPattern = regexp.MustCompile(`(?i)(\d+(\.\d+)?\s*[km]?)\s+comments?`)
	scorePattern    = regexp.MustCompile(`(?i)(\d+(\.\d+)?\s*[km]?)\s+(upvotes?|points?)`)
)

func firstAttr(item document.Item, names []string) (string, bool) {
	for _, name := range names {
		if v := item.Attr(name); v != "" {
			return v, true
		}
	}
	return "", false
}

// CommentCount reads the item's comment count from its attributes, the
// comments link text, or a "N comments" phrase in its text.
func CommentCount(item document.Item) int {
	if v, ok := firstAttr(item, CommentCountAttrs); ok {
		return numeric.ParseCompact(v)
	}

	if links := item.SelectText(identity.PermalinkSelector); len(links) > 0 {
		if n := numeric.ParseCompact(links[0]); n > 0 {
			return n
		}
	}

	if m := commentsPattern.FindStringSubmatch(item.Text()); m != nil {
		return numeric.ParseCompact(m[1])
	}
	return 0
}

// PostScore reads the item's vote score from its attributes or an
// "N upvotes"/"N points" phrase in its text.
func PostScore(item document.Item) int {
	if v, ok := firstAttr(item, PostScoreAttrs); ok {
		return numeric.ParseCompact(v)
	}
	if m := scorePattern.FindStringSubmatch(item.Text()); m != nil {
		return numeric.ParseCompact(m[1])
	}
	return 0
}

// AgeHours returns hours since the item's time[datetime], at least 1.
// Items without a parseable timestamp are treated as one hour old.
func AgeHours(item document.Item, now time.Time) float64 {
	raw := strings.TrimSpace(item.SelectAttr("time", "datetime"))
	if raw == "" {
		return 1
	}
	created, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return 1
	}
	return max(1, now.Sub(created).Hours())
}

// UpvoteRatio returns the item's upvote-ratio attribute and whether it was
// present and valid.
func UpvoteRatio(item document.Item) (float64, bool) {
	raw := strings.TrimSpace(item.Attr("upvote-ratio"))
	if raw == "" {
		return 0, false
	}
	var pct bool
	if strings.HasSuffix(raw, "%") {
		raw = strings.TrimSuffix(raw, "%")
		pct = true
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	if pct || f > 1 {
		f /= 100
	}
	return numeric.Clamp01(f), true
}
