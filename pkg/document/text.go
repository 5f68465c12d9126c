package document

import (
	"regexp"
	"strings"
)

// MaxTextLength caps the text handed to the scorers, in characters.
const MaxTextLength = 2000

var whitespace = regexp.MustCompile(`\s+`)

var bodySelectors = []string{
	`[slot="text-body"]`,
	`div[data-click-id="text"]`,
	"p",
	"li",
}

// ExtractText returns the readable text of an item: the title followed by
// the distinct body snippets, whitespace-collapsed. Items without any of the
// known parts fall back to their whole text content.
func ExtractText(item Item) string {
	var snippets []string

	if titles := item.SelectText("h3"); len(titles) > 0 {
		if title := strings.TrimSpace(titles[0]); title != "" {
			snippets = append(snippets, title)
		}
	}
	for _, sel := range bodySelectors {
		for _, v := range item.SelectText(sel) {
			if v = strings.TrimSpace(v); v != "" {
				snippets = append(snippets, v)
			}
		}
	}

	seen := make(map[string]bool, len(snippets))
	unique := snippets[:0]
	for _, s := range snippets {
		if seen[s] {
			continue
		}
		seen[s] = true
		unique = append(unique, s)
	}

	text := collapse(strings.Join(unique, " "))
	if text == "" {
		text = collapse(item.Text())
	}
	return truncateRunes(text, MaxTextLength)
}

func collapse(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
