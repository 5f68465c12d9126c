package arousal

import (
	"strings"
	"unicode"

	"github.com/elonfeng/feedpulse/pkg/numeric"
)

// HypeWords raise the text intensity signal.
var HypeWords = []string{
	"wtf", "outrage", "insane", "unbelievable",
	"crazy", "ridiculous", "never", "always",
}

// TextIntensity measures shouting in text: upper-case share of ASCII
// letters (weight 0.4), "!"/"?" pressure (0.3) and hype words (0.3).
func TextIntensity(text string) float64 {
	if text == "" {
		return 0
	}

	var letters, upper, marks int
	for _, r := range text {
		switch {
		case r < unicode.MaxASCII && unicode.IsUpper(r):
			letters++
			upper++
		case r < unicode.MaxASCII && unicode.IsLower(r):
			letters++
		case r == '!' || r == '?':
			marks++
		}
	}

	upperRatio := 0.0
	if letters > 0 {
		upperRatio = float64(upper) / float64(letters)
	}
	punct := min(1, float64(marks)/12)

	lower := strings.ToLower(text)
	hits := 0
	for _, w := range HypeWords {
		if strings.Contains(lower, w) {
			hits++
		}
	}
	words := min(1, float64(hits)/4)

	return numeric.Clamp01(0.4*upperRatio + 0.3*punct + 0.3*words)
}

// Velocity is comments per hour of age, saturating at 100 per hour.
func Velocity(comments int, ageHours float64) float64 {
	if ageHours < 1 {
		ageHours = 1
	}
	return numeric.Clamp01(float64(comments) / ageHours / 100)
}

// LowApproval is the share of downvotes implied by an upvote ratio.
func LowApproval(ratio float64, ok bool) float64 {
	if !ok {
		return 0
	}
	return numeric.Clamp01(1 - ratio)
}

// Breakdown is every signal computed for one item. Only Ratio and
// Concentration contribute to Score; the rest are informational.
type Breakdown struct {
	Key           string  `json:"key"`
	Comments      int     `json:"comments"`
	PostScore     int     `json:"post_score"`
	Ratio         float64 `json:"ratio"`
	Concentration float64 `json:"low_score_concentration"`
	Score         float64 `json:"score"`

	AgeHours      float64 `json:"age_hours"`
	Velocity      float64 `json:"velocity"`
	TextIntensity float64 `json:"text_intensity"`
	LowApproval   float64 `json:"low_approval"`
}

// Blend combines the ratio and concentration signals with equal weight.
func Blend(ratio, concentration float64) float64 {
	return numeric.Clamp01(0.5*ratio + 0.5*concentration)
}

// RatioSignal is comments per point of score, capped at 1. Negative scores
// count as 0.
func RatioSignal(comments, postScore int) float64 {
	return numeric.Clamp01(float64(comments) / float64(max(max(postScore, 0), 1)))
}
