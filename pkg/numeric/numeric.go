// Package numeric holds the small numeric helpers shared by the scorers.
package numeric

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var compactPattern = regexp.MustCompile(`(\d+(\.\d+)?)\s*([km])?`)

// ParseCompact turns a compact human-readable magnitude such as "1.2k",
// "3M" or "1,024 comments" into an integer. Thousands separators are
// stripped and the first number found wins. Absent or unparseable input
// yields 0.
func ParseCompact(text string) int {
	if text == "" {
		return 0
	}

	cleaned := strings.ReplaceAll(strings.ToLower(text), ",", "")
	m := compactPattern.FindStringSubmatch(cleaned)
	if m == nil {
		return 0
	}

	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}

	switch m[3] {
	case "k":
		value *= 1000
	case "m":
		value *= 1000000
	}
	return int(math.Round(value))
}

// Clamp01 bounds v to [0, 1]. NaN maps to 0.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Level buckets a [0,1] score for display.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// LevelOf returns high for scores >= 0.7, medium for >= 0.35, low otherwise.
func LevelOf(score float64) Level {
	switch {
	case score >= 0.7:
		return LevelHigh
	case score >= 0.35:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Percent rounds a [0,1] score to a whole percentage.
func Percent(score float64) int {
	return int(math.Round(score * 100))
}
