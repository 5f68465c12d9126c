package toxicity

import "strings"

// HeuristicWords are the toxic-adjacent words and phrases counted by the
// fallback scorer.
var HeuristicWords = []string{
	"hate", "stupid", "idiot", "moron", "kill",
	"trash", "dumb", "loser", "shut up", "worthless",
}

const (
	heuristicStep = 0.15
	heuristicCap  = 0.9
)

// Heuristic scores text by counting which HeuristicWords it contains,
// case-insensitively. Each word counts once. The result never exceeds 0.9.
func Heuristic(text string) float64 {
	if text == "" {
		return 0
	}
	lower := strings.ToLower(text)

	hits := 0
	for _, w := range HeuristicWords {
		if strings.Contains(lower, w) {
			hits++
		}
	}
	return min(heuristicCap, float64(hits)*heuristicStep)
}
