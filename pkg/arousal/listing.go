package arousal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/elonfeng/feedpulse/pkg/numeric"
)

// MaxCommentScores bounds how many comment scores are collected per item.
const MaxCommentScores = 60

// Thing is one node of a comment listing.
type Thing struct {
	Kind string    `json:"kind"`
	Data ThingData `json:"data"`
}

// ThingData holds the fields of a node the scorer reads. Score and Replies
// are kept raw because their JSON type varies.
type ThingData struct {
	Score   json.RawMessage `json:"score"`
	Replies json.RawMessage `json:"replies"`
}

type listing struct {
	Data struct {
		Children []Thing `json:"children"`
	} `json:"data"`
}

// score returns the node's numeric score, if it has one.
func (d ThingData) score() (float64, bool) {
	if len(d.Score) == 0 {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(d.Score, &f); err != nil {
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// replies returns nested reply nodes. Reddit sends "" when there are none.
func (d ThingData) replies() []Thing {
	raw := bytes.TrimSpace(d.Replies)
	if len(raw) == 0 || raw[0] != '{' {
		return nil
	}
	var l listing
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil
	}
	return l.Data.Children
}

// DecodeCommentListing extracts the comment nodes from a post's .json
// payload, which is a [post listing, comment listing] pair.
func DecodeCommentListing(data []byte) ([]Thing, error) {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return nil, fmt.Errorf("decode comment payload: %w", err)
	}
	if len(pair) < 2 {
		return nil, nil
	}
	var l listing
	if err := json.Unmarshal(pair[1], &l); err != nil {
		return nil, fmt.Errorf("decode comment listing: %w", err)
	}
	return l.Data.Children, nil
}

// CollectCommentScores walks children depth-first and returns at most limit
// scores of "t1" (comment) nodes, descending into replies.
func CollectCommentScores(children []Thing, limit int) []float64 {
	out := make([]float64, 0, min(limit, 16))
	collect(children, &out, limit)
	return out
}

func collect(children []Thing, out *[]float64, limit int) {
	for _, node := range children {
		if len(*out) >= limit {
			return
		}
		if node.Kind != "t1" {
			continue
		}
		if s, ok := node.Data.score(); ok {
			*out = append(*out, s)
		}
		if r := node.Data.replies(); len(r) > 0 {
			collect(r, out, limit)
		}
	}
}

// LowScoreConcentration summarizes how many comment scores are negative,
// severely negative (≤ -5) or near zero (≤ 1). It is 0 for no scores.
func LowScoreConcentration(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var neg, severe, nearZero int
	for _, s := range scores {
		if s < 0 {
			neg++
		}
		if s <= -5 {
			severe++
		}
		if s <= 1 {
			nearZero++
		}
	}
	n := float64(len(scores))
	return numeric.Clamp01(0.1*float64(neg)/n + 0.8*float64(severe)/n + 0.1*float64(nearZero)/n)
}
