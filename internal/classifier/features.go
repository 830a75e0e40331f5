package classifier

import (
	"math"
	"strings"
)

// Keyword lists for the strong-signal shortcut. A hit forces the
// corresponding sentiment regardless of the blended lexicon score.
var positiveKeywords = []string{
	"approve",
	"adopt",
	"partnership",
	"integration",
	"upgrade",
	"rally",
	"surge",
	"all-time high",
	"record inflow",
	"institutional",
	"bullish",
}

var negativeKeywords = []string{
	"hack",
	"exploit",
	"ban",
	"lawsuit",
	"sues",
	"crash",
	"bankruptcy",
	"insolven",
	"fraud",
	"outage",
	"delist",
	"bearish",
	"sanction",
}

// valence holds per-term sentiment weights on a roughly -4..+4 scale,
// blended into one normalized score.
var valence = map[string]float64{
	"approve":       2.0,
	"adopt":         1.8,
	"partnership":   1.6,
	"integration":   1.4,
	"upgrade":       1.5,
	"rally":         2.2,
	"surge":         2.4,
	"soar":          2.4,
	"gain":          1.2,
	"growth":        1.3,
	"etf":           1.5,
	"institutional": 1.4,
	"bullish":       2.0,
	"launch":        1.0,
	"milestone":     1.2,
	"record":        1.1,

	"hack":       -3.2,
	"exploit":    -3.0,
	"ban":        -2.6,
	"lawsuit":    -2.2,
	"sues":       -2.2,
	"crash":      -3.0,
	"plunge":     -2.6,
	"bankruptcy": -3.4,
	"insolven":   -3.2,
	"fraud":      -3.0,
	"outage":     -1.8,
	"delist":     -2.0,
	"bearish":    -2.0,
	"sanction":   -2.2,
	"halt":       -1.6,
	"loss":       -1.4,
	"selloff":    -2.0,
	"drop":       -1.2,
	"fear":       -1.4,
}

// normAlpha dampens the summed valence into the -1..1 range.
const normAlpha = 15.0

// featureVector is the extracted signal a strategy decides on.
// Slice order is fixed: [score, hasPositive, hasNegative].
type featureVector struct {
	Score       float64 // normalized blended valence, -1..1
	HasPositive bool
	HasNegative bool
}

func (f featureVector) slice() []float64 {
	return []float64{f.Score, boolToFloat(f.HasPositive), boolToFloat(f.HasNegative)}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func containsAny(headline string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(headline, kw) {
			return true
		}
	}
	return false
}

// extractFeatures lowercases the headline, matches the keyword lists, and
// blends every lexicon hit into a single normalized score.
func extractFeatures(headline string) featureVector {
	lower := strings.ToLower(headline)

	var sum float64
	for term, weight := range valence {
		if strings.Contains(lower, term) {
			sum += weight
		}
	}

	return featureVector{
		Score:       sum / math.Sqrt(sum*sum+normAlpha),
		HasPositive: containsAny(lower, positiveKeywords),
		HasNegative: containsAny(lower, negativeKeywords),
	}
}
