package scoring

import "github.com/menta2k/atc-analyzer/pkg/types"

// RecommendationThreshold flags categories scoring below it
const RecommendationThreshold = 6.0

type advice struct {
	category   string
	issue      string
	suggestion string
	score      func(types.CategoryScores) float64
}

var adviceTable = []advice{
	{
		category:   "Dairy Character",
		issue:      "Below average dairy character score",
		suggestion: "Focus on breeding for improved body proportion and dairy type features",
		score:      func(c types.CategoryScores) float64 { return c.DairyCharacter },
	},
	{
		category:   "Mammary System",
		issue:      "Mammary system needs improvement",
		suggestion: "Consider udder conformation and attachment evaluation",
		score:      func(c types.CategoryScores) float64 { return c.MammarySystem },
	},
	{
		category:   "Body Capacity",
		issue:      "Limited body capacity",
		suggestion: "Improve feeding regime and monitor body condition score",
		score:      func(c types.CategoryScores) float64 { return c.BodyCapacity },
	},
	{
		category:   "Feet & Legs",
		issue:      "Structural issues with feet and legs",
		suggestion: "Monitor mobility and consider hoof care management",
		score:      func(c types.CategoryScores) float64 { return c.FeetLegs },
	},
}

// Recommend lists management hints for every low-scoring category of every cow
func Recommend(cows []types.CowAnalysis) []types.Recommendation {
	out := make([]types.Recommendation, 0)
	for _, cow := range cows {
		scores := cow.ATCResults.CategoryScores
		for _, a := range adviceTable {
			if a.score(scores) < RecommendationThreshold {
				out = append(out, types.Recommendation{
					CowID:      cow.CowID,
					Category:   a.category,
					Issue:      a.issue,
					Suggestion: a.suggestion,
				})
			}
		}
	}
	return out
}
