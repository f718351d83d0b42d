package council

import (
	"regexp"
	"sort"
	"strings"
)

const finalRankingHeader = "FINAL RANKING:"

var (
	numberedLabelPattern = regexp.MustCompile(`\d+\.\s*Response [A-Z]+\b`)
	labelPattern         = regexp.MustCompile(`Response [A-Z]+\b`)
)

// AggregateRanking is one model's average position across all peer rankings
type AggregateRanking struct {
	Model         string  `json:"model"`
	AverageRank   float64 `json:"averageRank"`
	RankingsCount int     `json:"rankingsCount"`
}

// ParseRanking extracts the ordered labels from a Stage 2 answer.
// It prefers the numbered list after "FINAL RANKING:", then any labels after
// the header, then any labels anywhere in the text.
func ParseRanking(text string) []string {
	if idx := strings.Index(text, finalRankingHeader); idx >= 0 {
		section := text[idx+len(finalRankingHeader):]

		if numbered := numberedLabelPattern.FindAllString(section, -1); len(numbered) > 0 {
			results := make([]string, 0, len(numbered))
			for _, match := range numbered {
				if label := labelPattern.FindString(match); label != "" {
					results = append(results, label)
				}
			}
			return results
		}

		if matches := labelPattern.FindAllString(section, -1); len(matches) > 0 {
			return matches
		}
	}

	matches := labelPattern.FindAllString(text, -1)
	if matches == nil {
		return []string{}
	}
	return matches
}

// AggregateRankings averages each model's position across all rankings.
// Labels that do not map to a model are ignored. The result is sorted by
// average rank, best first, ties broken by model id.
func AggregateRankings(rankings []ModelResponse, labels Labels) []AggregateRanking {
	labelToModel := labels.LabelToModel()
	positions := make(map[string][]int)

	for _, ranking := range rankings {
		seen := make(map[string]bool)
		for position, label := range ranking.ParsedRanking {
			model, ok := labelToModel[label]
			if !ok || seen[label] {
				continue
			}
			seen[label] = true
			positions[model] = append(positions[model], position+1)
		}
	}

	aggregate := make([]AggregateRanking, 0, len(positions))
	for model, ps := range positions {
		sum := 0
		for _, p := range ps {
			sum += p
		}
		aggregate = append(aggregate, AggregateRanking{
			Model:         model,
			AverageRank:   float64(sum) / float64(len(ps)),
			RankingsCount: len(ps),
		})
	}

	sort.Slice(aggregate, func(i, j int) bool {
		if aggregate[i].AverageRank != aggregate[j].AverageRank {
			return aggregate[i].AverageRank < aggregate[j].AverageRank
		}
		return aggregate[i].Model < aggregate[j].Model
	})

	return aggregate
}
