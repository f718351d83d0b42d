package council

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRanking(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name: "standard format with FINAL RANKING",
			input: `Response A is good but lacks detail.
Response B provides comprehensive coverage.
Response C is accurate but brief.

FINAL RANKING:
1. Response B
2. Response A
3. Response C`,
			expected: []string{"Response B", "Response A", "Response C"},
		},
		{
			name: "format without numbered list",
			input: `FINAL RANKING:
Response C
Response A
Response B`,
			expected: []string{"Response C", "Response A", "Response B"},
		},
		{
			name: "extra whitespace",
			input: `FINAL RANKING:
1.  Response A
2.  Response B`,
			expected: []string{"Response A", "Response B"},
		},
		{
			name: "text after ranking section",
			input: `FINAL RANKING:
1. Response B
2. Response A

These are my rankings based on quality.`,
			expected: []string{"Response B", "Response A"},
		},
		{
			name:     "no FINAL RANKING header falls back to the whole text",
			input:    `I think Response A is best, then Response C, then Response B.`,
			expected: []string{"Response A", "Response C", "Response B"},
		},
		{name: "empty string", input: "", expected: []string{}},
		{
			name: "FINAL RANKING with no responses",
			input: `FINAL RANKING:
No responses to rank.`,
			expected: []string{},
		},
		{
			name: "only the FINAL RANKING section counts",
			input: `Response A is mentioned here first.
Response B is also mentioned.

FINAL RANKING:
1. Response C
2. Response A`,
			expected: []string{"Response C", "Response A"},
		},
		{
			name: "multi-letter labels",
			input: `FINAL RANKING:
1. Response AB
2. Response Z`,
			expected: []string{"Response AB", "Response Z"},
		},
		{
			name:     "words that merely start with a capital are not labels",
			input:    `Response Alpha was fine.`,
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseRanking(tt.input))
		})
	}
}

func TestAggregateRankings(t *testing.T) {
	labels := Labels{
		{Letter: "A", Model: "model/a"},
		{Letter: "B", Model: "model/b"},
		{Letter: "C", Model: "model/c"},
	}

	t.Run("consensus", func(t *testing.T) {
		got := AggregateRankings([]ModelResponse{
			{Model: "r1", ParsedRanking: []string{"Response A", "Response B", "Response C"}},
			{Model: "r2", ParsedRanking: []string{"Response A", "Response C", "Response B"}},
		}, labels)

		require.Len(t, got, 3)
		assert.Equal(t, AggregateRanking{Model: "model/a", AverageRank: 1, RankingsCount: 2}, got[0])
		assert.Equal(t, 2.5, got[1].AverageRank)
		assert.Equal(t, 2.5, got[2].AverageRank)
		assert.Equal(t, "model/b", got[1].Model, "ties are broken by model id")
	})

	t.Run("unknown and repeated labels are ignored", func(t *testing.T) {
		got := AggregateRankings([]ModelResponse{
			{Model: "r1", ParsedRanking: []string{"Response Q", "Response B", "Response B"}},
		}, labels)

		require.Len(t, got, 1)
		assert.Equal(t, "model/b", got[0].Model)
		assert.Equal(t, 2.0, got[0].AverageRank)
		assert.Equal(t, 1, got[0].RankingsCount)
	})

	t.Run("no rankings", func(t *testing.T) {
		assert.Empty(t, AggregateRankings(nil, labels))
		assert.Empty(t, AggregateRankings([]ModelResponse{{Model: "r1"}}, labels))
	})
}
