package council

import (
	"fmt"
	"strings"
)

// rankingInstructions is the reply contract for Stage 2. Downstream consumers
// parse the FINAL RANKING block, so the wording must not drift.
const rankingInstructions = `Your task:
1. First, evaluate each response individually. For each response, explain what it does well and what it does poorly.
2. Then, at the very end of your response, provide a final ranking.

IMPORTANT: Your final ranking MUST be formatted EXACTLY as follows:
- Start with the line "FINAL RANKING:" (all caps, with colon)
- Then list the responses from best to worst as a numbered list
- Each line should be: number, period, space, then ONLY the response label (e.g., "1. Response A")
- Do not add any other text or explanations in the ranking section

Example of the correct format for your ENTIRE response:

Response A provides good detail on X but misses Y...
Response B is accurate but lacks depth on Z...
Response C offers the most comprehensive answer...

FINAL RANKING:
1. Response C
2. Response A
3. Response B

Now provide your evaluation and ranking:`

// BuildRankingPrompt renders the single prompt every Stage 2 reviewer receives.
// responses and labels must be index-aligned. Model ids never appear in it.
func BuildRankingPrompt(question string, responses []ModelResponse, labels Labels) string {
	var responsesText strings.Builder
	for i, r := range responses {
		fmt.Fprintf(&responsesText, "%s:\n%s\n\n", labels[i].Name(), r.Text)
	}

	return fmt.Sprintf(`You are evaluating different responses to the following question:

Question: %s

Here are the responses from different models (anonymized):

%s
%s`, question, responsesText.String(), rankingInstructions)
}

// BuildSynthesisPrompt renders the chairman prompt with real model ids
func BuildSynthesisPrompt(question string, stage1, stage2 []ModelResponse) string {
	var stage1Text strings.Builder
	for _, r := range stage1 {
		fmt.Fprintf(&stage1Text, "Model: %s\nResponse: %s\n\n", r.Model, r.Text)
	}

	var stage2Text strings.Builder
	if len(stage2) == 0 {
		stage2Text.WriteString("(No peer rankings were produced.)\n\n")
	}
	for _, r := range stage2 {
		fmt.Fprintf(&stage2Text, "Model: %s\nRanking: %s\n\n", r.Model, r.Text)
	}

	return fmt.Sprintf(`You are the Chairman of an LLM Council. Multiple AI models have provided responses to a user's question, and then ranked each other's responses.

Original Question: %s

STAGE 1 - Individual Responses:
%s
STAGE 2 - Peer Rankings:
%s
Your task as Chairman is to synthesize all of this information into a single, comprehensive, accurate answer to the user's original question. Consider:
- The individual responses and their insights
- The peer rankings and what they reveal about response quality
- Any patterns of agreement or disagreement

Provide a clear, well-reasoned final answer that represents the council's collective wisdom:`, question, stage1Text.String(), stage2Text.String())
}
