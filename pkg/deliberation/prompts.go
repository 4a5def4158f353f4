package deliberation

import (
	"fmt"
	"strings"

	"github.com/quorumlabs/council/pkg/llm"
	"github.com/quorumlabs/council/pkg/models"
)

const draftSystemPrompt = `You are one member of a council of AI assistants. Answer the user's question as well as you can. Be accurate, complete, and direct.`

const rankingSystemPrompt = `You are reviewing anonymized answers from other AI assistants to the same question. Judge content quality only; you cannot tell who wrote what.`

const synthesisSystemPrompt = `You are the chairman of a council of AI assistants. Several council members have answered the user's question and peer-reviewed each other. Synthesize the single best answer from their work. Do not mention the council, the review process, or the individual models.`

// buildDraftMessages builds the Stage-1 conversation for one council model:
// system prompt, prior conversation turns, then the new query.
func buildDraftMessages(history []models.Message, query string) []llm.Message {
	msgs := []llm.Message{{Role: llm.RoleSystem, Content: draftSystemPrompt}}
	for _, m := range history {
		role := llm.RoleUser
		if m.Role == models.RoleAssistant {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: m.Content})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: query})
	return msgs
}

// buildRankingMessages builds the Stage-2 prompt for one ranker over its
// anonymized view. The instructions pin the output shape the parser
// expects: per-response feedback with a rating, then a FINAL RANKING block.
func buildRankingMessages(query string, view []LabeledDraft) []llm.Message {
	var sb strings.Builder
	fmt.Fprintf(&sb, "The original question was:\n\n%s\n\n", query)
	sb.WriteString("Here are the anonymized responses:\n\n")
	for _, d := range view {
		fmt.Fprintf(&sb, "--- Response %s ---\n%s\n\n", d.Label, d.Content)
	}
	sb.WriteString("For each response, give one line of feedback and a quality rating from 1 to 5, like:\n")
	sb.WriteString("Response A: <one-line feedback> (3/5)\n\n")
	sb.WriteString("Then end with a final ranking block, best first, repeating each rating:\n\n")
	sb.WriteString("FINAL RANKING:\n")
	for i := range view {
		fmt.Fprintf(&sb, "%d. Response <label> (<rating>/5)\n", i+1)
	}

	return []llm.Message{
		{Role: llm.RoleSystem, Content: rankingSystemPrompt},
		{Role: llm.RoleUser, Content: sb.String()},
	}
}

// buildRefinementMessages asks a council model for an improved response
// given the peer feedback that was directed at its own draft.
func buildRefinementMessages(query, ownContent string, feedback []string) []llm.Message {
	var sb strings.Builder
	fmt.Fprintf(&sb, "The original question was:\n\n%s\n\n", query)
	fmt.Fprintf(&sb, "Your previous response:\n\n%s\n\n", ownContent)
	sb.WriteString("Peer reviewers said this about your response:\n\n")
	for _, f := range feedback {
		fmt.Fprintf(&sb, "- %s\n", f)
	}
	sb.WriteString("\nWrite an improved response. Address the criticism; keep what reviewers liked. Reply with the improved response only.")

	return []llm.Message{
		{Role: llm.RoleSystem, Content: draftSystemPrompt},
		{Role: llm.RoleUser, Content: sb.String()},
	}
}

// buildSynthesisMessages builds the Stage-3 chairman prompt: the query,
// the final council drafts with real identities, and each model's
// aggregate peer score.
func buildSynthesisMessages(query string, drafts []models.Draft, aggregate []models.AggregateEntry) []llm.Message {
	scoreByModel := make(map[string]*models.AggregateEntry, len(aggregate))
	for i := range aggregate {
		scoreByModel[aggregate[i].Model] = &aggregate[i]
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "The user asked:\n\n%s\n\n", query)
	sb.WriteString("Council responses, with aggregate peer-review results:\n\n")
	for _, d := range drafts {
		if d.ErrorKind != "" || d.Content == "" {
			continue
		}
		fmt.Fprintf(&sb, "--- %s", d.Model)
		if e, ok := scoreByModel[d.Model]; ok {
			fmt.Fprintf(&sb, " (mean peer position %.2f", e.MeanPosition)
			if e.MeanScore != nil {
				fmt.Fprintf(&sb, ", mean score %.1f/5", *e.MeanScore)
			}
			sb.WriteString(")")
		}
		fmt.Fprintf(&sb, " ---\n%s\n\n", d.Content)
	}
	sb.WriteString("Synthesize the single best answer to the user's question.")

	return []llm.Message{
		{Role: llm.RoleSystem, Content: synthesisSystemPrompt},
		{Role: llm.RoleUser, Content: sb.String()},
	}
}

// feedbackFor collects, from every parsed ranking, the raw lines that talk
// about the given label, de-anonymized for presentation back to the model
// that wrote the response.
func feedbackFor(label string, rankings []models.Ranking) []string {
	needle := "Response " + label
	var feedback []string
	for _, r := range rankings {
		content, _ := llm.StripThinking(r.RawText)
		for _, line := range strings.Split(content, "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" || !strings.Contains(trimmed, needle) {
				continue
			}
			if finalMarkerPattern.MatchString(trimmed) || ordinalLinePattern.MatchString(trimmed) {
				continue // ranking lines aren't feedback
			}
			feedback = append(feedback, strings.ReplaceAll(trimmed, needle, "your response"))
		}
	}
	return feedback
}
