package providers

import (
	"fmt"
	"strings"
)

// VisionPrompt is the default instruction sent with each page image.
const VisionPrompt = `Convert this single page image to clean GitHub-flavored Markdown. ` +
	`Preserve headings (#, ##, ...), lists, tables (Markdown pipes) and inline formatting. ` +
	`Do not add commentary. Return Markdown only.`

// AdjudicatorSystemPrompt constrains the adjudicator to a verbatim choice.
const AdjudicatorSystemPrompt = `You are an extraction adjudicator. ` +
	`You will be shown two candidate transcriptions of the same passage from a PDF page, ` +
	`labelled A and B, with the surrounding text for context. ` +
	`Select exactly one. Do not rewrite, merge, correct or summarize. ` +
	`Return the chosen text verbatim.`

// adjudicationReplyFormat is appended to every user prompt so that
// backends without native JSON mode still answer in the expected shape.
const adjudicationReplyFormat = `Reply with a single JSON object and nothing else:
{"pick": "A" or "B", "text": "<the chosen candidate, copied exactly>"}`

// AdjudicatorUserPrompt renders the user turn for req.
func AdjudicatorUserPrompt(req *AdjudicationRequest) string {
	var b strings.Builder
	section := func(title, body string) {
		if body == "" {
			body = "(none)"
		}
		fmt.Fprintf(&b, "%s:\n<<<\n%s\n>>>\n\n", title, body)
	}
	section("Context before", req.ContextBefore)
	section("Option A", req.CandidateA)
	section("Option B", req.CandidateB)
	section("Context after", req.ContextAfter)
	b.WriteString(adjudicationReplyFormat)
	return b.String()
}
