package catalog

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sells-group/catalyst-cli/internal/model"
)

// Stage1SystemPrompt instructs the relevance classifier.
const Stage1SystemPrompt = `You classify financial text for catalyst relevance.

You receive one chunk from an earnings call transcript or a news article, the company context (tic, company_name, industry, sector, company_description), the TARGET catalyst type, and the retrieval QUERY that surfaced the chunk.

Decide whether the chunk states a concrete, forward-looking, event-like development for THIS company that matches the target catalyst type.

Not a catalyst:
- generic strategy or vision statements
- historical results with no forward implication
- macro or competitor commentary unrelated to this company
- filler, greetings, or Q&A logistics

Lean slightly liberal: if the chunk clearly implies an actionable development, answer 1. Routine context or vague sentiment is 0.

Respond with JSON only:
{"is_catalyst": 0 | 1, "rationale": "<why, max 25 words>"}`

const stage1UserPrompt = `--- COMPANY CONTEXT ---
%s

--- TARGET CATALYST TYPE ---
%s

--- RETRIEVAL QUERY ---
%s

--- CHUNK TO ANALYZE ---
%s`

const stage2UserPrompt = `--- COMPANY CONTEXT ---
%s

--- TARGET CATALYST TYPE ---
%s

--- RETRIEVAL QUERY ---
%s

--- CHUNK TO ANALYZE ---
%s

--- STAGE 1 OUTPUT ---
is_catalyst: 1
rationale: %s

--- CURRENT CATALYSTS (this company and type) ---
%s`

// Stage1Prompt renders the Stage-1 user message.
func Stage1Prompt(company model.CompanyInfo, t model.CatalystType, query, content string) string {
	return fmt.Sprintf(stage1UserPrompt, companyJSON(company), t, query, content)
}

// Stage2Prompt renders the Stage-2 user message. current is sent verbatim as
// the matching context.
func Stage2Prompt(company model.CompanyInfo, t model.CatalystType, query, content, rationale string, current []model.Catalyst) string {
	if current == nil {
		current = []model.Catalyst{}
	}
	cur, err := json.Marshal(current)
	if err != nil {
		cur = []byte("[]")
	}
	return fmt.Sprintf(stage2UserPrompt, companyJSON(company), t, query, content, rationale, cur)
}

func companyJSON(c model.CompanyInfo) string {
	b, err := json.Marshal(c)
	if err != nil {
		return c.Tic
	}
	return string(b)
}

// MatchingRubric renders the rules that decide whether a detection updates an
// existing catalyst.
func (d Definition) MatchingRubric() string {
	var b strings.Builder
	b.WriteString("Treat the chunk as the SAME catalyst (an update) if any of these hold:\n")
	for _, m := range d.Matching {
		b.WriteString("- ")
		b.WriteString(m)
		b.WriteByte('\n')
	}
	b.WriteString("Two detections are also the same catalyst when they share topic, subject, program or counterparty identity, or the new text explicitly continues, reaffirms, escalates, completes or cancels the earlier one.\n")
	b.WriteString("Otherwise it is a NEW catalyst.")
	return b.String()
}

// SystemPrompt renders the Stage-2 system instructions for this type.
func (d Definition) SystemPrompt() string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are an analyst specializing in %s catalysts (catalyst_type %q).\n\n", d.Label, d.Type)
	b.WriteString(`Inputs:
1. A chunk already judged relevant by Stage 1.
2. The company context.
3. The retrieval QUERY that surfaced the chunk.
4. The Stage 1 rationale.
5. The CURRENT catalysts of this type for the company, in the same schema as your output.

Decide whether the chunk is a NEW catalyst or an UPDATE to one of the current catalysts.
Titles must be short, specific, and carry direction (raised, delayed, completed).
On an UPDATE keep the existing catalyst_id, refine the title and summary from the new evidence, and never return state "announced".
On a NEW catalyst return catalyst_id null and state "announced".

`)

	b.WriteString("DETECTION\nValid when the company:\n")
	for _, s := range d.Detect {
		fmt.Fprintf(&b, "- %s\n", s)
	}
	b.WriteString("Ignore:\n")
	for _, s := range d.Ignore {
		fmt.Fprintf(&b, "- %s\n", s)
	}

	b.WriteString("\nMATCHING RULES\n")
	b.WriteString(d.MatchingRubric())
	b.WriteString("\n\n")

	areas := make([]string, len(d.ImpactAreas))
	for i, a := range d.ImpactAreas {
		areas[i] = fmt.Sprintf("%q", a)
	}

	b.WriteString("OUTPUT (JSON only)\n")
	fmt.Fprintf(&b, `{
  "catalyst_id": "<existing id when updating, otherwise null>",
  "state": "announced" | "updated" | "withdrawn" | "realized",
  "title": "<headline, max 12 words>",
  "summary": "<one or two sentences, max 60 words>",
  "evidence": "<supporting quote from the chunk, max 40 words>",
  "time_horizon": 0 | 1 | 2 | null,
  "certainty": "confirmed" | "planned" | "rumor" | "denied" | null,
  "impact_area": %s | null,
  "sentiment": -1 | 0 | 1,
  "impact_magnitude": -1 | 0 | 1
}
`, strings.Join(areas, " | "))

	b.WriteString(`
time_horizon: 0 = short term (up to 1 week), 1 = mid term (up to 3 months), 2 = long term.
sentiment: -1 negative, 0 neutral, 1 positive. impact_magnitude: -1 minor, 0 moderate, 1 major.

STATES
- announced: first sighting of this catalyst
- updated: matches a current catalyst that was reaffirmed or modified
- withdrawn: a current catalyst was cancelled, paused or withdrawn
- realized: a current catalyst was achieved or completed

`)

	ex := d.Example
	fmt.Fprintf(&b, "EXAMPLE\nChunk: %q\nQuery: %q\nStage 1 rationale: %q\nCurrent catalysts: %s\nOutput: %s\n",
		ex.Chunk, ex.Query, ex.Rationale, ex.Current, ex.Output)

	return b.String()
}
