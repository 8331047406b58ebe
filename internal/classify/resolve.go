package classify

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalyst-cli/internal/catalog"
	"github.com/sells-group/catalyst-cli/internal/model"
	"github.com/sells-group/catalyst-cli/internal/resilience"
	"github.com/sells-group/catalyst-cli/pkg/anthropic"
)

// Resolution says how a Stage-2 result was matched.
type Resolution string

const (
	// ResolvedNew is a first sighting with a fresh id.
	ResolvedNew Resolution = "new"
	// ResolvedMatch updates one of the current catalysts.
	ResolvedMatch Resolution = "match"
	// ResolvedFallback is a new catalyst built from the chunk after the
	// generator failed or returned something unusable.
	ResolvedFallback Resolution = "fallback"
)

// Outcome is the Stage-2 result for one chunk.
type Outcome struct {
	Catalyst   model.Catalyst
	Resolution Resolution
	Usage      Usage
	Raw        string
	// Err is the classification error behind a fallback, if any.
	Err error
}

type stage2Output struct {
	CatalystID      flexString `json:"catalyst_id"`
	State           string     `json:"state"`
	Title           string     `json:"title"`
	Summary         string     `json:"summary"`
	Evidence        string     `json:"evidence"`
	TimeHorizon     flexInt    `json:"time_horizon"`
	Certainty       flexString `json:"certainty"`
	ImpactArea      flexString `json:"impact_area"`
	Sentiment       flexInt    `json:"sentiment"`
	ImpactMagnitude flexInt    `json:"impact_magnitude"`
}

// Resolver is the Stage-2 entity resolver.
type Resolver struct {
	client anthropic.Client
	guard  *resilience.Guard
	cfg    Config
	newID  func() string
}

// NewResolver creates a Stage-2 resolver. guard may be nil.
func NewResolver(client anthropic.Client, guard *resilience.Guard, cfg Config) *Resolver {
	return &Resolver{
		client: client,
		guard:  guard,
		cfg:    cfg.withDefaults(),
		newID:  uuid.NewString,
	}
}

// Resolve turns a relevant chunk into a fully specified catalyst and resolves
// its identity against *current, which it then updates: a new catalyst is
// appended and a match replaces the existing entry in place. Later chunks of
// the same session therefore see earlier outcomes, so *current must have a
// single writer.
//
// A generator failure or unusable output never loses the detection: the chunk
// becomes a new announced catalyst and Outcome.Err records why. Only context
// cancellation is returned as an error.
func (r *Resolver) Resolve(ctx context.Context, company model.CompanyInfo, def catalog.Definition, chunk model.RetrievedChunk, rationale string, current *[]model.Catalyst) (*Outcome, error) {
	req := anthropic.MessageRequest{
		Model:       r.cfg.Stage2Model,
		MaxTokens:   r.cfg.Stage2MaxTokens,
		System:      anthropic.BuildCachedSystemBlocks(def.SystemPrompt()),
		Temperature: temperature(r.cfg.Temperature),
		Messages: []anthropic.Message{{
			Role:    "user",
			Content: catalog.Stage2Prompt(company, def.Type, chunk.RetrievalQuery, chunk.Content, rationale, *current),
		}},
	}

	raw, usage, err := generate(ctx, r.client, r.guard, "stage2", req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "classify: stage2")
		}
		return r.fallback(def, chunk, rationale, current, usage, raw, err), nil
	}

	var out stage2Output
	if err := json.Unmarshal([]byte(cleanJSON(raw)), &out); err != nil {
		return r.fallback(def, chunk, rationale, current, usage, raw, eris.Wrap(err, "classify: parse stage2 output")), nil
	}
	if strings.TrimSpace(out.Title) == "" {
		return r.fallback(def, chunk, rationale, current, usage, raw, eris.New("classify: stage2 output has no title")), nil
	}

	cat := normalize(def.Type, out)

	idx := -1
	if out.CatalystID.Value != nil {
		id := strings.TrimSpace(*out.CatalystID.Value)
		for i := range *current {
			if (*current)[i].CatalystID == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			zap.L().Warn("stage2 returned unknown catalyst id, treating as new",
				append(chunkFields(chunk), zap.String("catalyst_id", id))...)
		}
	}

	outcome := &Outcome{Usage: usage, Raw: raw}
	if idx >= 0 {
		cat.CatalystID = (*current)[idx].CatalystID
		if cat.State == model.StateAnnounced || !cat.State.Valid() {
			cat.State = model.StateUpdated
		}
		(*current)[idx] = cat
		outcome.Resolution = ResolvedMatch
	} else {
		cat.CatalystID = r.newID()
		cat.State = model.StateAnnounced
		*current = append(*current, cat)
		outcome.Resolution = ResolvedNew
	}
	outcome.Catalyst = cat
	return outcome, nil
}

func (r *Resolver) fallback(def catalog.Definition, chunk model.RetrievedChunk, rationale string, current *[]model.Catalyst, usage Usage, raw string, cause error) *Outcome {
	cerr := model.ClassificationError("stage2", cause, raw)
	zap.L().Warn("stage2 resolution failed, recording chunk as a new catalyst",
		append(chunkFields(chunk), zap.Error(cause), zap.String("raw_response", raw))...)

	title := capWords(rationale, maxTitleWords)
	if title == "" {
		title = capWords(chunk.Content, maxTitleWords)
	}
	cat := model.Catalyst{
		CatalystID:   r.newID(),
		CatalystType: def.Type,
		State:        model.StateAnnounced,
		Title:        title,
		Summary:      capWords(rationale, maxSummaryWords),
		Evidence:     capWords(chunk.Content, maxEvidenceWords),
	}
	*current = append(*current, cat)
	return &Outcome{
		Catalyst:   cat,
		Resolution: ResolvedFallback,
		Usage:      usage,
		Raw:        raw,
		Err:        cerr,
	}
}

// normalize maps generator output onto the closed domain: text is NFC
// normalized and word-capped, unknown enum values become null and
// out-of-range scales become 0.
func normalize(t model.CatalystType, out stage2Output) model.Catalyst {
	c := model.Catalyst{
		CatalystType:    t,
		State:           model.LifecycleState(strings.ToLower(strings.TrimSpace(out.State))),
		Title:           capWords(out.Title, maxTitleWords),
		Summary:         capWords(out.Summary, maxSummaryWords),
		Evidence:        capWords(out.Evidence, maxEvidenceWords),
		Sentiment:       tri(out.Sentiment),
		ImpactMagnitude: tri(out.ImpactMagnitude),
	}

	if v := out.TimeHorizon.Value; v != nil {
		if h := model.TimeHorizon(*v); h.Valid() {
			c.TimeHorizon = &h
		}
	}
	if v := out.Certainty.Value; v != nil {
		if ce := model.Certainty(strings.ToLower(*v)); ce.Valid() {
			c.Certainty = &ce
		}
	}
	if v := out.ImpactArea.Value; v != nil {
		if a := model.ImpactArea(strings.ToLower(*v)); a.Valid() {
			c.ImpactArea = &a
		}
	}
	return c
}

func tri(f flexInt) model.Tri {
	if f.Value == nil {
		return 0
	}
	if v := model.Tri(*f.Value); v.Valid() {
		return v
	}
	return 0
}
