package store

import "github.com/sells-group/catalyst-cli/internal/model"

// catalystCols is the flat column form of model.Catalyst shared by both
// tables and both drivers.
type catalystCols struct {
	id         string
	ctype      string
	state      string
	title      string
	summary    string
	evidence   string
	horizon    *int
	certainty  *string
	impactArea *string
	sentiment  int
	magnitude  int
}

const catalystColumnList = "catalyst_id, catalyst_type, state, title, summary, evidence, " +
	"time_horizon, certainty, impact_area, sentiment, impact_magnitude"

var catalystColumns = []string{
	"catalyst_id", "catalyst_type", "state", "title", "summary", "evidence",
	"time_horizon", "certainty", "impact_area", "sentiment", "impact_magnitude",
}

func fromCatalyst(c model.Catalyst) catalystCols {
	cols := catalystCols{
		id:        c.CatalystID,
		ctype:     string(c.CatalystType),
		state:     string(c.State),
		title:     c.Title,
		summary:   c.Summary,
		evidence:  c.Evidence,
		sentiment: int(c.Sentiment),
		magnitude: int(c.ImpactMagnitude),
	}
	if c.TimeHorizon != nil {
		h := int(*c.TimeHorizon)
		cols.horizon = &h
	}
	if c.Certainty != nil {
		s := string(*c.Certainty)
		cols.certainty = &s
	}
	if c.ImpactArea != nil {
		s := string(*c.ImpactArea)
		cols.impactArea = &s
	}
	return cols
}

func (c *catalystCols) values() []any {
	return []any{c.id, c.ctype, c.state, c.title, c.summary, c.evidence,
		c.horizon, c.certainty, c.impactArea, c.sentiment, c.magnitude}
}

func (c *catalystCols) dest() []any {
	return []any{&c.id, &c.ctype, &c.state, &c.title, &c.summary, &c.evidence,
		&c.horizon, &c.certainty, &c.impactArea, &c.sentiment, &c.magnitude}
}

func (c catalystCols) catalyst() model.Catalyst {
	out := model.Catalyst{
		CatalystID:      c.id,
		CatalystType:    model.CatalystType(c.ctype),
		State:           model.LifecycleState(c.state),
		Title:           c.title,
		Summary:         c.summary,
		Evidence:        c.evidence,
		Sentiment:       model.Tri(c.sentiment),
		ImpactMagnitude: model.Tri(c.magnitude),
	}
	if c.horizon != nil {
		h := model.TimeHorizon(*c.horizon)
		out.TimeHorizon = &h
	}
	if c.certainty != nil {
		v := model.Certainty(*c.certainty)
		out.Certainty = &v
	}
	if c.impactArea != nil {
		v := model.ImpactArea(*c.impactArea)
		out.ImpactArea = &v
	}
	return out
}
