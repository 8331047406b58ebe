package main

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/catalyst-cli/internal/model"
	"github.com/sells-group/catalyst-cli/internal/session"
)

// batchPlan is an explicit list of company-periods to run instead of
// enumerating them from the corpus.
//
//	source: earnings_transcript
//	types: [guidance_outlook, risk_event]
//	sessions:
//	  - tic: AAPL
//	    name: Apple Inc.
//	    year: 2025
//	    quarter: 3
type batchPlan struct {
	Source   string      `yaml:"source"`
	TopK     int         `yaml:"top_k"`
	Types    []string    `yaml:"types"`
	Entries  []planEntry `yaml:"sessions"`
}

type planEntry struct {
	Tic         string   `yaml:"tic"`
	Name        string   `yaml:"name"`
	Industry    string   `yaml:"industry"`
	Sector      string   `yaml:"sector"`
	Description string   `yaml:"description"`
	Year        int      `yaml:"year"`
	Quarter     *int     `yaml:"quarter"`
	Month       *int     `yaml:"month"`
	Types       []string `yaml:"types"`
}

func loadPlan(path string) (*batchPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "plan: read %s", path)
	}
	var p batchPlan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, eris.Wrapf(err, "plan: parse %s", path)
	}
	if len(p.Entries) == 0 {
		return nil, eris.Errorf("plan: %s lists no sessions", path)
	}
	return &p, nil
}

func parseTypes(names []string) ([]model.CatalystType, error) {
	if len(names) == 0 {
		return nil, nil
	}
	out := make([]model.CatalystType, 0, len(names))
	for _, n := range names {
		t, err := model.ParseCatalystType(strings.TrimSpace(n))
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Sessions expands the plan. An entry's own types override the plan's, and
// an empty list means all types. source is used when the plan names none.
func (p *batchPlan) Sessions(source model.SourceType, topK int) (model.SourceType, []*session.Session, error) {
	if p.Source != "" {
		st, err := model.ParseSourceType(p.Source)
		if err != nil {
			return "", nil, eris.Wrap(err, "plan")
		}
		source = st
	}
	if p.TopK > 0 {
		topK = p.TopK
	}
	planTypes, err := parseTypes(p.Types)
	if err != nil {
		return "", nil, eris.Wrap(err, "plan")
	}

	var out []*session.Session
	for i, e := range p.Entries {
		types := planTypes
		if len(e.Types) > 0 {
			if types, err = parseTypes(e.Types); err != nil {
				return "", nil, eris.Wrapf(err, "plan: session %d", i)
			}
		}
		cp := model.CompanyPeriod{
			Company: model.CompanyInfo{
				Tic:         e.Tic,
				Name:        e.Name,
				Industry:    e.Industry,
				Sector:      e.Sector,
				Description: e.Description,
			},
			SourceType: source,
			Period:     model.Period{Year: e.Year, Quarter: e.Quarter, Month: e.Month},
		}
		ss, err := session.ForCompanyPeriod(cp, topK, types)
		if err != nil {
			return "", nil, eris.Wrapf(err, "plan: session %d (%s)", i, e.Tic)
		}
		out = append(out, ss...)
	}
	return source, out, nil
}
