// Package session builds the immutable unit of work the pipeline runs: one
// company, one period, one source, one catalyst type.
package session

import (
	"fmt"
	"strings"

	"github.com/sells-group/catalyst-cli/internal/catalog"
	"github.com/sells-group/catalyst-cli/internal/model"
)

// DefaultTopK is the per-query result limit when none is given.
const DefaultTopK = 3

// Params are the raw inputs to Build.
type Params struct {
	Tic          string
	Name         string
	Industry     string
	Sector       string
	Description  string
	SourceType   model.SourceType
	CatalystType model.CatalystType
	Year         int
	Quarter      *int
	Month        *int
	TopK         int
}

// Session is one (company, period, source, catalyst type) unit of work.
//
// Company, Query and Definition never change after Build. Current is the
// matching context for Stage-2 and has a single writer: the goroutine running
// the session. It must not be shared across goroutines.
type Session struct {
	Company    model.CompanyInfo
	Query      model.QueryParameters
	Definition catalog.Definition

	Current []model.Catalyst
}

// Build validates p and assembles a Session. It has no side effects.
func Build(p Params) (*Session, error) {
	tic := strings.TrimSpace(p.Tic)
	if tic == "" {
		return nil, model.ConfigurationErrorf("tic is required")
	}

	def, err := catalog.Lookup(p.CatalystType)
	if err != nil {
		return nil, model.ConfigurationErrorf("catalyst type %q is not one of the 9 supported types", p.CatalystType)
	}

	if p.Quarter != nil && p.Month != nil {
		return nil, model.ConfigurationErrorf("exactly one of quarter or month must be set, got both")
	}
	if p.Quarter == nil && p.Month == nil {
		return nil, model.ConfigurationErrorf("exactly one of quarter or month must be set, got neither")
	}

	switch p.SourceType {
	case model.SourceEarningsTranscript:
		if p.Quarter == nil {
			return nil, model.ConfigurationErrorf("earnings transcripts are quarterly: quarter is required")
		}
		if *p.Quarter < 1 || *p.Quarter > 4 {
			return nil, model.ConfigurationErrorf("quarter %d out of range 1-4", *p.Quarter)
		}
	case model.SourceNews:
		if p.Month == nil {
			return nil, model.ConfigurationErrorf("news is monthly: month is required")
		}
		if *p.Month < 1 || *p.Month > 12 {
			return nil, model.ConfigurationErrorf("month %d out of range 1-12", *p.Month)
		}
	default:
		return nil, model.ConfigurationErrorf("unknown source type %q", p.SourceType)
	}

	if p.Year <= 0 {
		return nil, model.ConfigurationErrorf("year %d is invalid", p.Year)
	}

	topK := p.TopK
	switch {
	case topK < 0:
		return nil, model.ConfigurationErrorf("top_k must be positive, got %d", topK)
	case topK == 0:
		topK = DefaultTopK
	}

	return &Session{
		Company: model.CompanyInfo{
			Tic:         strings.ToUpper(tic),
			Name:        p.Name,
			Industry:    p.Industry,
			Sector:      p.Sector,
			Description: p.Description,
		},
		Query: model.QueryParameters{
			Tic:          strings.ToUpper(tic),
			Period:       model.Period{Year: p.Year, Quarter: copyInt(p.Quarter), Month: copyInt(p.Month)},
			SourceType:   p.SourceType,
			CatalystType: p.CatalystType,
			TopK:         topK,
		},
		Definition: def,
	}, nil
}

// ForCompanyPeriod builds one session per catalyst type for a corpus row.
func ForCompanyPeriod(cp model.CompanyPeriod, topK int, types []model.CatalystType) ([]*Session, error) {
	if len(types) == 0 {
		types = model.AllCatalystTypes()
	}
	out := make([]*Session, 0, len(types))
	for _, t := range types {
		s, err := Build(Params{
			Tic:          cp.Company.Tic,
			Name:         cp.Company.Name,
			Industry:     cp.Company.Industry,
			Sector:       cp.Company.Sector,
			Description:  cp.Company.Description,
			SourceType:   cp.SourceType,
			CatalystType: t,
			Year:         cp.Period.Year,
			Quarter:      cp.Period.Quarter,
			Month:        cp.Period.Month,
			TopK:         topK,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Key identifies the session in logs and reports.
func (s *Session) Key() string {
	return fmt.Sprintf("%s/%s/%s/%s", s.Query.Tic, s.Query.CatalystType, s.Query.SourceType, s.Query.Period)
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}
