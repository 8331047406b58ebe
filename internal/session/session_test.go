package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalyst-cli/internal/model"
)

func intp(v int) *int { return &v }

func TestBuild_Valid(t *testing.T) {
	t.Parallel()

	s, err := Build(Params{
		Tic:          "aapl",
		Name:         "Apple Inc.",
		SourceType:   model.SourceEarningsTranscript,
		CatalystType: model.CatalystGuidanceOutlook,
		Year:         2025,
		Quarter:      intp(2),
	})
	require.NoError(t, err)

	assert.Equal(t, "AAPL", s.Company.Tic)
	assert.Equal(t, "AAPL", s.Query.Tic)
	assert.Equal(t, DefaultTopK, s.Query.TopK)
	assert.Equal(t, model.CatalystGuidanceOutlook, s.Definition.Type)
	assert.Equal(t, "AAPL/guidance_outlook/earnings_transcript/2025Q2", s.Key())
	assert.Empty(t, s.Current)
}

func TestBuild_CopiesPeriodPointers(t *testing.T) {
	t.Parallel()

	month := intp(5)
	s, err := Build(Params{
		Tic: "MSFT", SourceType: model.SourceNews, CatalystType: model.CatalystRiskEvent,
		Year: 2025, Month: month, TopK: 5,
	})
	require.NoError(t, err)

	*month = 9
	assert.Equal(t, 5, *s.Query.Period.Month)
	assert.Equal(t, 5, s.Query.TopK)
}

func TestBuild_ConfigurationErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		p    Params
	}{
		{"missing tic", Params{SourceType: model.SourceNews, CatalystType: model.CatalystRiskEvent, Year: 2025, Month: intp(1)}},
		{"unknown type", Params{Tic: "X", SourceType: model.SourceNews, CatalystType: "buzz", Year: 2025, Month: intp(1)}},
		{"both", Params{Tic: "X", SourceType: model.SourceNews, CatalystType: model.CatalystRiskEvent, Year: 2025, Month: intp(1), Quarter: intp(1)}},
		{"neither", Params{Tic: "X", SourceType: model.SourceNews, CatalystType: model.CatalystRiskEvent, Year: 2025}},
		{"news with quarter", Params{Tic: "X", SourceType: model.SourceNews, CatalystType: model.CatalystRiskEvent, Year: 2025, Quarter: intp(1)}},
		{"transcript with month", Params{Tic: "X", SourceType: model.SourceEarningsTranscript, CatalystType: model.CatalystRiskEvent, Year: 2025, Month: intp(1)}},
		{"quarter range", Params{Tic: "X", SourceType: model.SourceEarningsTranscript, CatalystType: model.CatalystRiskEvent, Year: 2025, Quarter: intp(5)}},
		{"month range", Params{Tic: "X", SourceType: model.SourceNews, CatalystType: model.CatalystRiskEvent, Year: 2025, Month: intp(13)}},
		{"unknown source", Params{Tic: "X", SourceType: "podcast", CatalystType: model.CatalystRiskEvent, Year: 2025, Month: intp(1)}},
		{"negative top_k", Params{Tic: "X", SourceType: model.SourceNews, CatalystType: model.CatalystRiskEvent, Year: 2025, Month: intp(1), TopK: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, err := Build(tt.p)
			require.Error(t, err)
			assert.Nil(t, s)
			assert.True(t, model.IsKind(err, model.KindConfiguration), "got %v", err)
		})
	}
}

func TestForCompanyPeriod_AllTypes(t *testing.T) {
	t.Parallel()

	cp := model.CompanyPeriod{
		Company:    model.CompanyInfo{Tic: "NVDA", Name: "NVIDIA"},
		SourceType: model.SourceNews,
		Period:     model.Period{Year: 2025, Month: intp(3)},
	}

	sessions, err := ForCompanyPeriod(cp, 0, nil)
	require.NoError(t, err)
	require.Len(t, sessions, 9)
	for i, ct := range model.AllCatalystTypes() {
		assert.Equal(t, ct, sessions[i].Query.CatalystType)
		assert.Equal(t, "NVIDIA", sessions[i].Company.Name)
	}

	one, err := ForCompanyPeriod(cp, 3, []model.CatalystType{model.CatalystDemandTrends})
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, model.CatalystDemandTrends, one[0].Query.CatalystType)
}
