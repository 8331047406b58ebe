package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalyst-cli/internal/model"
)

func writePlan(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadPlan(t *testing.T) {
	path := writePlan(t, `
source: earnings_transcript
top_k: 5
types: [guidance_outlook, risk_event]
sessions:
  - tic: aapl
    name: Apple Inc.
    year: 2025
    quarter: 3
  - tic: MSFT
    year: 2025
    quarter: 2
    types: [capital_actions]
`)

	plan, err := loadPlan(path)
	require.NoError(t, err)

	source, sessions, err := plan.Sessions("", 3)
	require.NoError(t, err)
	assert.Equal(t, model.SourceEarningsTranscript, source)
	require.Len(t, sessions, 3)

	assert.Equal(t, "AAPL", sessions[0].Query.Tic)
	assert.Equal(t, "Apple Inc.", sessions[0].Company.Name)
	assert.Equal(t, model.CatalystGuidanceOutlook, sessions[0].Query.CatalystType)
	assert.Equal(t, 5, sessions[0].Query.TopK)
	assert.Equal(t, model.CatalystRiskEvent, sessions[1].Query.CatalystType)
	assert.Equal(t, "MSFT", sessions[2].Query.Tic)
	assert.Equal(t, model.CatalystCapitalActions, sessions[2].Query.CatalystType)
	assert.Equal(t, "2025Q2", sessions[2].Query.Period.String())
}

func TestLoadPlan_AllTypesAndFlagSource(t *testing.T) {
	path := writePlan(t, `
sessions:
  - tic: NVDA
    year: 2025
    month: 5
`)
	plan, err := loadPlan(path)
	require.NoError(t, err)

	source, sessions, err := plan.Sessions(model.SourceNews, 3)
	require.NoError(t, err)
	assert.Equal(t, model.SourceNews, source)
	assert.Len(t, sessions, len(model.AllCatalystTypes()))
}

func TestLoadPlan_Errors(t *testing.T) {
	_, err := loadPlan(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = loadPlan(writePlan(t, "sessions: []\n"))
	assert.Error(t, err)

	_, err = loadPlan(writePlan(t, "sessions: [\n"))
	assert.Error(t, err)
}

func TestPlanSessions_Invalid(t *testing.T) {
	plan, err := loadPlan(writePlan(t, `
source: news
sessions:
  - tic: AAPL
    year: 2025
    quarter: 3
`))
	require.NoError(t, err)

	// news is monthly
	_, _, err = plan.Sessions("", 3)
	assert.Error(t, err)

	plan.Source = "podcasts"
	_, _, err = plan.Sessions("", 3)
	assert.Error(t, err)

	plan.Source = ""
	plan.Types = []string{"earnings_beat"}
	_, _, err = plan.Sessions(model.SourceEarningsTranscript, 3)
	assert.Error(t, err)
}
