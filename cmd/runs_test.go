package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/catalyst-cli/internal/model"
	"github.com/sells-group/catalyst-cli/internal/monitoring"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:         "abc12345-6789-0000-0000-000000000000",
			SourceType: model.SourceNews,
			Status:     model.RunStatusComplete,
			Sessions:   18,
			CreatedAt:  now,
			UpdatedAt:  now.Add(2 * time.Minute),
		},
		{
			ID:         "def12345-6789-0000-0000-000000000000",
			SourceType: model.SourceEarningsTranscript,
			Status:     model.RunStatusCanceled,
			Sessions:   9,
			CreatedAt:  now.Add(-1 * time.Hour),
			UpdatedAt:  now.Add(-30 * time.Minute),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "SOURCE")
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "news")
	assert.Contains(t, output, "complete")
	assert.Contains(t, output, "earnings_transcript")
	assert.Contains(t, output, "canceled")
	assert.Contains(t, output, "2025-06-15 10:30")
	assert.Contains(t, output, "abc12345")
	assert.NotContains(t, output, "abc12345-6789")
	assert.Contains(t, output, "2m0s")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789"))
	assert.Equal(t, "short", truncateID("short"))
}

func TestFormatRunStats(t *testing.T) {
	snap := &monitoring.Snapshot{
		RunsTotal:     3,
		RunsComplete:  2,
		RunsFailed:    1,
		RunFailRate:   1.0 / 3.0,
		Sessions:      27,
		NewCatalysts:  4,
		Updated:       6,
		SessionErrors: 3,
		ErrorsByKind:  map[model.ErrorKind]int{model.KindRetrieval: 2, model.KindClassification: 1},
		CostUSD:       1.25,
		LookbackHours: 24,
	}
	alerts := []monitoring.Alert{{Type: monitoring.AlertCostOverrun, Severity: "high", Message: "API cost $1.25 exceeds threshold $1.00 in last 24h"}}

	var buf bytes.Buffer
	formatRunStats(&buf, snap, alerts)
	out := buf.String()

	assert.Contains(t, out, "Runs in last 24h: 3 (complete 2, failed 1, canceled 0, running 0)")
	assert.Contains(t, out, "Failure rate: 33.3%")
	assert.Contains(t, out, "Sessions: 27  New: 4  Updated: 6")
	assert.Contains(t, out, "Cost: $1.2500")
	assert.Contains(t, out, "[high] API cost $1.25")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("classification")), bytes.Index(buf.Bytes(), []byte("retrieval")))
}

func TestFormatRunStats_NoAlerts(t *testing.T) {
	var buf bytes.Buffer
	formatRunStats(&buf, &monitoring.Snapshot{LookbackHours: 6}, nil)
	assert.Contains(t, buf.String(), "Alerts: none")
}
