package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalyst-cli/internal/model"
	"github.com/sells-group/catalyst-cli/internal/registry"
	"github.com/sells-group/catalyst-cli/internal/store"
)

var t0 = time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)

// seededStore returns a SQLite registry holding one announced and then
// updated guidance catalyst "g1" for AAPL, and one risk catalyst "r1" for MSFT.
func seededStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	ctx := context.Background()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "cmd.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	area := model.ImpactRevenue
	url := "https://example.com/aapl-q3"
	chunk := func(event string, id int) model.RetrievedChunk {
		return model.RetrievedChunk{
			EventID:       event,
			ChunkID:       id,
			SourceType:    model.SourceEarningsTranscript,
			Content:       "guidance text",
			Source:        "fmp",
			URL:           &url,
			RawJSONSHA256: "abc123",
		}
	}

	announce := []registry.Detection{
		{
			Catalyst: model.Catalyst{
				CatalystID:   "g1",
				CatalystType: model.CatalystGuidanceOutlook,
				State:        model.StateAnnounced,
				Title:        "Raised FY2025 revenue guidance",
				ImpactArea:   &area,
				Sentiment:    1,
			},
			Chunk: chunk("ev0", 1),
			Tic:   "AAPL",
		},
		{
			Catalyst: model.Catalyst{
				CatalystID:   "r1",
				CatalystType: model.CatalystRiskEvent,
				State:        model.StateAnnounced,
				Title:        "EU antitrust probe opened",
				Sentiment:    -1,
			},
			Chunk: chunk("ev5", 2),
			Tic:   "MSFT",
		},
	}
	_, err = registry.NewVersioner(st).WithClock(func() time.Time { return t0 }).Record(ctx, announce)
	require.NoError(t, err)

	update := []registry.Detection{{
		Catalyst: model.Catalyst{
			CatalystID:   "g1",
			CatalystType: model.CatalystGuidanceOutlook,
			State:        model.StateUpdated,
			Title:        "FY2025 revenue guidance reaffirmed",
			ImpactArea:   &area,
		},
		Chunk: chunk("ev1", 3),
		Tic:   "AAPL",
	}}
	rec, err := registry.NewVersioner(st).WithClock(func() time.Time { return t0.Add(time.Hour) }).Record(ctx, update)
	require.NoError(t, err)
	_, err = registry.NewCompactor(st).UpdateMaster(ctx, rec.Touched)
	require.NoError(t, err)

	return st
}
