// Package registry applies the registry write rules: the Versioner appends
// immutable detection records and seeds brand-new catalysts, the Compactor
// folds the version log back into canonical master rows.
package registry

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/catalyst-cli/internal/model"
)

// Store is the part of the registry store the Versioner and Compactor use.
type Store interface {
	MasterExists(ctx context.Context, ids []string) (map[string]bool, error)
	RecordDetections(ctx context.Context, versions []model.CatalystVersion, seeds []model.CatalystMaster) (int, error)
	Versions(ctx context.Context, catalystID string) ([]model.CatalystVersion, error)
	UpsertMasters(ctx context.Context, masters []model.CatalystMaster) (int, error)
}

// Detection is a resolved catalyst tagged with the chunk it came from.
type Detection struct {
	Catalyst model.Catalyst
	Chunk    model.RetrievedChunk
	Tic      string
}

// RecordResult summarizes one Versioner batch.
type RecordResult struct {
	// New counts announced detections, each seeding a master row.
	New int
	// Updated counts non-announced detections written to the version log.
	Updated int
	// Duplicates counts rows whose natural key was already present.
	Duplicates int
	// Orphaned counts non-announced detections with no master row. They are
	// not written.
	Orphaned int
	// Touched lists, in first-seen order, the ids that received a
	// non-announced version and so need compaction.
	Touched []string
}

// Versioner writes detections to the version log.
type Versioner struct {
	store Store
	now   func() time.Time
}

// NewVersioner creates a Versioner using the wall clock.
func NewVersioner(store Store) *Versioner {
	return &Versioner{store: store, now: time.Now}
}

// WithClock replaces the clock, for tests.
func (v *Versioner) WithClock(now func() time.Time) *Versioner {
	v.now = now
	return v
}

// Record writes a batch of detections in one store transaction.
//
// Row i gets updated_at = base + i ms, so rows of one batch are strictly
// ordered by processing order even when the clock is coarse. An announced
// detection also seeds its master row with mention_count 1 and
// created_at = updated_at. Inserting an existing (event_id, chunk_id,
// catalyst_id) is a no-op, which makes re-ingesting a chunk safe.
func (v *Versioner) Record(ctx context.Context, batch []Detection) (*RecordResult, error) {
	res := &RecordResult{}
	if len(batch) == 0 {
		return res, nil
	}

	announced := make(map[string]bool)
	var lookup []string
	for _, d := range batch {
		if d.Catalyst.State == model.StateAnnounced {
			announced[d.Catalyst.CatalystID] = true
		} else {
			lookup = append(lookup, d.Catalyst.CatalystID)
		}
	}
	exists, err := v.store.MasterExists(ctx, lookup)
	if err != nil {
		return nil, model.PersistenceError("check masters", err)
	}

	base := v.now().UTC()
	versions := make([]model.CatalystVersion, 0, len(batch))
	var seeds []model.CatalystMaster
	touched := make(map[string]bool)

	for i, d := range batch {
		at := base.Add(time.Duration(i) * time.Millisecond)
		ver := newVersion(d, at)
		id := d.Catalyst.CatalystID

		if d.Catalyst.State == model.StateAnnounced {
			versions = append(versions, ver)
			seeds = append(seeds, model.CatalystMaster{
				Catalyst:     d.Catalyst,
				Tic:          d.Tic,
				Date:         d.Chunk.Date,
				MentionCount: 1,
				EventIDs:     []string{d.Chunk.EventID},
				CreatedAt:    at,
				UpdatedAt:    at,
			})
			res.New++
			continue
		}

		if !exists[id] && !announced[id] {
			res.Orphaned++
			zap.L().Warn("registry: detection references unknown catalyst, skipping",
				zap.String("catalyst_id", id),
				zap.String("event_id", d.Chunk.EventID),
				zap.Int("chunk_id", d.Chunk.ChunkID),
				zap.String("state", string(d.Catalyst.State)),
			)
			continue
		}

		versions = append(versions, ver)
		res.Updated++
		if !touched[id] {
			touched[id] = true
			res.Touched = append(res.Touched, id)
		}
	}

	inserted, err := v.store.RecordDetections(ctx, versions, seeds)
	if err != nil {
		return nil, model.PersistenceError("record detections", err)
	}
	res.Duplicates = len(versions) - inserted
	return res, nil
}

func newVersion(d Detection, at time.Time) model.CatalystVersion {
	return model.CatalystVersion{
		Catalyst:       d.Catalyst,
		EventID:        d.Chunk.EventID,
		ChunkID:        d.Chunk.ChunkID,
		Tic:            d.Tic,
		Date:           d.Chunk.Date,
		IngestionBatch: d.Chunk.SourceType.Frequency(),
		SourceType:     d.Chunk.SourceType,
		Source:         d.Chunk.Source,
		URL:            d.Chunk.URL,
		RawJSONSHA256:  d.Chunk.RawJSONSHA256,
		UpdatedAt:      at,
	}
}
