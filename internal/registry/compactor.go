package registry

import (
	"context"
	"slices"

	"go.uber.org/zap"

	"github.com/sells-group/catalyst-cli/internal/model"
)

// Compactor rebuilds master rows from the version log.
type Compactor struct {
	store Store
}

// NewCompactor creates a Compactor.
func NewCompactor(store Store) *Compactor {
	return &Compactor{store: store}
}

// UpdateMaster recomputes the master row of every id and upserts them in one
// call. created_at is never rewritten, and a master already carrying a newer
// updated_at is kept, so a compaction that lost a race cannot roll it back.
// An id with no versions means the registry is corrupt: UpdateMaster stops
// and returns an invariant error.
func (c *Compactor) UpdateMaster(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	masters := make([]model.CatalystMaster, 0, len(ids))
	for _, id := range ids {
		versions, err := c.store.Versions(ctx, id)
		if err != nil {
			return 0, model.PersistenceError("load versions "+id, err)
		}
		if len(versions) == 0 {
			return 0, model.InvariantViolationf("catalyst %s was touched but has no versions", id)
		}
		m, err := Compact(versions)
		if err != nil {
			return 0, err
		}
		masters = append(masters, m)
	}

	n, err := c.store.UpsertMasters(ctx, masters)
	if err != nil {
		return 0, model.PersistenceError("upsert masters", err)
	}
	zap.L().Debug("registry: compacted masters",
		zap.Int("count", n),
		zap.Int("stale", len(masters)-n),
	)
	return n, nil
}

// Compact folds one catalyst's versions into its master row. The canonical
// snapshot is the version with the greatest (updated_at, seq). mention_count
// and event_ids cover the distinct event ids across all versions, in
// first-seen order.
func Compact(versions []model.CatalystVersion) (model.CatalystMaster, error) {
	if len(versions) == 0 {
		return model.CatalystMaster{}, model.InvariantViolationf("no versions to compact")
	}

	sorted := slices.Clone(versions)
	slices.SortStableFunc(sorted, func(a, b model.CatalystVersion) int {
		if c := a.UpdatedAt.Compare(b.UpdatedAt); c != 0 {
			return c
		}
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		}
		return 0
	})

	id := sorted[0].CatalystID
	seen := make(map[string]bool)
	var eventIDs []string
	for _, v := range sorted {
		if v.CatalystID != id {
			return model.CatalystMaster{}, model.InvariantViolationf("versions of %s and %s compacted together", id, v.CatalystID)
		}
		if !seen[v.EventID] {
			seen[v.EventID] = true
			eventIDs = append(eventIDs, v.EventID)
		}
	}

	last := sorted[len(sorted)-1]
	return model.CatalystMaster{
		Catalyst:     last.Catalyst,
		Tic:          last.Tic,
		Date:         last.Date,
		MentionCount: len(eventIDs),
		EventIDs:     eventIDs,
		CreatedAt:    sorted[0].UpdatedAt,
		UpdatedAt:    last.UpdatedAt,
	}, nil
}
