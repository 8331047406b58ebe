package store

import (
	"context"
	"encoding/json"

	"github.com/sells-group/catalyst-cli/internal/model"
)

// CatalystFilter specifies criteria for listing master rows.
type CatalystFilter struct {
	Tic          string               `json:"tic,omitempty"`
	CatalystType model.CatalystType   `json:"catalyst_type,omitempty"`
	State        model.LifecycleState `json:"state,omitempty"`
	Limit        int                  `json:"limit,omitempty"`
	Offset       int                  `json:"offset,omitempty"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store is the catalyst registry: the append-only version log, the
// canonical master table and the run history.
type Store interface {
	// Registry
	CurrentCatalysts(ctx context.Context, tic string, catalystType model.CatalystType) ([]model.CatalystMaster, error)
	MasterExists(ctx context.Context, ids []string) (map[string]bool, error)
	// RecordDetections inserts versions (skipping ones whose natural key
	// already exists) and seeds masters for new catalysts, atomically.
	// It returns the number of versions actually inserted.
	RecordDetections(ctx context.Context, versions []model.CatalystVersion, seeds []model.CatalystMaster) (int, error)
	Versions(ctx context.Context, catalystID string) ([]model.CatalystVersion, error)
	// UpsertMasters replaces every master column except created_at.
	UpsertMasters(ctx context.Context, masters []model.CatalystMaster) (int, error)

	// Read side
	GetCatalyst(ctx context.Context, catalystID string) (*model.CatalystMaster, error)
	ListCatalysts(ctx context.Context, filter CatalystFilter) ([]model.CatalystMaster, error)

	// Runs
	CreateRun(ctx context.Context, sourceType model.SourceType, sessions int) (*model.Run, error)
	UpdateRun(ctx context.Context, runID string, status model.RunStatus, report json.RawMessage, errMsg string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const (
	defaultListLimit = 100
	dateLayout       = "2006-01-02"
)

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}
