// Package monitoring watches recent batch runs and raises webhook alerts when
// failure rate, invariant violations or spend cross configured thresholds.
package monitoring

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalyst-cli/internal/model"
	"github.com/sells-group/catalyst-cli/internal/pipeline"
	"github.com/sells-group/catalyst-cli/internal/store"
)

const collectPageSize = 200

// Snapshot is a point-in-time view of run health over a lookback window.
type Snapshot struct {
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsFailed   int     `json:"runs_failed"`
	RunsCanceled int     `json:"runs_canceled"`
	RunsRunning  int     `json:"runs_running"`
	RunFailRate  float64 `json:"run_fail_rate"`

	// Aggregated from the stored run reports.
	Sessions      int                     `json:"sessions"`
	SessionErrors int                     `json:"session_errors"`
	ErrorsByKind  map[model.ErrorKind]int `json:"errors_by_kind,omitempty"`
	NewCatalysts  int                     `json:"new_catalysts"`
	Updated       int                     `json:"updated"`
	CostUSD       float64                 `json:"cost_usd"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister is the slice of the registry the collector reads.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// Collector builds snapshots from the run table.
type Collector struct {
	runs    RunLister
	nowFunc func() time.Time
}

// NewCollector creates a collector over runs.
func NewCollector(runs RunLister) *Collector {
	return &Collector{runs: runs, nowFunc: time.Now}
}

// WithClock overrides the collector's clock.
func (c *Collector) WithClock(now func() time.Time) *Collector {
	c.nowFunc = now
	return c
}

// Collect gathers a snapshot of the runs created in the last lookbackHours.
// Runs are listed newest first, so paging stops at the first run older than
// the cutoff.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	now := c.nowFunc().UTC()
	snap := &Snapshot{
		ErrorsByKind:  make(map[model.ErrorKind]int),
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	for offset := 0; ; offset += collectPageSize {
		page, err := c.runs.ListRuns(ctx, store.RunFilter{Limit: collectPageSize, Offset: offset})
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: list runs")
		}
		for i := range page {
			if page[i].CreatedAt.Before(cutoff) {
				snap.finish()
				return snap, nil
			}
			snap.add(&page[i])
		}
		if len(page) < collectPageSize {
			break
		}
	}

	snap.finish()
	return snap, nil
}

func (s *Snapshot) add(r *model.Run) {
	s.RunsTotal++
	switch r.Status {
	case model.RunStatusComplete:
		s.RunsComplete++
	case model.RunStatusFailed:
		s.RunsFailed++
	case model.RunStatusCanceled:
		s.RunsCanceled++
	case model.RunStatusRunning:
		s.RunsRunning++
	}

	if len(r.Report) == 0 {
		return
	}
	var rep pipeline.Report
	if err := json.Unmarshal(r.Report, &rep); err != nil {
		zap.L().Warn("monitoring: skipping unreadable run report",
			zap.String("run_id", r.ID),
			zap.Error(err),
		)
		return
	}
	s.Sessions += rep.Sessions
	s.NewCatalysts += rep.Totals.New
	s.Updated += rep.Totals.Updated
	s.CostUSD += rep.Usage.Cost
	for kind, n := range rep.Errors.Counts {
		s.ErrorsByKind[kind] += n
		s.SessionErrors += n
	}
}

func (s *Snapshot) finish() {
	if finished := s.RunsComplete + s.RunsFailed; finished > 0 {
		s.RunFailRate = float64(s.RunsFailed) / float64(finished)
	}
}
