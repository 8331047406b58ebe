package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/catalyst-cli/internal/model"
	"github.com/sells-group/catalyst-cli/internal/session"
)

// DefaultConcurrency is the number of sessions run at once.
const DefaultConcurrency = 4

// SessionRunner runs one session.
type SessionRunner interface {
	RunSession(ctx context.Context, s *session.Session) (*SessionResult, error)
}

// RunStore records batch run history.
type RunStore interface {
	CreateRun(ctx context.Context, sourceType model.SourceType, sessions int) (*model.Run, error)
	UpdateRun(ctx context.Context, runID string, status model.RunStatus, report json.RawMessage, errMsg string) error
}

// Runner fans sessions out over a bounded worker pool. Sessions sharing a
// (tic, catalyst type) write the same master rows, so they form one partition
// that runs serially in period order. Partitions run in parallel.
type Runner struct {
	engine      SessionRunner
	runs        RunStore
	concurrency int
	errorLimit  int
}

// NewRunner creates a Runner. runs may be nil to skip run history.
func NewRunner(engine SessionRunner, runs RunStore, concurrency, errorLimit int) *Runner {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if errorLimit <= 0 {
		errorLimit = DefaultErrorLimit
	}
	return &Runner{engine: engine, runs: runs, concurrency: concurrency, errorLimit: errorLimit}
}

// RunBatch runs every session with at most the configured number of
// partitions in flight.
//
// A session's own failures are recorded in the report and never stop the
// batch. An invariant violation cancels the remaining sessions and is
// returned, as is cancellation of ctx. The report is returned in every case.
func (r *Runner) RunBatch(ctx context.Context, sourceType model.SourceType, sessions []*session.Session) (*Report, error) {
	start := time.Now()

	var runID string
	if r.runs != nil {
		run, err := r.runs.CreateRun(ctx, sourceType, len(sessions))
		if err != nil {
			return nil, model.PersistenceError("create run", err)
		}
		runID = run.ID
	}

	log := zap.L().With(zap.String("run_id", runID))
	parts := partition(sessions)
	log.Info("batch: starting",
		zap.Int("sessions", len(sessions)),
		zap.Int("partitions", len(parts)),
		zap.Int("concurrency", r.concurrency),
	)

	results := make([]*SessionResult, len(sessions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for _, part := range parts {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			for _, i := range part {
				if gctx.Err() != nil {
					return nil
				}
				s := sessions[i]
				res, err := r.engine.RunSession(gctx, s)
				results[i] = res
				if err != nil && model.IsKind(err, model.KindInvariant) {
					log.Error("batch: invariant violation, stopping", zap.String("session", s.Key()), zap.Error(err))
					return err
				}
				if err != nil {
					log.Warn("batch: session interrupted", zap.String("session", s.Key()), zap.Error(err))
				}
			}
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	rep := BuildReport(results, r.errorLimit)
	rep.RunID = runID
	rep.SourceType = sourceType
	rep.Elapsed = time.Since(start)

	r.finish(ctx, log, rep, err)

	log.Info("batch: complete",
		zap.Int("sessions", rep.Sessions),
		zap.Int("completed", rep.Completed),
		zap.Int("new", rep.Totals.New),
		zap.Int("updated", rep.Totals.Updated),
		zap.Int("master_updated", rep.Totals.MasterUpdated),
		zap.Int("errors", rep.Errors.Total()),
		zap.Float64("cost_usd", rep.Usage.Cost),
		zap.Duration("elapsed", rep.Elapsed),
	)
	return rep, err
}

// partition groups session indexes by (tic, catalyst type) in first-seen
// order. Each group is sorted by period, and sessions of the same period keep
// their input order.
func partition(sessions []*session.Session) [][]int {
	byKey := make(map[string]int)
	var parts [][]int
	for i, s := range sessions {
		k := s.Query.Tic + "/" + string(s.Query.CatalystType)
		p, ok := byKey[k]
		if !ok {
			p = len(parts)
			byKey[k] = p
			parts = append(parts, nil)
		}
		parts[p] = append(parts[p], i)
	}
	for _, part := range parts {
		slices.SortStableFunc(part, func(a, b int) int {
			return sessions[a].Query.Period.Compare(sessions[b].Query.Period)
		})
	}
	return parts
}

func (r *Runner) finish(ctx context.Context, log *zap.Logger, rep *Report, err error) {
	if r.runs == nil || rep.RunID == "" {
		return
	}

	status := model.RunStatusComplete
	var msg string
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		status = model.RunStatusCanceled
		msg = err.Error()
	default:
		status = model.RunStatusFailed
		msg = err.Error()
	}

	body, jerr := json.Marshal(rep)
	if jerr != nil {
		log.Warn("batch: marshal report", zap.Error(jerr))
		body = nil
	}
	// The run row is written even when ctx is already canceled.
	if uerr := r.runs.UpdateRun(context.WithoutCancel(ctx), rep.RunID, status, body, msg); uerr != nil {
		log.Warn("batch: failed to update run", zap.Error(uerr))
	}
}
