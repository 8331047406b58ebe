// Package pipeline runs sessions end to end: retrieval, both classification
// stages, versioning and compaction, and fans a batch of sessions out over a
// bounded worker pool.
package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/catalyst-cli/internal/catalog"
	"github.com/sells-group/catalyst-cli/internal/classify"
	"github.com/sells-group/catalyst-cli/internal/cost"
	"github.com/sells-group/catalyst-cli/internal/metrics"
	"github.com/sells-group/catalyst-cli/internal/model"
	"github.com/sells-group/catalyst-cli/internal/registry"
	"github.com/sells-group/catalyst-cli/internal/retrieve"
	"github.com/sells-group/catalyst-cli/internal/session"
)

// DefaultErrorLimit bounds the error messages kept per session and per report.
const DefaultErrorLimit = 20

// Retriever gathers evidence for a session.
type Retriever interface {
	Retrieve(ctx context.Context, s *session.Session) (*retrieve.Result, error)
}

// Classifier is the Stage-1 relevance gate.
type Classifier interface {
	Classify(ctx context.Context, company model.CompanyInfo, def catalog.Definition, chunk model.RetrievedChunk) (*classify.Verdict, error)
}

// Resolver is the Stage-2 entity resolver.
type Resolver interface {
	Resolve(ctx context.Context, company model.CompanyInfo, def catalog.Definition, chunk model.RetrievedChunk, rationale string, current *[]model.Catalyst) (*classify.Outcome, error)
}

// Registry is the store surface the engine needs.
type Registry interface {
	registry.Store
	CurrentCatalysts(ctx context.Context, tic string, catalystType model.CatalystType) ([]model.CatalystMaster, error)
}

// Deps are the Engine's collaborators. Costs, Metrics and Now are optional.
type Deps struct {
	Retriever  Retriever
	Classifier Classifier
	Resolver   Resolver
	Registry   Registry
	Costs      *cost.Calculator
	Metrics    *metrics.Metrics
	Now        func() time.Time
	ErrorLimit int
}

// Engine runs one session at a time; it is safe to share across goroutines
// as long as each session is run by one goroutine.
type Engine struct {
	retriever  Retriever
	classifier Classifier
	resolver   Resolver
	registry   Registry
	versioner  *registry.Versioner
	compactor  *registry.Compactor
	costs      *cost.Calculator
	metrics    *metrics.Metrics
	errorLimit int
}

// NewEngine wires an Engine.
func NewEngine(d Deps) *Engine {
	v := registry.NewVersioner(d.Registry)
	if d.Now != nil {
		v.WithClock(d.Now)
	}
	costs := d.Costs
	if costs == nil {
		costs = cost.NewCalculator(cost.DefaultRates())
	}
	limit := d.ErrorLimit
	if limit <= 0 {
		limit = DefaultErrorLimit
	}
	return &Engine{
		retriever:  d.Retriever,
		classifier: d.Classifier,
		resolver:   d.Resolver,
		registry:   d.Registry,
		versioner:  v,
		compactor:  registry.NewCompactor(d.Registry),
		costs:      costs,
		metrics:    d.Metrics,
		errorLimit: limit,
	}
}

type candidate struct {
	chunk     model.RetrievedChunk
	rationale string
}

// RunSession runs one session end to end.
//
// Chunk-level classification failures are tallied in the result and never
// end the session. A retrieval or persistence failure ends the session and is
// recorded in the result with a nil error. Only an invariant violation or
// context cancellation is returned as an error; versions committed before a
// cancellation are kept and their compaction is left to a later run.
func (e *Engine) RunSession(ctx context.Context, s *session.Session) (*SessionResult, error) {
	start := time.Now()
	log := zap.L().With(
		zap.String("tic", s.Query.Tic),
		zap.String("catalyst_type", string(s.Query.CatalystType)),
		zap.String("period", s.Query.Period.String()),
		zap.String("source_type", string(s.Query.SourceType)),
	)

	res := newSessionResult(s, e.errorLimit)
	defer func() {
		res.Duration = time.Since(start)
		e.metrics.Session(string(s.Query.CatalystType), res.Retrieved, res.Stage1Passed, res.states, res.MasterUpdated, res.Duration)
	}()

	retrieved, err := e.retriever.Retrieve(ctx, s)
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		e.fail(log, res, err)
		return res, nil
	}
	res.Usage.EmbeddingTokens += retrieved.EmbeddingTokens
	res.Usage.Cost += e.costs.Embedding(retrieved.EmbeddingTokens)
	res.Retrieved = len(retrieved.Chunks)
	if res.Retrieved == 0 {
		log.Info("session: no evidence retrieved")
		return res, nil
	}

	masters, err := e.registry.CurrentCatalysts(ctx, s.Query.Tic, s.Query.CatalystType)
	if err != nil {
		e.fail(log, res, model.RetrievalError("load current catalysts", err))
		return res, nil
	}
	s.Current = make([]model.Catalyst, len(masters))
	for i, m := range masters {
		s.Current[i] = m.Catalyst
	}

	var passed []candidate
	for _, chunk := range retrieved.Chunks {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		v, err := e.classifier.Classify(ctx, s.Company, s.Definition, chunk)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Stage1Failed++
			e.chunkError(log, res, "stage1", chunk, err)
			continue
		}
		e.addUsage(res, v.Usage)
		if v.Candidate.IsCatalyst {
			passed = append(passed, candidate{chunk: chunk, rationale: v.Candidate.Rationale})
		}
	}
	res.Stage1Passed = len(passed)

	// Stage-2 is serial: each resolution sees the outcomes of the previous ones.
	detections := make([]registry.Detection, 0, len(passed))
	for _, c := range passed {
		out, err := e.resolver.Resolve(ctx, s.Company, s.Definition, c.chunk, c.rationale, &s.Current)
		if err != nil {
			return res, err
		}
		e.addUsage(res, out.Usage)
		if out.Err != nil {
			res.Fallbacks++
			e.chunkError(log, res, "stage2", c.chunk, out.Err)
		}
		detections = append(detections, registry.Detection{
			Catalyst: out.Catalyst,
			Chunk:    c.chunk,
			Tic:      s.Query.Tic,
		})
	}

	rec, err := e.versioner.Record(ctx, detections)
	if err != nil {
		e.fail(log, res, err)
		return res, nil
	}
	res.New, res.Updated, res.Orphaned, res.Duplicates = rec.New, rec.Updated, rec.Orphaned, rec.Duplicates
	for _, d := range detections {
		res.states[string(d.Catalyst.State)]++
	}

	if err := ctx.Err(); err != nil {
		return res, err
	}
	n, err := e.compactor.UpdateMaster(ctx, rec.Touched)
	if err != nil {
		e.fail(log, res, err)
		if model.IsKind(err, model.KindInvariant) {
			return res, err
		}
		return res, nil
	}
	res.MasterUpdated = n

	log.Info("session complete",
		zap.Int("processed", res.Retrieved),
		zap.Int("stage1_passed", res.Stage1Passed),
		zap.Int("new", res.New),
		zap.Int("updated", res.Updated),
		zap.Int("master_updated", res.MasterUpdated),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

func (e *Engine) addUsage(res *SessionResult, u classify.Usage) {
	tu := u.Tokens()
	tu.Cost = e.costs.Claude(u.Model, tu.InputTokens, tu.OutputTokens, tu.CacheCreationTokens, tu.CacheReadTokens)
	res.Usage.Add(tu)
}

// fail records the error that ended the session.
func (e *Engine) fail(log *zap.Logger, res *SessionResult, err error) {
	kind := model.KindOf(err)
	res.Failed = true
	res.addError(kind, err.Error())
	e.metrics.Error(string(kind))
	log.Error("session failed", zap.String("kind", string(kind)), zap.Error(err))
}

func (e *Engine) chunkError(log *zap.Logger, res *SessionResult, stage string, chunk model.RetrievedChunk, err error) {
	kind := model.KindOf(err)
	res.addError(kind, err.Error())
	e.metrics.Error(string(kind))

	fields := []zap.Field{
		zap.String("stage", stage),
		zap.String("event_id", chunk.EventID),
		zap.Int("chunk_id", chunk.ChunkID),
		zap.String("retrieval_query", chunk.RetrievalQuery),
		zap.Error(err),
	}
	var me *model.Error
	if errors.As(err, &me) && me.Raw != "" {
		fields = append(fields, zap.String("raw_response", me.Raw))
	}
	log.Warn("chunk classification failed", fields...)
}
