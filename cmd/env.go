package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalyst-cli/internal/classify"
	"github.com/sells-group/catalyst-cli/internal/config"
	"github.com/sells-group/catalyst-cli/internal/corpus"
	"github.com/sells-group/catalyst-cli/internal/cost"
	"github.com/sells-group/catalyst-cli/internal/db"
	"github.com/sells-group/catalyst-cli/internal/metrics"
	"github.com/sells-group/catalyst-cli/internal/pipeline"
	"github.com/sells-group/catalyst-cli/internal/resilience"
	"github.com/sells-group/catalyst-cli/internal/retrieve"
	"github.com/sells-group/catalyst-cli/internal/store"
	anthropicpkg "github.com/sells-group/catalyst-cli/pkg/anthropic"
	"github.com/sells-group/catalyst-cli/pkg/embedding"
)

// detectEnv holds everything the run and batch commands need.
type detectEnv struct {
	Store   store.Store
	Corpus  *corpus.Postgres
	Runner  *pipeline.Runner
	Metrics *metrics.Metrics

	closeCorpus func()
}

// Close releases the corpus pool and the store.
func (e *detectEnv) Close() {
	if e.closeCorpus != nil {
		e.closeCorpus()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens the registry for the configured driver.
func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	switch c.Store.Driver {
	case "sqlite":
		dsn := c.Store.DatabaseURL
		if dsn == "" {
			dsn = "catalysts.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, c.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: c.Store.MaxConns,
			MinConns: c.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
}

// openReadStore validates c for read-only use, opens the store and applies
// migrations. Callers close the store.
func openReadStore(ctx context.Context, c *config.Config) (store.Store, error) {
	if err := c.Validate(config.ModeRead); err != nil {
		return nil, err
	}
	st, err := initStore(ctx, c)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// openCorpus reuses the registry pool when the corpus lives in the same
// Postgres database, and connects separately otherwise.
func openCorpus(ctx context.Context, c *config.Config, st store.Store) (*corpus.Postgres, func(), error) {
	if ps, ok := st.(*store.PostgresStore); ok && c.CorpusURL() == c.Store.DatabaseURL {
		zap.L().Debug("corpus using shared database pool")
		return corpus.NewPostgres(ps.Pool()), nil, nil
	}
	pool, err := db.Connect(ctx, c.CorpusURL(), &db.PoolConfig{MaxConns: c.Store.MaxConns, MinConns: c.Store.MinConns})
	if err != nil {
		return nil, nil, eris.Wrap(err, "connect corpus")
	}
	return corpus.NewPostgres(pool), pool.Close, nil
}

// guards builds one guard per external service. Sessions running in
// parallel share them, so the rate limits are global to the process.
func guards(c *config.Config) (llm, embed *resilience.Guard) {
	retry := resilience.FromRetryConfig(c.Retry.MaxAttempts, c.Retry.InitialBackoffMs, c.Retry.MaxBackoffMs, c.Retry.Multiplier, c.Retry.JitterFraction)
	circuit := resilience.FromCircuitConfig(c.Circuit.FailureThreshold, c.Circuit.ResetTimeoutSecs)

	llm = resilience.NewGuard("anthropic", resilience.NewLimiter(c.RateLimit.LLMRPS, c.RateLimit.LLMBurst), circuit, retry)
	embed = resilience.NewGuard("embedding", resilience.NewLimiter(c.RateLimit.EmbedRPS, c.RateLimit.EmbedBurst), circuit, retry)
	return llm, embed
}

// initDetect sets up the store, the corpus, both API clients and the batch
// runner. Callers should defer env.Close().
func initDetect(ctx context.Context, c *config.Config) (*detectEnv, error) {
	if err := c.Validate(config.ModeDetect); err != nil {
		return nil, err
	}

	st, err := initStore(ctx, c)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	corp, closeCorpus, err := openCorpus(ctx, c, st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	llmGuard, embedGuard := guards(c)

	embedOpts := []embedding.Option{embedding.WithBaseURL(c.Embedding.BaseURL)}
	if c.Embedding.Dimensions > 0 {
		embedOpts = append(embedOpts, embedding.WithDimensions(c.Embedding.Dimensions))
	}
	embedder := embedding.NewClient(c.Embedding.Key, c.Embedding.Model, embedOpts...)
	generator := anthropicpkg.NewClient(c.Anthropic.Key)

	clsCfg := classify.Config{
		Stage1Model:     c.Anthropic.Stage1Model,
		Stage2Model:     c.Anthropic.Stage2Model,
		Stage2MaxTokens: c.Anthropic.MaxTokens,
		Temperature:     c.Anthropic.Temperature,
	}
	m := metrics.New()

	engine := pipeline.NewEngine(pipeline.Deps{
		Retriever:  retrieve.New(embedder, corp, embedGuard, c.Retrieval.MinSimilarity),
		Classifier: classify.NewClassifier(generator, llmGuard, clsCfg),
		Resolver:   classify.NewResolver(generator, llmGuard, clsCfg),
		Registry:   st,
		Costs:      cost.NewCalculator(c.Pricing),
		Metrics:    m,
		ErrorLimit: c.Batch.ErrorTallyLimit,
	})

	zap.L().Info("detection environment ready",
		zap.String("store", c.Store.Driver),
		zap.String("stage1_model", c.Anthropic.Stage1Model),
		zap.String("stage2_model", c.Anthropic.Stage2Model),
		zap.String("embedding_model", c.Embedding.Model),
		zap.Int("concurrency", c.Batch.MaxConcurrentSessions),
	)

	return &detectEnv{
		Store:       st,
		Corpus:      corp,
		Runner:      pipeline.NewRunner(engine, st, c.Batch.MaxConcurrentSessions, c.Batch.ErrorTallyLimit),
		Metrics:     m,
		closeCorpus: closeCorpus,
	}, nil
}
