// Package classify runs the two generator stages over retrieved chunks:
// Stage-1 judges relevance, Stage-2 resolves a relevant chunk into a new or
// existing catalyst.
package classify

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalyst-cli/internal/catalog"
	"github.com/sells-group/catalyst-cli/internal/model"
	"github.com/sells-group/catalyst-cli/internal/resilience"
	"github.com/sells-group/catalyst-cli/pkg/anthropic"
)

// Default generator settings.
const (
	DefaultStage1Model     = "claude-haiku-4-5-20251001"
	DefaultStage2Model     = "claude-sonnet-4-5-20250929"
	DefaultStage1MaxTokens = 256
	DefaultStage2MaxTokens = 1024
)

// Config selects models and output budgets for both stages.
type Config struct {
	Stage1Model     string
	Stage2Model     string
	Stage1MaxTokens int64
	Stage2MaxTokens int64
	Temperature     float64
}

func (c Config) withDefaults() Config {
	if c.Stage1Model == "" {
		c.Stage1Model = DefaultStage1Model
	}
	if c.Stage2Model == "" {
		c.Stage2Model = DefaultStage2Model
	}
	if c.Stage1MaxTokens <= 0 {
		c.Stage1MaxTokens = DefaultStage1MaxTokens
	}
	if c.Stage2MaxTokens <= 0 {
		c.Stage2MaxTokens = DefaultStage2MaxTokens
	}
	return c
}

// Usage is the token consumption of one generator call.
type Usage struct {
	Model string
	anthropic.TokenUsage
}

// Tokens converts u to the report accumulator. Cost is left to the caller.
func (u Usage) Tokens() model.TokenUsage {
	return model.TokenUsage{
		InputTokens:         int(u.InputTokens),
		OutputTokens:        int(u.OutputTokens),
		CacheCreationTokens: int(u.CacheCreationInputTokens),
		CacheReadTokens:     int(u.CacheReadInputTokens),
	}
}

// generate sends one single-turn request through the guard and returns the
// response text.
func generate(ctx context.Context, client anthropic.Client, guard *resilience.Guard, op string, req anthropic.MessageRequest) (string, Usage, error) {
	resp, err := resilience.Call(ctx, guard, op, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return client.CreateMessage(ctx, req)
	})
	if err != nil {
		return "", Usage{Model: req.Model}, eris.Wrapf(err, "classify: %s", op)
	}
	usage := Usage{Model: req.Model, TokenUsage: resp.Usage}
	zap.L().Debug("generator usage",
		zap.String("op", op),
		zap.String("model", req.Model),
		zap.Int64("input_tokens", resp.Usage.InputTokens),
		zap.Int64("output_tokens", resp.Usage.OutputTokens),
		zap.Int64("cache_read_tokens", resp.Usage.CacheReadInputTokens),
	)
	if resp.Truncated() {
		zap.L().Warn("generator output hit max_tokens", zap.String("op", op), zap.Int64("max_tokens", req.MaxTokens))
	}
	return resp.Text(), usage, nil
}

func chunkFields(c model.RetrievedChunk) []zap.Field {
	return []zap.Field{
		zap.String("event_id", c.EventID),
		zap.Int("chunk_id", c.ChunkID),
		zap.String("catalyst_type", string(c.CatalystType)),
		zap.String("retrieval_query", c.RetrievalQuery),
	}
}

func temperature(v float64) *float64 {
	return &v
}

// Classifier is the Stage-1 relevance gate.
type Classifier struct {
	client anthropic.Client
	guard  *resilience.Guard
	cfg    Config
	system []anthropic.SystemBlock
}

// NewClassifier creates a Stage-1 classifier. guard may be nil.
func NewClassifier(client anthropic.Client, guard *resilience.Guard, cfg Config) *Classifier {
	return &Classifier{
		client: client,
		guard:  guard,
		cfg:    cfg.withDefaults(),
		system: anthropic.BuildCachedSystemBlocks(catalog.Stage1SystemPrompt),
	}
}

// Verdict is the Stage-1 result for one chunk.
type Verdict struct {
	Candidate model.Candidate
	Usage     Usage
	Raw       string
}

type stage1Output struct {
	IsCatalyst flexInt `json:"is_catalyst"`
	Rationale  string  `json:"rationale"`
}

// Classify asks the generator whether chunk is catalyst-relevant for the
// session's type. A generator failure or a response outside the schema is a
// classification error carrying the raw text; callers drop the chunk.
func (c *Classifier) Classify(ctx context.Context, company model.CompanyInfo, def catalog.Definition, chunk model.RetrievedChunk) (*Verdict, error) {
	req := anthropic.MessageRequest{
		Model:       c.cfg.Stage1Model,
		MaxTokens:   c.cfg.Stage1MaxTokens,
		System:      c.system,
		Temperature: temperature(c.cfg.Temperature),
		Messages: []anthropic.Message{{
			Role:    "user",
			Content: catalog.Stage1Prompt(company, def.Type, chunk.RetrievalQuery, chunk.Content),
		}},
	}

	raw, usage, err := generate(ctx, c.client, c.guard, "stage1", req)
	if err != nil {
		return nil, model.ClassificationError("stage1", err, "")
	}

	var out stage1Output
	if err := json.Unmarshal([]byte(cleanJSON(raw)), &out); err != nil {
		return nil, model.ClassificationError("stage1", eris.Wrap(err, "classify: parse stage1 output"), raw)
	}
	if out.IsCatalyst.Value == nil || (*out.IsCatalyst.Value != 0 && *out.IsCatalyst.Value != 1) {
		return nil, model.ClassificationError("stage1", eris.New("classify: is_catalyst must be 0 or 1"), raw)
	}

	return &Verdict{
		Candidate: model.Candidate{
			IsCatalyst:   *out.IsCatalyst.Value == 1,
			Rationale:    capChars(out.Rationale, maxRationaleChars),
			CatalystType: def.Type,
		},
		Usage: usage,
		Raw:   raw,
	}, nil
}
