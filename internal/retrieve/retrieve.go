// Package retrieve gathers evidence for a session: every canned query of the
// catalyst type is embedded and searched concurrently, then the results are
// merged and deduplicated.
package retrieve

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/catalyst-cli/internal/corpus"
	"github.com/sells-group/catalyst-cli/internal/model"
	"github.com/sells-group/catalyst-cli/internal/resilience"
	"github.com/sells-group/catalyst-cli/internal/session"
	"github.com/sells-group/catalyst-cli/pkg/embedding"
)

// DefaultMinSimilarity is the cosine similarity floor for search results.
const DefaultMinSimilarity = 0.3

// Result is the merged evidence for one session.
type Result struct {
	Chunks          []model.RetrievedChunk
	EmbeddingTokens int
}

// Retriever runs the query fan-out. It is safe for concurrent use.
type Retriever struct {
	embedder      embedding.Client
	searcher      corpus.Searcher
	guard         *resilience.Guard
	minSimilarity float64
}

// New creates a Retriever. guard may be nil. A negative minSimilarity means
// unset and uses DefaultMinSimilarity; 0 disables the floor.
func New(embedder embedding.Client, searcher corpus.Searcher, guard *resilience.Guard, minSimilarity float64) *Retriever {
	if minSimilarity < 0 {
		minSimilarity = DefaultMinSimilarity
	}
	return &Retriever{
		embedder:      embedder,
		searcher:      searcher,
		guard:         guard,
		minSimilarity: minSimilarity,
	}
}

type slot struct {
	chunks []model.RetrievedChunk
	tokens int
}

// Retrieve embeds and searches each of the session's queries concurrently.
// Results are merged in query order and deduplicated by (event_id, chunk_id),
// keeping the first occurrence. Any failure cancels the remaining queries and
// returns a retrieval error. No evidence yields an empty result and no error.
func (r *Retriever) Retrieve(ctx context.Context, s *session.Session) (*Result, error) {
	queries := s.Definition.Queries
	slots := make([]slot, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		g.Go(func() error {
			chunks, tokens, err := r.search(gctx, s, q)
			if err != nil {
				return err
			}
			slots[i] = slot{chunks: chunks, tokens: tokens}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{}
	seen := make(map[model.ChunkKey]struct{})
	for _, sl := range slots {
		res.EmbeddingTokens += sl.tokens
		for _, c := range sl.chunks {
			if _, dup := seen[c.Key()]; dup {
				continue
			}
			seen[c.Key()] = struct{}{}
			res.Chunks = append(res.Chunks, c)
		}
	}
	return res, nil
}

func (r *Retriever) search(ctx context.Context, s *session.Session, query string) ([]model.RetrievedChunk, int, error) {
	emb, err := resilience.Call(ctx, r.guard, "embed", func(ctx context.Context) (*embedding.Response, error) {
		return r.embedder.Embed(ctx, []string{query})
	})
	if err != nil {
		return nil, 0, model.RetrievalError("embed "+query, err)
	}
	if len(emb.Vectors) != 1 {
		return nil, emb.Tokens, model.RetrievalError("embed "+query, eris.Errorf("retrieve: expected 1 embedding, got %d", len(emb.Vectors)))
	}

	chunks, err := r.searcher.Search(ctx, corpus.Query{
		Tic:           s.Query.Tic,
		Period:        s.Query.Period,
		SourceType:    s.Query.SourceType,
		Vector:        emb.Vectors[0],
		TopK:          s.Query.TopK,
		MinSimilarity: r.minSimilarity,
	})
	if err != nil {
		return nil, emb.Tokens, model.RetrievalError("search "+query, err)
	}

	for i := range chunks {
		chunks[i].RetrievalQuery = query
		chunks[i].CatalystType = s.Query.CatalystType
	}
	return chunks, emb.Tokens, nil
}
