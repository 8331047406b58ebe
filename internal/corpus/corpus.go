// Package corpus reads the evidence corpus: chunked, embedded news and
// earnings call transcripts plus company stock profiles. It never writes.
package corpus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
	"github.com/rotisserie/eris"

	"github.com/sells-group/catalyst-cli/internal/db"
	"github.com/sells-group/catalyst-cli/internal/model"
)

// Query is one similarity search against a company's chunks for a period.
type Query struct {
	Tic           string
	Period        model.Period
	SourceType    model.SourceType
	Vector        []float32
	TopK          int
	MinSimilarity float64
}

// Searcher runs similarity search over the chunk embeddings.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]model.RetrievedChunk, error)
}

// Sessions enumerates the company-periods present in the corpus.
type Sessions interface {
	ListPeriods(ctx context.Context, sourceType model.SourceType, tics []string) ([]model.CompanyPeriod, error)
	Company(ctx context.Context, tic string) (*model.CompanyInfo, error)
}

// Postgres implements Searcher and Sessions over the core schema.
type Postgres struct {
	pool db.Pool
}

// NewPostgres wraps a pool.
func NewPostgres(pool db.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const transcriptSearch = `
SELECT c.event_id::text, c.chunk_id, c.chunk, t.earnings_date, t.source, NULL::text AS url, t.raw_json_sha256,
	1 - (e.embedding <=> $1::vector) AS cosine_sim
FROM core.earnings_transcript_chunks AS c
JOIN core.earnings_transcript_embeddings AS e
	ON c.event_id = e.event_id AND c.chunk_id = e.chunk_id
JOIN core.earnings_transcripts AS t
	ON c.event_id = t.event_id
WHERE c.tic = $2
	AND c.calendar_year = $3
	AND c.calendar_quarter = $4
	AND 1 - (e.embedding <=> $1::vector) > $5
ORDER BY cosine_sim DESC
LIMIT $6`

const newsSearch = `
SELECT c.event_id::text, c.chunk_id, c.chunk, c.published_at::date, n.source, n.url, n.raw_json_sha256,
	1 - (e.embedding <=> $1::vector) AS cosine_sim
FROM core.news_chunks AS c
JOIN core.news_embeddings AS e
	ON c.event_id = e.event_id AND c.chunk_id = e.chunk_id
JOIN core.news AS n
	ON c.event_id = n.event_id
WHERE c.tic = $2
	AND EXTRACT(YEAR FROM c.published_at) = $3
	AND EXTRACT(MONTH FROM c.published_at) = $4
	AND 1 - (e.embedding <=> $1::vector) > $5
ORDER BY cosine_sim DESC
LIMIT $6`

// Search returns up to TopK chunks above MinSimilarity, most similar first.
// CatalystType and RetrievalQuery are left for the caller to stamp.
func (p *Postgres) Search(ctx context.Context, q Query) ([]model.RetrievedChunk, error) {
	var (
		sql       string
		periodArg int
	)
	switch q.SourceType {
	case model.SourceEarningsTranscript:
		if q.Period.Quarter == nil {
			return nil, eris.New("corpus: transcript search needs a quarter")
		}
		sql, periodArg = transcriptSearch, *q.Period.Quarter
	case model.SourceNews:
		if q.Period.Month == nil {
			return nil, eris.New("corpus: news search needs a month")
		}
		sql, periodArg = newsSearch, *q.Period.Month
	default:
		return nil, eris.Errorf("corpus: unsupported source type %q", q.SourceType)
	}

	rows, err := p.pool.Query(ctx, sql,
		pgvector.NewVector(q.Vector), q.Tic, q.Period.Year, periodArg, q.MinSimilarity, q.TopK)
	if err != nil {
		return nil, eris.Wrapf(err, "corpus: search %s %s %s", q.SourceType, q.Tic, q.Period)
	}
	defer rows.Close()

	var out []model.RetrievedChunk
	for rows.Next() {
		var (
			c      model.RetrievedChunk
			date   *time.Time
			source *string
			sha    *string
		)
		if err := rows.Scan(&c.EventID, &c.ChunkID, &c.Content, &date, &source, &c.URL, &sha, &c.Score); err != nil {
			return nil, eris.Wrap(err, "corpus: scan chunk")
		}
		c.SourceType = q.SourceType
		c.Date = date
		if source != nil {
			c.Source = *source
		}
		if sha != nil {
			c.RawJSONSHA256 = strings.TrimSpace(*sha)
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "corpus: iterate chunks")
}

const newsPeriods = `
WITH news_summary AS (
	SELECT n.tic,
		EXTRACT(YEAR FROM n.published_at)::int AS year,
		EXTRACT(MONTH FROM n.published_at)::int AS month
	FROM core.news n
	%s
	GROUP BY n.tic, year, month
)
SELECT s.tic, s.year, NULL::int AS quarter, s.month,
	COALESCE(sp.name, ''), COALESCE(sp.sector, ''), COALESCE(sp.industry, ''), COALESCE(sp.short_summary, '')
FROM news_summary s
JOIN core.stock_profiles AS sp ON s.tic = sp.tic
ORDER BY s.tic, s.year, s.month`

const transcriptPeriods = `
SELECT e.tic, e.calendar_year::int, e.calendar_quarter::int, NULL::int AS month,
	COALESCE(sp.name, ''), COALESCE(sp.sector, ''), COALESCE(sp.industry, ''), COALESCE(sp.short_summary, '')
FROM core.earnings_transcripts e
JOIN core.stock_profiles AS sp ON e.tic = sp.tic
%s
ORDER BY e.tic, e.calendar_year, e.calendar_quarter`

// ListPeriods enumerates (company, period) rows for a source: news by
// calendar month, transcripts by calendar quarter. A non-empty tics list
// restricts the result to those tickers.
func (p *Postgres) ListPeriods(ctx context.Context, sourceType model.SourceType, tics []string) ([]model.CompanyPeriod, error) {
	var (
		query string
		args  []any
	)
	switch sourceType {
	case model.SourceNews:
		where := ""
		if len(tics) > 0 {
			where = "WHERE n.tic = ANY($1)"
			args = append(args, tics)
		}
		query = fmt.Sprintf(newsPeriods, where)
	case model.SourceEarningsTranscript:
		where := ""
		if len(tics) > 0 {
			where = "WHERE e.tic = ANY($1)"
			args = append(args, tics)
		}
		query = fmt.Sprintf(transcriptPeriods, where)
	default:
		return nil, eris.Errorf("corpus: unsupported source type %q", sourceType)
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "corpus: list %s periods", sourceType)
	}
	defer rows.Close()

	var out []model.CompanyPeriod
	for rows.Next() {
		var cp model.CompanyPeriod
		if err := rows.Scan(&cp.Company.Tic, &cp.Period.Year, &cp.Period.Quarter, &cp.Period.Month,
			&cp.Company.Name, &cp.Company.Sector, &cp.Company.Industry, &cp.Company.Description); err != nil {
			return nil, eris.Wrap(err, "corpus: scan period")
		}
		cp.SourceType = sourceType
		out = append(out, cp)
	}
	return out, eris.Wrap(rows.Err(), "corpus: iterate periods")
}

// Company loads one stock profile. It returns nil when the ticker is unknown.
func (p *Postgres) Company(ctx context.Context, tic string) (*model.CompanyInfo, error) {
	var c model.CompanyInfo
	err := p.pool.QueryRow(ctx,
		`SELECT tic, COALESCE(name, ''), COALESCE(sector, ''), COALESCE(industry, ''), COALESCE(short_summary, '')
		FROM core.stock_profiles WHERE tic = $1`, tic,
	).Scan(&c.Tic, &c.Name, &c.Sector, &c.Industry, &c.Description)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "corpus: company %s", tic)
	}
	return &c, nil
}
