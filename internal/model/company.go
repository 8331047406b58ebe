package model

import (
	"fmt"
	"time"
)

// CompanyInfo is the company context handed to both classification stages.
type CompanyInfo struct {
	Tic         string `json:"tic" yaml:"tic"`
	Name        string `json:"company_name" yaml:"name"`
	Industry    string `json:"industry" yaml:"industry"`
	Sector      string `json:"sector" yaml:"sector"`
	Description string `json:"company_description" yaml:"description"`
}

// Period is a calendar year plus exactly one of quarter (transcripts) or
// month (news).
type Period struct {
	Year    int  `json:"year" yaml:"year"`
	Quarter *int `json:"quarter,omitempty" yaml:"quarter,omitempty"`
	Month   *int `json:"month,omitempty" yaml:"month,omitempty"`
}

func (p Period) String() string {
	switch {
	case p.Quarter != nil:
		return fmt.Sprintf("%dQ%d", p.Year, *p.Quarter)
	case p.Month != nil:
		return fmt.Sprintf("%d-%02d", p.Year, *p.Month)
	default:
		return fmt.Sprintf("%d", p.Year)
	}
}

// Compare orders periods by the month they start in: -1 if p starts before q,
// 1 if after, 0 if together. A bare year starts in January.
func (p Period) Compare(q Period) int {
	a, b := p.startMonth(), q.startMonth()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (p Period) startMonth() int {
	m := 1
	switch {
	case p.Quarter != nil:
		m = (*p.Quarter-1)*3 + 1
	case p.Month != nil:
		m = *p.Month
	}
	return p.Year*12 + m
}

// QueryParameters scopes one session's retrieval.
type QueryParameters struct {
	Tic          string       `json:"tic"`
	Period       Period       `json:"period"`
	SourceType   SourceType   `json:"source_type"`
	CatalystType CatalystType `json:"catalyst_type"`
	TopK         int          `json:"top_k"`
}

// ChunkKey identifies a chunk across overlapping retrieval queries.
type ChunkKey struct {
	EventID string
	ChunkID int
}

// RetrievedChunk is one piece of evidence returned by similarity search.
type RetrievedChunk struct {
	EventID        string       `json:"event_id"`
	ChunkID        int          `json:"chunk_id"`
	SourceType     SourceType   `json:"source_type"`
	CatalystType   CatalystType `json:"catalyst_type"`
	RetrievalQuery string       `json:"retrieval_query"`
	Date           *time.Time   `json:"date,omitempty"`
	Content        string       `json:"content"`
	Score          float64      `json:"score"`
	Source         string       `json:"source"`
	URL            *string      `json:"url,omitempty"`
	RawJSONSHA256  string       `json:"raw_json_sha256"`
}

// Key returns the (event_id, chunk_id) identity of the chunk.
func (c RetrievedChunk) Key() ChunkKey {
	return ChunkKey{EventID: c.EventID, ChunkID: c.ChunkID}
}

// CompanyPeriod is one (company, period) row discovered in the corpus, the
// unit the batch command expands into one session per catalyst type.
type CompanyPeriod struct {
	Company    CompanyInfo `json:"company" yaml:"company"`
	SourceType SourceType  `json:"source_type" yaml:"source_type"`
	Period     Period      `json:"period" yaml:"period"`
}
