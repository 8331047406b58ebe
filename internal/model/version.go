package model

import "time"

// CatalystVersion is an immutable detection record. Its natural key is
// (EventID, ChunkID, CatalystID); Seq is the store-assigned insertion order.
type CatalystVersion struct {
	Catalyst

	EventID        string     `json:"event_id"`
	ChunkID        int        `json:"chunk_id"`
	Tic            string     `json:"tic"`
	Date           *time.Time `json:"date,omitempty"`
	IngestionBatch string     `json:"ingestion_batch"`
	SourceType     SourceType `json:"source_type"`
	Source         string     `json:"source"`
	URL            *string    `json:"url,omitempty"`
	RawJSONSHA256  string     `json:"raw_json_sha256"`
	UpdatedAt      time.Time  `json:"updated_at"`
	Seq            int64      `json:"seq"`
}

// CatalystMaster is the canonical current state of one catalyst.
type CatalystMaster struct {
	Catalyst

	Tic          string     `json:"tic"`
	Date         *time.Time `json:"date,omitempty"`
	MentionCount int        `json:"mention_count"`
	EventIDs     []string   `json:"event_ids"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
