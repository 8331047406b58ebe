package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/catalyst-cli/internal/db"
	"github.com/sells-group/catalyst-cli/internal/model"
)

// PostgresStore implements Store on the core schema.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig = db.PoolConfig

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. Close does not close it.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying pool for read-only subsystems such as the corpus.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE SCHEMA IF NOT EXISTS core;

CREATE TABLE IF NOT EXISTS core.catalyst_versions (
	seq              BIGSERIAL,
	catalyst_id      TEXT NOT NULL,
	catalyst_type    TEXT NOT NULL,
	state            TEXT NOT NULL,
	title            TEXT NOT NULL,
	summary          TEXT NOT NULL DEFAULT '',
	evidence         TEXT NOT NULL DEFAULT '',
	time_horizon     SMALLINT,
	certainty        TEXT,
	impact_area      TEXT,
	sentiment        SMALLINT NOT NULL DEFAULT 0,
	impact_magnitude SMALLINT NOT NULL DEFAULT 0,
	event_id         TEXT NOT NULL,
	chunk_id         INTEGER NOT NULL,
	tic              TEXT NOT NULL,
	date             DATE,
	ingestion_batch  TEXT NOT NULL,
	source_type      TEXT NOT NULL,
	source           TEXT NOT NULL DEFAULT '',
	url              TEXT,
	raw_json_sha256  TEXT NOT NULL DEFAULT '',
	updated_at       TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (event_id, chunk_id, catalyst_id)
);

CREATE INDEX IF NOT EXISTS idx_catalyst_versions_catalyst ON core.catalyst_versions(catalyst_id, updated_at, seq);

CREATE TABLE IF NOT EXISTS core.catalyst_master (
	catalyst_id      TEXT PRIMARY KEY,
	catalyst_type    TEXT NOT NULL,
	state            TEXT NOT NULL,
	title            TEXT NOT NULL,
	summary          TEXT NOT NULL DEFAULT '',
	evidence         TEXT NOT NULL DEFAULT '',
	time_horizon     SMALLINT,
	certainty        TEXT,
	impact_area      TEXT,
	sentiment        SMALLINT NOT NULL DEFAULT 0,
	impact_magnitude SMALLINT NOT NULL DEFAULT 0,
	tic              TEXT NOT NULL,
	date             DATE,
	mention_count    INTEGER NOT NULL DEFAULT 1,
	event_ids        TEXT[] NOT NULL DEFAULT '{}',
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_catalyst_master_tic_type ON core.catalyst_master(tic, catalyst_type);

CREATE TABLE IF NOT EXISTS core.catalyst_runs (
	id          TEXT PRIMARY KEY,
	source_type TEXT NOT NULL,
	status      TEXT NOT NULL,
	sessions    INTEGER NOT NULL DEFAULT 0,
	report      JSONB,
	error       TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_catalyst_runs_created ON core.catalyst_runs(created_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

var (
	versionColumns = append(append([]string{}, catalystColumns...),
		"event_id", "chunk_id", "tic", "date", "ingestion_batch", "source_type",
		"source", "url", "raw_json_sha256", "updated_at")

	masterColumns = append(append([]string{}, catalystColumns...),
		"tic", "date", "mention_count", "event_ids", "created_at", "updated_at")

	masterUpdateColumns = append(append([]string{}, catalystColumns[1:]...),
		"tic", "date", "mention_count", "event_ids", "updated_at")
)

const (
	pgVersionSelect = `SELECT ` + catalystColumnList + `, event_id, chunk_id, tic, date, ingestion_batch, source_type, source, url, raw_json_sha256, updated_at, seq FROM core.catalyst_versions`
	pgMasterSelect  = `SELECT ` + catalystColumnList + `, tic, date, mention_count, event_ids, created_at, updated_at FROM core.catalyst_master`
)

func versionRow(v model.CatalystVersion) []any {
	cols := fromCatalyst(v.Catalyst)
	return append(cols.values(),
		v.EventID, v.ChunkID, v.Tic, v.Date, v.IngestionBatch, string(v.SourceType),
		v.Source, v.URL, v.RawJSONSHA256, v.UpdatedAt)
}

func masterRow(m model.CatalystMaster) []any {
	cols := fromCatalyst(m.Catalyst)
	eventIDs := m.EventIDs
	if eventIDs == nil {
		eventIDs = []string{}
	}
	return append(cols.values(),
		m.Tic, m.Date, m.MentionCount, eventIDs, m.CreatedAt, m.UpdatedAt)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPGMaster(row rowScanner) (model.CatalystMaster, error) {
	var (
		cols catalystCols
		m    model.CatalystMaster
	)
	dest := append(cols.dest(), &m.Tic, &m.Date, &m.MentionCount, &m.EventIDs, &m.CreatedAt, &m.UpdatedAt)
	if err := row.Scan(dest...); err != nil {
		return m, err
	}
	m.Catalyst = cols.catalyst()
	return m, nil
}

func scanPGVersion(row rowScanner) (model.CatalystVersion, error) {
	var (
		cols       catalystCols
		v          model.CatalystVersion
		sourceType string
	)
	dest := append(cols.dest(), &v.EventID, &v.ChunkID, &v.Tic, &v.Date, &v.IngestionBatch, &sourceType,
		&v.Source, &v.URL, &v.RawJSONSHA256, &v.UpdatedAt, &v.Seq)
	if err := row.Scan(dest...); err != nil {
		return v, err
	}
	v.Catalyst = cols.catalyst()
	v.SourceType = model.SourceType(sourceType)
	return v, nil
}

func (s *PostgresStore) CurrentCatalysts(ctx context.Context, tic string, catalystType model.CatalystType) ([]model.CatalystMaster, error) {
	rows, err := s.pool.Query(ctx,
		pgMasterSelect+` WHERE tic = $1 AND catalyst_type = $2 ORDER BY created_at, catalyst_id`,
		tic, string(catalystType),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: current catalysts %s/%s", tic, catalystType)
	}
	defer rows.Close()

	var out []model.CatalystMaster
	for rows.Next() {
		m, err := scanPGMaster(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan master")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate masters")
}

func (s *PostgresStore) MasterExists(ctx context.Context, ids []string) (map[string]bool, error) {
	found := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	rows, err := s.pool.Query(ctx, `SELECT catalyst_id FROM core.catalyst_master WHERE catalyst_id = ANY($1)`, ids)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: master exists")
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan master id")
		}
		found[id] = true
	}
	return found, eris.Wrap(rows.Err(), "postgres: iterate master ids")
}

func (s *PostgresStore) RecordDetections(ctx context.Context, versions []model.CatalystVersion, seeds []model.CatalystMaster) (int, error) {
	if len(versions) == 0 && len(seeds) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: record detections: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	vrows := make([][]any, len(versions))
	for i, v := range versions {
		vrows[i] = versionRow(v)
	}
	inserted, err := db.BulkUpsertTx(ctx, tx, db.UpsertConfig{
		Table:        "core.catalyst_versions",
		Columns:      versionColumns,
		ConflictKeys: []string{"event_id", "chunk_id", "catalyst_id"},
		DoNothing:    true,
	}, vrows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: record detections: versions")
	}

	srows := make([][]any, len(seeds))
	for i, m := range seeds {
		srows[i] = masterRow(m)
	}
	if _, err := db.BulkUpsertTx(ctx, tx, db.UpsertConfig{
		Table:        "core.catalyst_master",
		Columns:      masterColumns,
		ConflictKeys: []string{"catalyst_id"},
		DoNothing:    true,
	}, srows); err != nil {
		return 0, eris.Wrap(err, "postgres: record detections: seed masters")
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: record detections: commit tx")
	}
	return int(inserted), nil
}

func (s *PostgresStore) Versions(ctx context.Context, catalystID string) ([]model.CatalystVersion, error) {
	rows, err := s.pool.Query(ctx, pgVersionSelect+` WHERE catalyst_id = $1 ORDER BY updated_at, seq`, catalystID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: versions %s", catalystID)
	}
	defer rows.Close()

	var out []model.CatalystVersion
	for rows.Next() {
		v, err := scanPGVersion(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan version")
		}
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate versions")
}

// UpsertMasters writes compacted masters. A stored master whose updated_at is
// newer than the incoming one is left alone and not counted.
func (s *PostgresStore) UpsertMasters(ctx context.Context, masters []model.CatalystMaster) (int, error) {
	rows := make([][]any, len(masters))
	for i, m := range masters {
		rows[i] = masterRow(m)
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "core.catalyst_master",
		Columns:      masterColumns,
		ConflictKeys: []string{"catalyst_id"},
		UpdateCols:   masterUpdateColumns,
		NewerOnly:    "updated_at",
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert masters")
	}
	return int(n), nil
}

func (s *PostgresStore) GetCatalyst(ctx context.Context, catalystID string) (*model.CatalystMaster, error) {
	m, err := scanPGMaster(s.pool.QueryRow(ctx, pgMasterSelect+` WHERE catalyst_id = $1`, catalystID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get catalyst %s", catalystID)
	}
	return &m, nil
}

func (s *PostgresStore) ListCatalysts(ctx context.Context, filter CatalystFilter) ([]model.CatalystMaster, error) {
	query := pgMasterSelect + ` WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Tic != "" {
		query += fmt.Sprintf(` AND tic = $%d`, argIdx)
		args = append(args, filter.Tic)
		argIdx++
	}
	if filter.CatalystType != "" {
		query += fmt.Sprintf(` AND catalyst_type = $%d`, argIdx)
		args = append(args, string(filter.CatalystType))
		argIdx++
	}
	if filter.State != "" {
		query += fmt.Sprintf(` AND state = $%d`, argIdx)
		args = append(args, string(filter.State))
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY tic, catalyst_type, updated_at DESC LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list catalysts")
	}
	defer rows.Close()

	var out []model.CatalystMaster
	for rows.Next() {
		m, err := scanPGMaster(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan master")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate masters")
}

func (s *PostgresStore) CreateRun(ctx context.Context, sourceType model.SourceType, sessions int) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO core.catalyst_runs (id, source_type, status, sessions, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, string(sourceType), string(model.RunStatusRunning), sessions, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:         id,
		SourceType: sourceType,
		Status:     model.RunStatusRunning,
		Sessions:   sessions,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (s *PostgresStore) UpdateRun(ctx context.Context, runID string, status model.RunStatus, report json.RawMessage, errMsg string) error {
	var reportArg any
	if len(report) > 0 {
		reportArg = []byte(report)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE core.catalyst_runs SET status = $1, report = $2, error = $3, updated_at = $4 WHERE id = $5`,
		string(status), reportArg, errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

const pgRunSelect = `SELECT id, source_type, status, sessions, report, error, created_at, updated_at FROM core.catalyst_runs`

func scanPGRun(row rowScanner) (model.Run, error) {
	var (
		r          model.Run
		sourceType string
		status     string
		report     []byte
	)
	if err := row.Scan(&r.ID, &sourceType, &status, &r.Sessions, &report, &r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return r, err
	}
	r.SourceType = model.SourceType(sourceType)
	r.Status = model.RunStatus(status)
	if len(report) > 0 {
		r.Report = json.RawMessage(report)
	}
	return r, nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	r, err := scanPGRun(s.pool.QueryRow(ctx, pgRunSelect+` WHERE id = $1`, runID))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := pgRunSelect + ` WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPGRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate runs")
}
