package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/catalyst-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It is meant for
// local runs and tests; timestamps are stored as fixed-width UTC text so
// they sort correctly as strings.
type SQLiteStore struct {
	db *sql.DB
}

const tsLayout = "2006-01-02T15:04:05.000000000Z"

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One writer at a time; concurrent sessions queue here instead of
	// failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS catalyst_versions (
	seq              INTEGER PRIMARY KEY AUTOINCREMENT,
	catalyst_id      TEXT NOT NULL,
	catalyst_type    TEXT NOT NULL,
	state            TEXT NOT NULL,
	title            TEXT NOT NULL,
	summary          TEXT NOT NULL DEFAULT '',
	evidence         TEXT NOT NULL DEFAULT '',
	time_horizon     INTEGER,
	certainty        TEXT,
	impact_area      TEXT,
	sentiment        INTEGER NOT NULL DEFAULT 0,
	impact_magnitude INTEGER NOT NULL DEFAULT 0,
	event_id         TEXT NOT NULL,
	chunk_id         INTEGER NOT NULL,
	tic              TEXT NOT NULL,
	date             TEXT,
	ingestion_batch  TEXT NOT NULL,
	source_type      TEXT NOT NULL,
	source           TEXT NOT NULL DEFAULT '',
	url              TEXT,
	raw_json_sha256  TEXT NOT NULL DEFAULT '',
	updated_at       TEXT NOT NULL,
	UNIQUE (event_id, chunk_id, catalyst_id)
);

CREATE INDEX IF NOT EXISTS idx_catalyst_versions_catalyst ON catalyst_versions(catalyst_id, updated_at, seq);

CREATE TABLE IF NOT EXISTS catalyst_master (
	catalyst_id      TEXT PRIMARY KEY,
	catalyst_type    TEXT NOT NULL,
	state            TEXT NOT NULL,
	title            TEXT NOT NULL,
	summary          TEXT NOT NULL DEFAULT '',
	evidence         TEXT NOT NULL DEFAULT '',
	time_horizon     INTEGER,
	certainty        TEXT,
	impact_area      TEXT,
	sentiment        INTEGER NOT NULL DEFAULT 0,
	impact_magnitude INTEGER NOT NULL DEFAULT 0,
	tic              TEXT NOT NULL,
	date             TEXT,
	mention_count    INTEGER NOT NULL DEFAULT 1,
	event_ids        TEXT NOT NULL DEFAULT '[]',
	created_at       TEXT NOT NULL,
	updated_at       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_catalyst_master_tic_type ON catalyst_master(tic, catalyst_type);

CREATE TABLE IF NOT EXISTS catalyst_runs (
	id          TEXT PRIMARY KEY,
	source_type TEXT NOT NULL,
	status      TEXT NOT NULL,
	sessions    INTEGER NOT NULL DEFAULT 0,
	report      TEXT,
	error       TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_catalyst_runs_created ON catalyst_runs(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func formatTS(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTS(s string) (time.Time, error) {
	t, err := time.Parse(tsLayout, s)
	if err != nil {
		return time.Parse(time.RFC3339Nano, s)
	}
	return t, nil
}

func formatDate(d *time.Time) *string {
	if d == nil {
		return nil
	}
	s := d.Format(dateLayout)
	return &s
}

func parseDate(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

const (
	sqliteVersionSelect = `SELECT ` + catalystColumnList + `, event_id, chunk_id, tic, date, ingestion_batch, source_type, source, url, raw_json_sha256, updated_at, seq FROM catalyst_versions`
	sqliteMasterSelect  = `SELECT ` + catalystColumnList + `, tic, date, mention_count, event_ids, created_at, updated_at FROM catalyst_master`
)

func scanSQLiteMaster(row rowScanner) (model.CatalystMaster, error) {
	var (
		cols                 catalystCols
		m                    model.CatalystMaster
		date                 *string
		eventIDs             string
		createdAt, updatedAt string
	)
	dest := append(cols.dest(), &m.Tic, &date, &m.MentionCount, &eventIDs, &createdAt, &updatedAt)
	if err := row.Scan(dest...); err != nil {
		return m, err
	}
	m.Catalyst = cols.catalyst()

	var err error
	if m.Date, err = parseDate(date); err != nil {
		return m, eris.Wrap(err, "sqlite: parse master date")
	}
	if err := json.Unmarshal([]byte(eventIDs), &m.EventIDs); err != nil {
		return m, eris.Wrap(err, "sqlite: unmarshal event_ids")
	}
	if m.CreatedAt, err = parseTS(createdAt); err != nil {
		return m, eris.Wrap(err, "sqlite: parse created_at")
	}
	if m.UpdatedAt, err = parseTS(updatedAt); err != nil {
		return m, eris.Wrap(err, "sqlite: parse updated_at")
	}
	return m, nil
}

func scanSQLiteVersion(row rowScanner) (model.CatalystVersion, error) {
	var (
		cols       catalystCols
		v          model.CatalystVersion
		date       *string
		sourceType string
		updatedAt  string
	)
	dest := append(cols.dest(), &v.EventID, &v.ChunkID, &v.Tic, &date, &v.IngestionBatch, &sourceType,
		&v.Source, &v.URL, &v.RawJSONSHA256, &updatedAt, &v.Seq)
	if err := row.Scan(dest...); err != nil {
		return v, err
	}
	v.Catalyst = cols.catalyst()
	v.SourceType = model.SourceType(sourceType)

	var err error
	if v.Date, err = parseDate(date); err != nil {
		return v, eris.Wrap(err, "sqlite: parse version date")
	}
	if v.UpdatedAt, err = parseTS(updatedAt); err != nil {
		return v, eris.Wrap(err, "sqlite: parse updated_at")
	}
	return v, nil
}

func (s *SQLiteStore) queryMasters(ctx context.Context, query string, args ...any) ([]model.CatalystMaster, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query masters")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.CatalystMaster
	for rows.Next() {
		m, err := scanSQLiteMaster(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan master")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate masters")
}

func (s *SQLiteStore) CurrentCatalysts(ctx context.Context, tic string, catalystType model.CatalystType) ([]model.CatalystMaster, error) {
	out, err := s.queryMasters(ctx,
		sqliteMasterSelect+` WHERE tic = ? AND catalyst_type = ? ORDER BY created_at, catalyst_id`,
		tic, string(catalystType),
	)
	return out, eris.Wrapf(err, "sqlite: current catalysts %s/%s", tic, catalystType)
}

func (s *SQLiteStore) MasterExists(ctx context.Context, ids []string) (map[string]bool, error) {
	found := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT catalyst_id FROM catalyst_master WHERE catalyst_id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: master exists")
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan master id")
		}
		found[id] = true
	}
	return found, eris.Wrap(rows.Err(), "sqlite: iterate master ids")
}

const (
	sqliteInsertVersion = `INSERT INTO catalyst_versions (` + catalystColumnList +
		`, event_id, chunk_id, tic, date, ingestion_batch, source_type, source, url, raw_json_sha256, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (event_id, chunk_id, catalyst_id) DO NOTHING`

	sqliteMasterValues = `(` + catalystColumnList + `, tic, date, mention_count, event_ids, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqliteSeedMaster = `INSERT INTO catalyst_master ` + sqliteMasterValues + `
		ON CONFLICT (catalyst_id) DO NOTHING`

	sqliteUpsertMaster = `INSERT INTO catalyst_master ` + sqliteMasterValues + `
		ON CONFLICT (catalyst_id) DO UPDATE SET
			catalyst_type = excluded.catalyst_type,
			state = excluded.state,
			title = excluded.title,
			summary = excluded.summary,
			evidence = excluded.evidence,
			time_horizon = excluded.time_horizon,
			certainty = excluded.certainty,
			impact_area = excluded.impact_area,
			sentiment = excluded.sentiment,
			impact_magnitude = excluded.impact_magnitude,
			tic = excluded.tic,
			date = excluded.date,
			mention_count = excluded.mention_count,
			event_ids = excluded.event_ids,
			updated_at = excluded.updated_at
		WHERE catalyst_master.updated_at <= excluded.updated_at`
)

func sqliteMasterArgs(m model.CatalystMaster) ([]any, error) {
	eventIDs := m.EventIDs
	if eventIDs == nil {
		eventIDs = []string{}
	}
	ids, err := json.Marshal(eventIDs)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal event_ids")
	}
	cols := fromCatalyst(m.Catalyst)
	return append(cols.values(), m.Tic, formatDate(m.Date), m.MentionCount, string(ids),
		formatTS(m.CreatedAt), formatTS(m.UpdatedAt)), nil
}

func (s *SQLiteStore) RecordDetections(ctx context.Context, versions []model.CatalystVersion, seeds []model.CatalystMaster) (int, error) {
	if len(versions) == 0 && len(seeds) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: record detections: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	inserted := 0
	for _, v := range versions {
		cols := fromCatalyst(v.Catalyst)
		args := append(cols.values(), v.EventID, v.ChunkID, v.Tic, formatDate(v.Date), v.IngestionBatch,
			string(v.SourceType), v.Source, v.URL, v.RawJSONSHA256, formatTS(v.UpdatedAt))
		res, err := tx.ExecContext(ctx, sqliteInsertVersion, args...)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert version %s/%d/%s", v.EventID, v.ChunkID, v.CatalystID)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		inserted += int(n)
	}

	for _, m := range seeds {
		args, err := sqliteMasterArgs(m)
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, sqliteSeedMaster, args...); err != nil {
			return 0, eris.Wrapf(err, "sqlite: seed master %s", m.CatalystID)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: record detections: commit tx")
	}
	return inserted, nil
}

func (s *SQLiteStore) Versions(ctx context.Context, catalystID string) ([]model.CatalystVersion, error) {
	rows, err := s.db.QueryContext(ctx, sqliteVersionSelect+` WHERE catalyst_id = ? ORDER BY updated_at, seq`, catalystID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: versions %s", catalystID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.CatalystVersion
	for rows.Next() {
		v, err := scanSQLiteVersion(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan version")
		}
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate versions")
}

// UpsertMasters writes compacted masters, skipping any whose stored
// updated_at is newer. The count excludes skipped rows.
func (s *SQLiteStore) UpsertMasters(ctx context.Context, masters []model.CatalystMaster) (int, error) {
	if len(masters) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert masters: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	var n int64
	for _, m := range masters {
		args, err := sqliteMasterArgs(m)
		if err != nil {
			return 0, err
		}
		res, err := tx.ExecContext(ctx, sqliteUpsertMaster, args...)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert master %s", m.CatalystID)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert master %s: rows affected", m.CatalystID)
		}
		n += affected
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert masters: commit tx")
	}
	return int(n), nil
}

func (s *SQLiteStore) GetCatalyst(ctx context.Context, catalystID string) (*model.CatalystMaster, error) {
	m, err := scanSQLiteMaster(s.db.QueryRowContext(ctx, sqliteMasterSelect+` WHERE catalyst_id = ?`, catalystID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get catalyst %s", catalystID)
	}
	return &m, nil
}

func (s *SQLiteStore) ListCatalysts(ctx context.Context, filter CatalystFilter) ([]model.CatalystMaster, error) {
	query := sqliteMasterSelect + ` WHERE 1=1`
	var args []any

	if filter.Tic != "" {
		query += ` AND tic = ?`
		args = append(args, filter.Tic)
	}
	if filter.CatalystType != "" {
		query += ` AND catalyst_type = ?`
		args = append(args, string(filter.CatalystType))
	}
	if filter.State != "" {
		query += ` AND state = ?`
		args = append(args, string(filter.State))
	}
	query += ` ORDER BY tic, catalyst_type, updated_at DESC LIMIT ? OFFSET ?`
	args = append(args, listLimit(filter.Limit), filter.Offset)

	out, err := s.queryMasters(ctx, query, args...)
	return out, eris.Wrap(err, "sqlite: list catalysts")
}

func (s *SQLiteStore) CreateRun(ctx context.Context, sourceType model.SourceType, sessions int) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO catalyst_runs (id, source_type, status, sessions, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, string(sourceType), string(model.RunStatusRunning), sessions, formatTS(now), formatTS(now),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
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

func (s *SQLiteStore) UpdateRun(ctx context.Context, runID string, status model.RunStatus, report json.RawMessage, errMsg string) error {
	var reportArg *string
	if len(report) > 0 {
		r := string(report)
		reportArg = &r
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE catalyst_runs SET status = ?, report = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), reportArg, errMsg, formatTS(time.Now()), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

const sqliteRunSelect = `SELECT id, source_type, status, sessions, report, error, created_at, updated_at FROM catalyst_runs`

func scanSQLiteRun(row rowScanner) (model.Run, error) {
	var (
		r                    model.Run
		sourceType, status   string
		report               *string
		createdAt, updatedAt string
	)
	if err := row.Scan(&r.ID, &sourceType, &status, &r.Sessions, &report, &r.Error, &createdAt, &updatedAt); err != nil {
		return r, err
	}
	r.SourceType = model.SourceType(sourceType)
	r.Status = model.RunStatus(status)
	if report != nil {
		r.Report = json.RawMessage(*report)
	}

	var err error
	if r.CreatedAt, err = parseTS(createdAt); err != nil {
		return r, eris.Wrap(err, "sqlite: parse created_at")
	}
	if r.UpdatedAt, err = parseTS(updatedAt); err != nil {
		return r, eris.Wrap(err, "sqlite: parse updated_at")
	}
	return r, nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	r, err := scanSQLiteRun(s.db.QueryRowContext(ctx, sqliteRunSelect+` WHERE id = ?`, runID))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return &r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := sqliteRunSelect + ` WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, listLimit(filter.Limit), filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", entity, id)
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}
