package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpsertConfig defines the parameters for a bulk upsert operation.
type UpsertConfig struct {
	Table        string   // target table (e.g., "core.catalyst_master")
	Columns      []string // all columns being inserted
	ConflictKeys []string // columns forming the unique constraint
	UpdateCols   []string // columns to update on conflict; nil = all non-conflict columns
	// DoNothing skips conflicting rows instead of updating them. The returned
	// count is then the number of rows actually inserted.
	DoNothing bool
	// NewerOnly names a column that guards the update: a conflicting row is
	// only overwritten when its stored value is <= the incoming one. Skipped
	// rows are not counted.
	NewerOnly string
}

// BulkUpsert runs BulkUpsertTx in its own transaction.
func BulkUpsert(ctx context.Context, pool Pool, cfg UpsertConfig, rows [][]any) (int64, error) {
	if err := cfg.validate(rows); err != nil || len(rows) == 0 {
		return 0, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: upsert: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	n, err := BulkUpsertTx(ctx, tx, cfg, rows)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: upsert: commit tx")
	}
	return n, nil
}

// BulkUpsertTx upserts rows through a temp table inside the caller's transaction:
//  1. CREATE TEMP TABLE ... (LIKE target) ON COMMIT DROP
//  2. COPY rows into the temp table
//  3. INSERT INTO target SELECT ... FROM temp ON CONFLICT (keys) DO UPDATE/NOTHING
func BulkUpsertTx(ctx context.Context, q Querier, cfg UpsertConfig, rows [][]any) (int64, error) {
	if err := cfg.validate(rows); err != nil || len(rows) == 0 {
		return 0, err
	}

	tempTable := pgx.Identifier{tempTableName(cfg.Table)}.Sanitize()

	createSQL := fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		tempTable, sanitizeTable(cfg.Table),
	)
	if _, err := q.Exec(ctx, createSQL); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: create temp table for %s", cfg.Table)
	}

	if _, err := q.CopyFrom(ctx, pgx.Identifier{tempTableName(cfg.Table)}, cfg.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: COPY into temp table for %s", cfg.Table)
	}

	tag, err := q.Exec(ctx, cfg.insertSQL(tempTable))
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert: INSERT ON CONFLICT for %s", cfg.Table)
	}

	// ON COMMIT DROP only fires at commit; a second upsert into the same
	// table inside one transaction needs the name free again.
	if _, err := q.Exec(ctx, "DROP TABLE "+tempTable); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: drop temp table for %s", cfg.Table)
	}

	return tag.RowsAffected(), nil
}

func (cfg UpsertConfig) validate(rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	if len(cfg.Columns) == 0 {
		return eris.New("db: upsert: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return eris.New("db: upsert: no conflict keys specified")
	}
	return nil
}

func (cfg UpsertConfig) insertSQL(tempTable string) string {
	colList := quoteAndJoin(cfg.Columns)
	insert := fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s)",
		sanitizeTable(cfg.Table), colList, colList, tempTable, quoteAndJoin(cfg.ConflictKeys),
	)
	if cfg.DoNothing {
		return insert + " DO NOTHING"
	}

	updateCols := cfg.UpdateCols
	if updateCols == nil {
		conflictSet := make(map[string]bool, len(cfg.ConflictKeys))
		for _, k := range cfg.ConflictKeys {
			conflictSet[k] = true
		}
		for _, c := range cfg.Columns {
			if !conflictSet[c] {
				updateCols = append(updateCols, c)
			}
		}
	}

	setClauses := make([]string, len(updateCols))
	for i, col := range updateCols {
		id := pgx.Identifier{col}.Sanitize()
		setClauses[i] = fmt.Sprintf("%s = EXCLUDED.%s", id, id)
	}
	update := insert + " DO UPDATE SET " + strings.Join(setClauses, ", ")
	if cfg.NewerOnly != "" {
		id := pgx.Identifier{cfg.NewerOnly}.Sanitize()
		update += fmt.Sprintf(" WHERE %s.%s <= EXCLUDED.%s", pgx.Identifier{baseTable(cfg.Table)}.Sanitize(), id, id)
	}
	return update
}

func tempTableName(table string) string {
	return "_tmp_upsert_" + strings.ReplaceAll(table, ".", "_")
}

// sanitizeTable handles schema-qualified table names like "core.catalyst_master".
func sanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

// baseTable strips the schema, since ON CONFLICT refers to the existing row by
// its bare table name.
func baseTable(table string) string {
	if i := strings.LastIndex(table, "."); i >= 0 {
		return table[i+1:]
	}
	return table
}

// quoteAndJoin quotes each column name and joins with commas.
func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
