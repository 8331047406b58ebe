package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var masterCfg = UpsertConfig{
	Table:        "core.catalyst_master",
	Columns:      []string{"catalyst_id", "title", "created_at"},
	ConflictKeys: []string{"catalyst_id"},
	UpdateCols:   []string{"title"},
}

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.Background(), nil, masterCfg, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_NoColumns(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        "core.test",
		ConflictKeys: []string{"id"},
	}, [][]any{{1, "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkUpsert_NoConflictKeys(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:   "core.test",
		Columns: []string{"id", "name"},
	}, [][]any{{1, "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkUpsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_core_catalyst_master" \(LIKE "core"."catalyst_master" INCLUDING DEFAULTS\) ON COMMIT DROP`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_core_catalyst_master"}, masterCfg.Columns).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "core"."catalyst_master" .* ON CONFLICT \("catalyst_id"\) DO UPDATE SET "title" = EXCLUDED."title"$`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectExec(`DROP TABLE "_tmp_upsert_core_catalyst_master"`).WillReturnResult(pgxmock.NewResult("DROP", 0))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, masterCfg, [][]any{{"a", "A", nil}, {"b", "B", nil}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_CopyErrorRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_core_catalyst_master"}, masterCfg.Columns).
		WillReturnError(fmt.Errorf("copy failed"))
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, masterCfg, [][]any{{"a", "A", nil}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY into temp table for core.catalyst_master")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertSQL_DoNothing(t *testing.T) {
	cfg := UpsertConfig{
		Table:        "core.catalyst_versions",
		Columns:      []string{"event_id", "chunk_id", "catalyst_id"},
		ConflictKeys: []string{"event_id", "chunk_id", "catalyst_id"},
		DoNothing:    true,
	}
	got := cfg.insertSQL(`"_tmp"`)
	assert.Equal(t,
		`INSERT INTO "core"."catalyst_versions" ("event_id", "chunk_id", "catalyst_id") SELECT "event_id", "chunk_id", "catalyst_id" FROM "_tmp" ON CONFLICT ("event_id", "chunk_id", "catalyst_id") DO NOTHING`,
		got)
}

func TestInsertSQL_DefaultUpdateCols(t *testing.T) {
	cfg := UpsertConfig{
		Table:        "t",
		Columns:      []string{"id", "a", "b"},
		ConflictKeys: []string{"id"},
	}
	assert.Contains(t, cfg.insertSQL(`"_tmp"`), `DO UPDATE SET "a" = EXCLUDED."a", "b" = EXCLUDED."b"`)
}

func TestInsertSQL_NewerOnly(t *testing.T) {
	cfg := UpsertConfig{
		Table:        "core.catalyst_master",
		Columns:      []string{"catalyst_id", "title", "updated_at"},
		ConflictKeys: []string{"catalyst_id"},
		UpdateCols:   []string{"title", "updated_at"},
		NewerOnly:    "updated_at",
	}
	assert.Equal(t,
		`INSERT INTO "core"."catalyst_master" ("catalyst_id", "title", "updated_at") SELECT "catalyst_id", "title", "updated_at" FROM "_tmp" ON CONFLICT ("catalyst_id") DO UPDATE SET "title" = EXCLUDED."title", "updated_at" = EXCLUDED."updated_at" WHERE "catalyst_master"."updated_at" <= EXCLUDED."updated_at"`,
		cfg.insertSQL(`"_tmp"`))
}

func TestInsertSQL_NewerOnlyIgnoredWithDoNothing(t *testing.T) {
	cfg := UpsertConfig{
		Table:        "t",
		Columns:      []string{"id", "updated_at"},
		ConflictKeys: []string{"id"},
		DoNothing:    true,
		NewerOnly:    "updated_at",
	}
	assert.NotContains(t, cfg.insertSQL(`"_tmp"`), "WHERE")
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"simple", `"simple"`},
		{"core.catalyst_master", `"core"."catalyst_master"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeTable(tt.input))
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	assert.Equal(t, `"id", "name", "value"`, quoteAndJoin([]string{"id", "name", "value"}))
}
