package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/catalyst-cli/internal/model"
	"github.com/sells-group/catalyst-cli/internal/store"
)

func TestExportWorkbook(t *testing.T) {
	st := seededStore(t)
	path := filepath.Join(t.TempDir(), "catalysts.xlsx")

	n, err := exportWorkbook(context.Background(), st, store.CatalystFilter{}, path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	masters := f.Sheet["masters"]
	versions := f.Sheet["versions"]
	require.NotNil(t, masters)
	require.NotNil(t, versions)

	require.Len(t, masters.Rows, 3)
	assert.Equal(t, "catalyst_id", masters.Rows[0].Cells[0].String())
	assert.Equal(t, "g1", masters.Rows[1].Cells[0].String())
	assert.Equal(t, "AAPL", masters.Rows[1].Cells[1].String())
	assert.Equal(t, "ev0,ev1", masters.Rows[1].Cells[14].String())
	assert.Equal(t, "r1", masters.Rows[2].Cells[0].String())

	// header + two g1 versions + one r1 version
	require.Len(t, versions.Rows, 4)
	assert.Equal(t, "announced", versions.Rows[1].Cells[6].String())
	assert.Equal(t, "updated", versions.Rows[2].Cells[6].String())
	assert.Equal(t, "https://example.com/aapl-q3", versions.Rows[1].Cells[19].String())
}

func TestExportWorkbook_Filter(t *testing.T) {
	st := seededStore(t)
	path := filepath.Join(t.TempDir(), "msft.xlsx")

	n, err := exportWorkbook(context.Background(), st, store.CatalystFilter{Tic: "MSFT"}, path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

type mockExportReader struct {
	mock.Mock
}

func (m *mockExportReader) ListCatalysts(ctx context.Context, filter store.CatalystFilter) ([]model.CatalystMaster, error) {
	args := m.Called(ctx, filter)
	masters, _ := args.Get(0).([]model.CatalystMaster)
	return masters, args.Error(1)
}

func (m *mockExportReader) Versions(ctx context.Context, catalystID string) ([]model.CatalystVersion, error) {
	args := m.Called(ctx, catalystID)
	versions, _ := args.Get(0).([]model.CatalystVersion)
	return versions, args.Error(1)
}

func TestExportWorkbook_Pages(t *testing.T) {
	full := make([]model.CatalystMaster, exportPageSize)
	for i := range full {
		full[i] = model.CatalystMaster{Catalyst: model.Catalyst{CatalystID: fmt.Sprintf("c%d", i)}}
	}
	last := []model.CatalystMaster{{Catalyst: model.Catalyst{CatalystID: "tail"}}}

	r := &mockExportReader{}
	r.On("ListCatalysts", mock.Anything, store.CatalystFilter{Limit: exportPageSize}).Return(full, nil).Once()
	r.On("ListCatalysts", mock.Anything, store.CatalystFilter{Limit: exportPageSize, Offset: exportPageSize}).Return(last, nil).Once()
	r.On("Versions", mock.Anything, mock.Anything).Return([]model.CatalystVersion(nil), nil)

	n, err := exportWorkbook(context.Background(), r, store.CatalystFilter{}, filepath.Join(t.TempDir(), "all.xlsx"))
	require.NoError(t, err)
	assert.Equal(t, exportPageSize+1, n)
	r.AssertExpectations(t)
}

func TestExportWorkbook_ListError(t *testing.T) {
	r := &mockExportReader{}
	r.On("ListCatalysts", mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

	_, err := exportWorkbook(context.Background(), r, store.CatalystFilter{}, filepath.Join(t.TempDir(), "x.xlsx"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}
