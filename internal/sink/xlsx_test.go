package sink

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func TestXLSXSink_Write(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counts.xlsx")

	err := NewXLSX(path).Write(context.Background(), testCounts())
	require.NoError(t, err)

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)

	sheet := f.Sheets[0]
	assert.Equal(t, "counts", sheet.Name)
	require.Len(t, sheet.Rows, 3)

	assert.Equal(t, "sampleID", sheet.Rows[0].Cells[0].Value)
	assert.Equal(t, "count", sheet.Rows[0].Cells[11].Value)

	assert.Equal(t, "CARSP1", sheet.Rows[1].Cells[8].Value)
	assert.Equal(t, "2018-06-04", sheet.Rows[1].Cells[5].Value)

	days, err := sheet.Rows[1].Cells[6].Int()
	require.NoError(t, err)
	assert.Equal(t, 14, days)
}

func TestXLSXSink_EmptyCounts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counts.xlsx")

	err := NewXLSX(path).Write(context.Background(), nil)
	require.NoError(t, err)

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets[0].Rows, 1)
}
