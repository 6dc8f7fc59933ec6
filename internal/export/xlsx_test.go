package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/worklog-cli/internal/model"
)

func readRows(t *testing.T, data []byte) [][]string {
	t.Helper()
	f, err := xlsx.OpenBinary(data)
	require.NoError(t, err)
	sheet, ok := f.Sheet[SheetName]
	require.True(t, ok, "sheet %q missing", SheetName)

	var rows [][]string
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows
}

func TestWriteWorkLogs(t *testing.T) {
	logs := []model.WorkLog{
		{
			LogID:        "LOG-20261017-ABCDEF12",
			SubmitterID:  "worker-7",
			WorkDate:     time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC),
			WorkCategory: model.CategoryPrevention,
			FieldID:      "f1",
			FieldName:    "Greenhouse 1",
			Materials: []model.ResolvedMaterial{
				{ID: "m1", Name: "Fungicide-X", Input: "fungicide-x"},
				{Input: "mystery mix"},
			},
			Quantity:   model.Float(500),
			Unit:       "ml",
			WorkCount:  model.Int(2),
			Status:     model.WorkLogStatusConfirmed,
			Strategy:   model.StrategyAuto,
			Confidence: 0.9,
			CreatedAt:  time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC),
		},
		{
			LogID:       "LOG-20261018-00000001",
			SubmitterID: "worker-8",
			WorkDate:    time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC),
			CropName:    "Tomato",
			Status:      model.WorkLogStatusConfirmed,
			Strategy:    model.StrategyConfirmed,
			CreatedAt:   time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC),
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteWorkLogs(&buf, logs))

	rows := readRows(t, buf.Bytes())
	require.Len(t, rows, 3)
	assert.Equal(t, Header, rows[0])

	first := rows[1]
	assert.Equal(t, "LOG-20261017-ABCDEF12", first[0])
	assert.Equal(t, "2026-10-17", first[2])
	assert.Equal(t, "prevention", first[3])
	assert.Equal(t, "Fungicide-X, mystery mix", first[8])
	assert.Equal(t, "500", first[9])
	assert.Equal(t, "2", first[11])
	assert.Equal(t, "2026-10-18 09:30:00", first[16])

	second := rows[2]
	assert.Equal(t, "Tomato", second[7])
	assert.Empty(t, second[8])
	assert.Empty(t, second[9])
	assert.Empty(t, second[11])
}

func TestWriteWorkLogs_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteWorkLogs(&buf, nil))

	rows := readRows(t, buf.Bytes())
	require.Len(t, rows, 1)
	assert.Equal(t, Header, rows[0])
}
