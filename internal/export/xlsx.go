// Package export writes committed work logs to spreadsheets.
package export

import (
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/worklog-cli/internal/model"
)

// SheetName is the name of the single sheet WriteWorkLogs produces.
const SheetName = "work_logs"

// Header is the first row of the sheet.
var Header = []string{
	"log_id", "submitter_id", "work_date", "work_category",
	"field_id", "field_name", "crop_id", "crop_name", "materials",
	"quantity", "unit", "work_count", "notes",
	"strategy", "confidence", "status", "created_at",
}

// WriteWorkLogs writes logs as an XLSX workbook to w, one row per log.
func WriteWorkLogs(w io.Writer, logs []model.WorkLog) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return eris.Wrap(err, "xlsx: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range Header {
		header.AddCell().SetString(h)
	}
	for i := range logs {
		writeRow(sheet.AddRow(), &logs[i])
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "xlsx: write workbook")
	}
	return nil
}

func writeRow(row *xlsx.Row, l *model.WorkLog) {
	str := func(s string) { row.AddCell().SetString(s) }

	str(l.LogID)
	str(l.SubmitterID)
	str(l.WorkDate.Format("2006-01-02"))
	str(string(l.WorkCategory))
	str(l.FieldID)
	str(l.FieldName)
	str(l.CropID)
	str(l.CropName)
	str(materialNames(l.Materials))

	if l.Quantity != nil {
		row.AddCell().SetFloat(*l.Quantity)
	} else {
		str("")
	}
	str(l.Unit)
	if l.WorkCount != nil {
		row.AddCell().SetInt(*l.WorkCount)
	} else {
		str("")
	}
	str(l.Notes)

	str(l.Strategy)
	row.AddCell().SetFloat(l.Confidence)
	str(l.Status)
	str(l.CreatedAt.UTC().Format("2006-01-02 15:04:05"))
}

func materialNames(ms []model.ResolvedMaterial) string {
	names := make([]string, 0, len(ms))
	for _, m := range ms {
		name := m.Name
		if name == "" {
			name = m.Input
		}
		names = append(names, name)
	}
	return strings.Join(names, ", ")
}
