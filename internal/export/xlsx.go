package export

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/trendscope/viralscan/internal/model"
)

// writeXLSX produces a workbook with a Videos sheet in model.Columns
// order plus a Summary sheet of run statistics.
func writeXLSX(path string, req Request) error {
	file := xlsx.NewFile()

	videos, err := file.AddSheet("Videos")
	if err != nil {
		return eris.Wrap(err, "export: add videos sheet")
	}
	header := videos.AddRow()
	for _, col := range model.Columns {
		header.AddCell().Value = col
	}
	for _, rec := range req.Videos {
		row := videos.AddRow()
		for _, cell := range rec.Row(req.CollectedAt) {
			row.AddCell().Value = cell
		}
	}

	summary, err := file.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "export: add summary sheet")
	}
	for _, entry := range req.Summary {
		row := summary.AddRow()
		row.AddCell().Value = entry.Label
		row.AddCell().Value = entry.Value
	}

	if err := file.Save(path); err != nil {
		return eris.Wrap(err, "export: save workbook")
	}
	return nil
}
