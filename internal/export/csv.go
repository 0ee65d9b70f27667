package export

import (
	"encoding/csv"
	"os"

	"github.com/rotisserie/eris"

	"github.com/trendscope/viralscan/internal/model"
)

func writeCSV(path string, req Request) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "export: create csv")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(model.Columns); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	for _, rec := range req.Videos {
		if err := w.Write(rec.Row(req.CollectedAt)); err != nil {
			return eris.Wrap(err, "export: write csv row")
		}
	}
	w.Flush()
	return eris.Wrap(w.Error(), "export: flush csv")
}
