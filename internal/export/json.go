package export

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"

	"github.com/trendscope/viralscan/internal/model"
)

type jsonDocument struct {
	CollectedAt time.Time            `json:"collected_at"`
	Count       int                  `json:"count"`
	Summary     []model.SummaryEntry `json:"summary,omitempty"`
	Videos      []model.VideoRecord  `json:"videos"`
}

func writeJSON(path string, req Request) error {
	doc := jsonDocument{
		CollectedAt: req.CollectedAt.UTC(),
		Count:       len(req.Videos),
		Summary:     req.Summary,
		Videos:      req.Videos,
	}
	if doc.Videos == nil {
		doc.Videos = []model.VideoRecord{}
	}

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "export: create json")
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return eris.Wrap(enc.Encode(doc), "export: encode json")
}
