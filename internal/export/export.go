// Package export renders filtered run results to xlsx workbooks, CSV,
// and JSON files.
package export

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/trendscope/viralscan/internal/model"
)

// Format identifies an output serialization.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// Request carries everything the writers need for one run's output.
type Request struct {
	Videos      []model.VideoRecord
	Summary     []model.SummaryEntry
	CollectedAt time.Time
	Dir         string
	Formats     []Format
}

// Write renders the run into each requested format under req.Dir and
// returns the paths written. Files share a timestamped base name so a
// run's outputs sort together.
func Write(req Request) ([]string, error) {
	if len(req.Formats) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(req.Dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "export: create output dir")
	}

	base := "viral_videos_" + req.CollectedAt.UTC().Format("20060102_150405")
	var paths []string
	for _, f := range req.Formats {
		path := filepath.Join(req.Dir, base+"."+string(f))
		var err error
		switch f {
		case FormatXLSX:
			err = writeXLSX(path, req)
		case FormatCSV:
			err = writeCSV(path, req)
		case FormatJSON:
			err = writeJSON(path, req)
		default:
			err = eris.Errorf("export: unknown format %q", f)
		}
		if err != nil {
			return paths, err
		}
		zap.S().Infow("wrote output", "format", f, "path", path, "videos", len(req.Videos))
		paths = append(paths, path)
	}
	return paths, nil
}

// ParseFormats validates a list of format names from config or flags.
func ParseFormats(names []string) ([]Format, error) {
	var out []Format
	for _, n := range names {
		f := Format(n)
		switch f {
		case FormatXLSX, FormatCSV, FormatJSON:
			out = append(out, f)
		default:
			return nil, eris.Errorf("export: unknown format %q", n)
		}
	}
	return out, nil
}
