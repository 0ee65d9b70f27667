package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/trendscope/viralscan/internal/export"
	"github.com/trendscope/viralscan/internal/model"
	"github.com/trendscope/viralscan/internal/pipeline"
	"github.com/trendscope/viralscan/internal/registry"
	"github.com/trendscope/viralscan/internal/store"
	"github.com/trendscope/viralscan/pkg/brightdata"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.Path
		if path == "" {
			path = "viralscan.db"
		}
		return store.NewSQLiteStore(ctx, path)
	case "postgres":
		return store.NewPostgresStore(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initRegistry() (*registry.Profile, error) {
	reg, err := loadRegistry()
	if err != nil {
		return nil, err
	}
	lang := "ja"
	if len(cfg.Filter.Languages) > 0 {
		lang = cfg.Filter.Languages[0]
	}
	profile, ok := reg.Profile(lang)
	if !ok {
		return nil, eris.Errorf("no market profile for language %q", lang)
	}
	return profile, nil
}

func loadRegistry() (*registry.Registry, error) {
	if cfg.Collect.ProfilePath != "" {
		return registry.LoadFromFile(cfg.Collect.ProfilePath)
	}
	return registry.Default()
}

// outputFormats maps the config toggles to export formats.
func outputFormats() []export.Format {
	var formats []export.Format
	if cfg.Output.XLSX {
		formats = append(formats, export.FormatXLSX)
	}
	if cfg.Output.CSV {
		formats = append(formats, export.FormatCSV)
	}
	if cfg.Output.JSON {
		formats = append(formats, export.FormatJSON)
	}
	return formats
}

func fileExporter(formats []export.Format) pipeline.Exporter {
	return func(result *model.RunResult, collectedAt time.Time) ([]string, error) {
		return export.Write(export.Request{
			Videos:      result.Videos,
			Summary:     pipeline.Summarize(result.Videos, result.Stats, collectedAt),
			CollectedAt: collectedAt,
			Dir:         cfg.Output.Dir,
			Formats:     formats,
		})
	}
}

type pipelineEnv struct {
	Pipeline *pipeline.Pipeline
	Store    store.Store
}

func (e *pipelineEnv) Close() {
	_ = e.Store.Close()
}

func initPipeline(ctx context.Context, opts ...pipeline.PipelineOption) (*pipelineEnv, error) {
	if cfg.BrightData.APIKey == "" {
		return nil, eris.New("bright data API key is required (VIRALSCAN_BRIGHTDATA_API_KEY)")
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	profile, err := initRegistry()
	if err != nil {
		st.Close()
		return nil, err
	}

	client := brightdata.NewClient(cfg.BrightData.APIKey, cfg.BrightData.DatasetID,
		brightdata.WithBaseURL(cfg.BrightData.BaseURL),
		brightdata.WithTimeout(time.Duration(cfg.BrightData.TimeoutSecs)*time.Second))

	p, err := pipeline.New(cfg, client, st, profile, opts...)
	if err != nil {
		st.Close()
		return nil, err
	}
	return &pipelineEnv{Pipeline: p, Store: st}, nil
}
