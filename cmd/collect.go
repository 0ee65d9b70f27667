package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/trendscope/viralscan/internal/model"
	"github.com/trendscope/viralscan/internal/pipeline"
)

var (
	collectMethod  string
	collectNoFiles bool
	collectOutDir  string
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run a collection pass and export viral videos",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		method := model.Method(collectMethod)
		if !method.Valid() {
			return eris.Errorf("invalid method %q (want discover, hashtags, or hybrid)", collectMethod)
		}
		if collectOutDir != "" {
			cfg.Output.Dir = collectOutDir
		}

		var opts []pipeline.PipelineOption
		if !collectNoFiles {
			opts = append(opts, pipeline.WithExporter(fileExporter(outputFormats())))
		}

		env, err := initPipeline(ctx, opts...)
		if err != nil {
			return err
		}
		defer env.Close()

		run, err := env.Pipeline.Run(ctx, method)
		if err != nil {
			return eris.Wrap(err, "collection run")
		}

		zap.L().Info("collection complete",
			zap.String("run_id", run.ID),
			zap.Int("raw", run.Result.Stats.RawCount),
			zap.Int("viral", run.Result.Stats.AfterFilter),
			zap.Float64("filter_rate_pct", run.Result.Stats.FilterRate()),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run.Result.Stats)
	},
}

func init() {
	collectCmd.Flags().StringVar(&collectMethod, "method", string(model.MethodHybrid), "collection method (discover, hashtags, hybrid)")
	collectCmd.Flags().BoolVar(&collectNoFiles, "no-files", false, "skip writing output files, persist to store only")
	collectCmd.Flags().StringVar(&collectOutDir, "output-dir", "", "output directory (default from config)")
	rootCmd.AddCommand(collectCmd)
}
