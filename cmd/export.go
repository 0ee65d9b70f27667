package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/trendscope/viralscan/internal/export"
	"github.com/trendscope/viralscan/internal/pipeline"
)

var (
	exportFormats []string
	exportOutDir  string
)

var exportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Re-export the result of a stored run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return err
		}
		if run.Result == nil {
			return eris.Errorf("run %s has no result to export", run.ID)
		}
		if run.Result.Error != "" {
			return eris.Errorf("run %s failed: %s", run.ID, run.Result.Error)
		}

		formats := outputFormats()
		if len(exportFormats) > 0 {
			formats, err = export.ParseFormats(exportFormats)
			if err != nil {
				return err
			}
		}
		dir := cfg.Output.Dir
		if exportOutDir != "" {
			dir = exportOutDir
		}

		// The run's original timestamp keeps re-exports byte-stable.
		collectedAt := run.CreatedAt
		paths, err := export.Write(export.Request{
			Videos:      run.Result.Videos,
			Summary:     pipeline.Summarize(run.Result.Videos, run.Result.Stats, collectedAt),
			CollectedAt: collectedAt,
			Dir:         dir,
			Formats:     formats,
		})
		if err != nil {
			return err
		}

		for _, p := range paths {
			fmt.Println(p)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringSliceVar(&exportFormats, "format", nil, "output formats (xlsx, csv, json; default from config)")
	exportCmd.Flags().StringVar(&exportOutDir, "output-dir", "", "output directory (default from config)")
	rootCmd.AddCommand(exportCmd)
}
