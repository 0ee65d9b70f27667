package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/trendscope/viralscan/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "viralscan",
	Short: "TikTok viral video collection pipeline",
	Long:  "Collects trending TikTok videos via Bright Data, filters them against a virality policy for a target market, and exports the survivors to xlsx/csv/json.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
