package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/trialscope/sitescope/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "sitescope",
	Short: "Clinical trial site evaluation pipeline",
	Long:  "Fetches studies from ClinicalTrials.gov, deduplicates trial sites across name variants, scores and clusters them, and ranks sites against sponsor queries.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := c.Validate(); err != nil {
			return err
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
