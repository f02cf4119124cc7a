package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/trialscope/sitescope/internal/metrics"
	"github.com/trialscope/sitescope/internal/narrative"
	"github.com/trialscope/sitescope/internal/store"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Score stored sites and regenerate their narratives",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		sites, err := st.ListSites(ctx, store.SiteFilter{})
		if err != nil {
			return eris.Wrap(err, "list sites")
		}
		if len(sites) == 0 {
			return eris.New("no stored sites; run aggregate first")
		}

		thresholds := narrative.DefaultThresholds()
		if cfg.Narrative.RulesFile != "" {
			thresholds, err = narrative.LoadThresholds(cfg.Narrative.RulesFile)
			if err != nil {
				return err
			}
		}

		metrics.New(cfg.MetricsConfig()).Apply(sites)
		narrative.New(thresholds).Apply(sites)

		if err := st.ReplaceSites(ctx, sites); err != nil {
			return eris.Wrap(err, "replace sites")
		}

		zap.L().Info("metrics complete", zap.Int("sites", len(sites)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(metricsCmd)
}
