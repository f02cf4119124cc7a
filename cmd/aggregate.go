package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/trialscope/sitescope/internal/aggregate"
	"github.com/trialscope/sitescope/internal/resolve"
	"github.com/trialscope/sitescope/internal/similarity"
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Resolve stored trials into canonical sites and fold their profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		trials, err := st.LoadTrials(ctx)
		if err != nil {
			return eris.Wrap(err, "load trials")
		}
		if len(trials) == 0 {
			return eris.New("no stored trials; run extract first")
		}

		resolver := resolve.New(similarity.NewTokenSetScorer(), cfg.Fuzzy.Threshold)
		sites, malformed := resolver.Run(trials)
		aggregate.Run(sites, trials)

		if err := st.ReplaceSites(ctx, sites); err != nil {
			return eris.Wrap(err, "replace sites")
		}

		zap.L().Info("aggregate complete",
			zap.Int("trials", len(trials)),
			zap.Int("sites", len(sites)),
			zap.Int("malformed", malformed),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(aggregateCmd)
}
