package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/trialscope/sitescope/internal/cluster"
	"github.com/trialscope/sitescope/internal/store"
)

var clusterCount int

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Group stored sites into behavioral clusters",
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

		clusterCfg := cfg.ClustererConfig()
		if clusterCount > 0 {
			clusterCfg.Count = clusterCount
		}
		result := cluster.Assign(sites, clusterCfg)

		if err := st.ReplaceSites(ctx, sites); err != nil {
			return eris.Wrap(err, "replace sites")
		}

		zap.L().Info("cluster complete",
			zap.Int("sites", len(sites)),
			zap.Int("clusters", clusterCfg.Count),
			zap.Int("iterations", result.Iterations),
			zap.Bool("converged", result.Converged),
		)
		return nil
	},
}

func init() {
	clusterCmd.Flags().IntVar(&clusterCount, "clusters", 0, "cluster count (default from config)")
	rootCmd.AddCommand(clusterCmd)
}
