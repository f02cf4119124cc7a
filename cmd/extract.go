package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/trialscope/sitescope/pkg/ctgov"
)

var (
	extractCondition string
	extractPhase     string
	extractStatus    string
	extractCountry   string
	extractMaxPages  int
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Fetch studies from the registry into the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		q := ctgov.Query{
			Condition: extractCondition,
			Phase:     extractPhase,
			Status:    extractStatus,
			Country:   extractCountry,
			PageSize:  cfg.Registry.PageSize,
			MaxPages:  extractMaxPages,
		}
		trials, malformed, err := registryClient().FetchStudies(ctx, q)
		if err != nil {
			return eris.Wrap(err, "fetch studies")
		}

		saved, err := st.SaveTrials(ctx, trials)
		if err != nil {
			return eris.Wrap(err, "save trials")
		}

		zap.L().Info("extract complete",
			zap.String("query", q.String()),
			zap.Int("saved", saved),
			zap.Int("malformed", malformed),
		)
		return nil
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractCondition, "condition", "", "disease or condition filter")
	extractCmd.Flags().StringVar(&extractPhase, "phase", "", "study phase filter")
	extractCmd.Flags().StringVar(&extractStatus, "status", "", "overall status filter")
	extractCmd.Flags().StringVar(&extractCountry, "country", "", "location country filter")
	extractCmd.Flags().IntVar(&extractMaxPages, "max-pages", 0, "maximum pages to fetch (0 = all)")
	rootCmd.AddCommand(extractCmd)
}
