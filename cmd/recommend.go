package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/trialscope/sitescope/internal/metrics"
	"github.com/trialscope/sitescope/internal/model"
	"github.com/trialscope/sitescope/internal/recommend"
	"github.com/trialscope/sitescope/internal/store"
)

var (
	recCondition    string
	recPhase        string
	recIntervention string
	recCountry      string
	recLimit        int
	recCSV          bool
)

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Rank stored sites against a target study profile",
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
			return eris.New("no stored sites; run the pipeline first")
		}

		engine := metrics.New(cfg.MetricsConfig())
		r := recommend.New(engine, cfg.RecommenderConfig(recCountry, recLimit))
		recs := r.Recommend(sites, model.MatchQuery{
			Condition:    recCondition,
			Phase:        recPhase,
			Intervention: recIntervention,
			Country:      recCountry,
		})

		if recCSV {
			return writeRecommendationsCSV(os.Stdout, recs)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RANK\tSITE\tCOUNTRY\tSCORE\tEXPERIENCE\tQUALITY\tCOMPLETION")
		for i, rec := range recs {
			fmt.Fprintf(w, "%d\t%s\t%s\t%.2f\t%d\t%.2f\t%.2f\n",
				i+1, rec.Site.Name, rec.Site.Country, rec.Score,
				rec.Site.ExperienceIndex, rec.Site.DataQualityScore, rec.Site.CompletionRatio)
		}
		return w.Flush()
	},
}

func writeRecommendationsCSV(out io.Writer, recs []recommend.Recommendation) error {
	w := csv.NewWriter(out)
	if err := w.Write([]string{"rank", "site", "country", "score", "experience", "quality", "completion"}); err != nil {
		return eris.Wrap(err, "write csv header")
	}
	for i, rec := range recs {
		row := []string{
			strconv.Itoa(i + 1),
			rec.Site.Name,
			rec.Site.Country,
			strconv.FormatFloat(rec.Score, 'f', 2, 64),
			strconv.Itoa(rec.Site.ExperienceIndex),
			strconv.FormatFloat(rec.Site.DataQualityScore, 'f', 2, 64),
			strconv.FormatFloat(rec.Site.CompletionRatio, 'f', 2, 64),
		}
		if err := w.Write(row); err != nil {
			return eris.Wrap(err, "write csv row")
		}
	}
	w.Flush()
	return eris.Wrap(w.Error(), "flush csv")
}

func init() {
	recommendCmd.Flags().StringVar(&recCondition, "condition", "", "target condition (required)")
	recommendCmd.Flags().StringVar(&recPhase, "phase", "", "target study phase")
	recommendCmd.Flags().StringVar(&recIntervention, "intervention", "", "target intervention type")
	recommendCmd.Flags().StringVar(&recCountry, "country", "", "restrict and score against this country")
	recommendCmd.Flags().IntVar(&recLimit, "limit", 10, "maximum results")
	recommendCmd.Flags().BoolVar(&recCSV, "csv", false, "emit CSV instead of a table")
	_ = recommendCmd.MarkFlagRequired("condition")
	rootCmd.AddCommand(recommendCmd)
}
