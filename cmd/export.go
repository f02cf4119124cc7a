package main

import (
	"encoding/csv"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/trialscope/sitescope/internal/model"
	"github.com/trialscope/sitescope/internal/store"
)

var (
	exportFormat string
	exportOut    string
)

var exportHeader = []string{
	"site", "city", "country", "trials", "completed", "ongoing", "terminated", "withdrawn",
	"phases", "therapeutic_areas", "interventions", "investigators",
	"avg_phase", "avg_enrollment", "completion_ratio", "data_quality", "experience",
	"cluster", "last_active", "strengths", "weaknesses",
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the site master to CSV or XLSX",
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

		switch exportFormat {
		case "csv":
			err = exportCSV(exportOut, sites)
		case "xlsx":
			err = exportXLSX(exportOut, sites)
		default:
			return eris.Errorf("export: unsupported format %q (want csv or xlsx)", exportFormat)
		}
		if err != nil {
			return err
		}

		zap.L().Info("exported site master",
			zap.String("format", exportFormat),
			zap.String("path", exportOut),
			zap.Int("sites", len(sites)))
		return nil
	},
}

func siteRow(s *model.CanonicalSite) []string {
	lastActive := ""
	if s.LastActive != nil {
		lastActive = s.LastActive.Format(time.DateOnly)
	}
	clusterLabel := ""
	if s.ClusterLabel != nil {
		clusterLabel = strconv.Itoa(*s.ClusterLabel)
	}
	return []string{
		s.Name,
		s.City,
		s.Country,
		strconv.Itoa(s.Counters.Total),
		strconv.Itoa(s.Counters.Completed),
		strconv.Itoa(s.Counters.Ongoing),
		strconv.Itoa(s.Counters.Terminated),
		strconv.Itoa(s.Counters.Withdrawn),
		strings.Join(s.Phases, "; "),
		strings.Join(s.TherapeuticAreas, "; "),
		strings.Join(s.Interventions, "; "),
		strings.Join(s.Investigators, "; "),
		strconv.FormatFloat(s.AvgPhase, 'f', 2, 64),
		strconv.FormatFloat(s.AvgEnrollment, 'f', 1, 64),
		strconv.FormatFloat(s.CompletionRatio, 'f', 2, 64),
		strconv.FormatFloat(s.DataQualityScore, 'f', 2, 64),
		strconv.Itoa(s.ExperienceIndex),
		clusterLabel,
		lastActive,
		strings.Join(s.Narrative.Strengths, "; "),
		strings.Join(s.Narrative.Weaknesses, "; "),
	}
}

func exportCSV(path string, sites []*model.CanonicalSite) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "create csv file")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(exportHeader); err != nil {
		return eris.Wrap(err, "write csv header")
	}
	for _, s := range sites {
		if err := w.Write(siteRow(s)); err != nil {
			return eris.Wrap(err, "write csv row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "flush csv")
	}
	return eris.Wrap(f.Close(), "close csv file")
}

func exportXLSX(path string, sites []*model.CanonicalSite) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Sites")
	if err != nil {
		return eris.Wrap(err, "add sheet")
	}

	header := sheet.AddRow()
	for _, col := range exportHeader {
		header.AddCell().SetString(col)
	}
	for _, s := range sites {
		row := sheet.AddRow()
		for _, val := range siteRow(s) {
			row.AddCell().SetString(val)
		}
	}

	summary, err := file.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "add sheet")
	}
	totals := map[string]int{}
	for _, s := range sites {
		totals[s.Country]++
	}
	head := summary.AddRow()
	head.AddCell().SetString("country")
	head.AddCell().SetString("sites")
	for country, n := range totals {
		row := summary.AddRow()
		row.AddCell().SetString(country)
		row.AddCell().SetInt(n)
	}

	return eris.Wrap(file.Save(path), "save workbook")
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "output format: csv or xlsx")
	exportCmd.Flags().StringVar(&exportOut, "out", "sites.csv", "output file path")
	rootCmd.AddCommand(exportCmd)
}
