package narrative

import (
	"fmt"

	"github.com/trialscope/sitescope/internal/model"
)

// buildRules assembles the ordered rule table from a threshold set.
// Rules for one metric are mutually exclusive, so a single metric never
// yields both a strength and a weakness.
func buildRules(th Thresholds) []Rule {
	pct := func(v float64) string { return fmt.Sprintf("%.0f%%", v*100) }

	return []Rule{
		// Completion ratio.
		{
			Metric: "completion_ratio", Polarity: Strength,
			When: func(s *model.CanonicalSite, _ float64) bool {
				return s.CompletionRatio >= th.CompletionExceptional
			},
			Message: func(s *model.CanonicalSite, _ float64) string {
				return fmt.Sprintf("Exceptional completion rate (%s) - outstanding operational discipline", pct(s.CompletionRatio))
			},
		},
		{
			Metric: "completion_ratio", Polarity: Strength,
			When: func(s *model.CanonicalSite, _ float64) bool {
				return s.CompletionRatio >= th.CompletionHigh && s.CompletionRatio < th.CompletionExceptional
			},
			Message: func(s *model.CanonicalSite, _ float64) string {
				return fmt.Sprintf("High completion rate (%s) - strong operational discipline", pct(s.CompletionRatio))
			},
		},
		{
			Metric: "completion_ratio", Polarity: Strength,
			When: func(s *model.CanonicalSite, _ float64) bool {
				return s.CompletionRatio >= th.CompletionGood && s.CompletionRatio < th.CompletionHigh
			},
			Message: func(s *model.CanonicalSite, _ float64) string {
				return fmt.Sprintf("Good completion rate (%s)", pct(s.CompletionRatio))
			},
		},
		{
			Metric: "completion_ratio", Polarity: Weakness,
			When: func(s *model.CanonicalSite, _ float64) bool {
				return s.CompletionRatio > 0 && s.CompletionRatio < th.CompletionLow
			},
			Message: func(s *model.CanonicalSite, _ float64) string {
				return fmt.Sprintf("Low completion rate (%s) - possible operational issues", pct(s.CompletionRatio))
			},
		},

		// Experience.
		{
			Metric: "experience", Polarity: Strength,
			When: func(s *model.CanonicalSite, _ float64) bool {
				return s.Counters.Total >= th.ExperienceExtensive
			},
			Message: func(s *model.CanonicalSite, _ float64) string {
				return fmt.Sprintf("Extensive trial experience (%d studies) - highly experienced site", s.Counters.Total)
			},
		},
		{
			Metric: "experience", Polarity: Strength,
			When: func(s *model.CanonicalSite, _ float64) bool {
				return s.Counters.Total >= th.ExperienceSolid && s.Counters.Total < th.ExperienceExtensive
			},
			Message: func(s *model.CanonicalSite, _ float64) string {
				return fmt.Sprintf("Solid experience (%d studies)", s.Counters.Total)
			},
		},
		{
			Metric: "experience", Polarity: Strength,
			When: func(s *model.CanonicalSite, _ float64) bool {
				return s.Counters.Total >= th.ExperienceModerate && s.Counters.Total < th.ExperienceSolid
			},
			Message: func(s *model.CanonicalSite, _ float64) string {
				return fmt.Sprintf("Moderate experience (%d studies)", s.Counters.Total)
			},
		},
		{
			Metric: "experience", Polarity: Weakness,
			When: func(s *model.CanonicalSite, _ float64) bool {
				return s.Counters.Total > 0 && s.Counters.Total < th.ExperienceLimited
			},
			Message: func(s *model.CanonicalSite, _ float64) string {
				return fmt.Sprintf("Limited trial experience (%d studies)", s.Counters.Total)
			},
		},

		// Ongoing activity.
		{
			Metric: "ongoing", Polarity: Strength,
			When: func(s *model.CanonicalSite, _ float64) bool {
				return s.Counters.Ongoing >= th.OngoingActive
			},
			Message: func(s *model.CanonicalSite, _ float64) string {
				return fmt.Sprintf("Currently active with %d ongoing studies", s.Counters.Ongoing)
			},
		},
		{
			Metric: "ongoing", Polarity: Weakness,
			When: func(s *model.CanonicalSite, _ float64) bool {
				return s.Counters.Total > 0 && s.Counters.Ongoing == 0 && s.Counters.Completed > 0
			},
			Message: func(s *model.CanonicalSite, _ float64) string {
				return "No currently active studies"
			},
		},

		// Therapeutic diversity.
		{
			Metric: "diversity", Polarity: Strength,
			When: func(s *model.CanonicalSite, _ float64) bool {
				return len(s.TherapeuticAreas) >= th.DiversityHigh
			},
			Message: func(s *model.CanonicalSite, _ float64) string {
				return fmt.Sprintf("Highly diverse therapeutic portfolio (%d areas)", len(s.TherapeuticAreas))
			},
		},
		{
			Metric: "diversity", Polarity: Strength,
			When: func(s *model.CanonicalSite, _ float64) bool {
				return len(s.TherapeuticAreas) >= th.DiversityGood && len(s.TherapeuticAreas) < th.DiversityHigh
			},
			Message: func(s *model.CanonicalSite, _ float64) string {
				return fmt.Sprintf("Diverse therapeutic portfolio (%d areas)", len(s.TherapeuticAreas))
			},
		},
		{
			Metric: "diversity", Polarity: Strength,
			When: func(s *model.CanonicalSite, _ float64) bool {
				return len(s.TherapeuticAreas) >= th.DiversityModerate && len(s.TherapeuticAreas) < th.DiversityGood
			},
			Message: func(s *model.CanonicalSite, _ float64) string {
				return fmt.Sprintf("Moderate therapeutic diversity (%d areas)", len(s.TherapeuticAreas))
			},
		},
		{
			Metric: "diversity", Polarity: Strength,
			When: func(s *model.CanonicalSite, _ float64) bool {
				n := len(s.TherapeuticAreas)
				return n > 0 && n <= th.SpecializationMax && s.Counters.Total >= th.SpecializationFloor
			},
			Message: func(s *model.CanonicalSite, _ float64) string {
				return fmt.Sprintf("Specialized expertise in %d therapeutic area(s)", len(s.TherapeuticAreas))
			},
		},

		// Data quality.
		{
			Metric: "data_quality", Polarity: Strength,
			When: func(s *model.CanonicalSite, _ float64) bool {
				return s.DataQualityScore >= th.QualityExcellent
			},
			Message: func(s *model.CanonicalSite, _ float64) string {
				return fmt.Sprintf("Excellent data quality (%.2f) - comprehensive reporting", s.DataQualityScore)
			},
		},
		{
			Metric: "data_quality", Polarity: Strength,
			When: func(s *model.CanonicalSite, _ float64) bool {
				return s.DataQualityScore >= th.QualityHigh && s.DataQualityScore < th.QualityExcellent
			},
			Message: func(s *model.CanonicalSite, _ float64) string {
				return fmt.Sprintf("High data quality (%.2f)", s.DataQualityScore)
			},
		},
		{
			Metric: "data_quality", Polarity: Strength,
			When: func(s *model.CanonicalSite, _ float64) bool {
				return s.DataQualityScore >= th.QualityGood && s.DataQualityScore < th.QualityHigh
			},
			Message: func(s *model.CanonicalSite, _ float64) string {
				return fmt.Sprintf("Good data quality (%.2f)", s.DataQualityScore)
			},
		},
		{
			Metric: "data_quality", Polarity: Weakness,
			When: func(s *model.CanonicalSite, _ float64) bool {
				return s.DataQualityScore > 0 && s.DataQualityScore < th.QualityLow
			},
			Message: func(s *model.CanonicalSite, _ float64) string {
				return fmt.Sprintf("Low data quality (%.2f) - incomplete reporting", s.DataQualityScore)
			},
		},

		// Recency. monthsIdle is -1 when no activity date is recorded.
		{
			Metric: "recency", Polarity: Strength,
			When: func(_ *model.CanonicalSite, monthsIdle float64) bool {
				return monthsIdle >= 0 && monthsIdle <= th.RecentMonths
			},
			Message: func(_ *model.CanonicalSite, _ float64) string {
				return "Very recently active (within 6 months)"
			},
		},
		{
			Metric: "recency", Polarity: Strength,
			When: func(_ *model.CanonicalSite, monthsIdle float64) bool {
				return monthsIdle > th.RecentMonths && monthsIdle <= th.ActiveMonths
			},
			Message: func(_ *model.CanonicalSite, _ float64) string {
				return "Recently active (within 12 months)"
			},
		},
		{
			Metric: "recency", Polarity: Weakness,
			When: func(_ *model.CanonicalSite, monthsIdle float64) bool {
				return monthsIdle > th.StaleMonths && monthsIdle <= th.InactiveMonths
			},
			Message: func(_ *model.CanonicalSite, _ float64) string {
				return "Last activity over 2 years ago"
			},
		},
		{
			Metric: "recency", Polarity: Weakness,
			When: func(_ *model.CanonicalSite, monthsIdle float64) bool {
				return monthsIdle > th.InactiveMonths
			},
			Message: func(_ *model.CanonicalSite, _ float64) string {
				return "No recent trial activity (3+ years)"
			},
		},

		// Termination rate.
		{
			Metric: "termination", Polarity: Weakness,
			When: func(s *model.CanonicalSite, _ float64) bool {
				return terminationRate(s) > th.TerminationHigh
			},
			Message: func(s *model.CanonicalSite, _ float64) string {
				return fmt.Sprintf("High termination rate (%s) - significant operational concerns", pct(terminationRate(s)))
			},
		},
		{
			Metric: "termination", Polarity: Weakness,
			When: func(s *model.CanonicalSite, _ float64) bool {
				r := terminationRate(s)
				return r > th.TerminationElevated && r <= th.TerminationHigh
			},
			Message: func(s *model.CanonicalSite, _ float64) string {
				return fmt.Sprintf("Elevated termination rate (%s)", pct(terminationRate(s)))
			},
		},
		{
			Metric: "termination", Polarity: Strength,
			When: func(s *model.CanonicalSite, _ float64) bool {
				return terminationRate(s) == 0 && s.Counters.Completed > th.ZeroTermMinCompleted
			},
			Message: func(_ *model.CanonicalSite, _ float64) string {
				return "Zero termination rate - excellent track record"
			},
		},

		// Completed-study track record.
		{
			Metric: "track_record", Polarity: Strength,
			When: func(s *model.CanonicalSite, _ float64) bool {
				return s.Counters.Completed >= th.TrackStrong
			},
			Message: func(s *model.CanonicalSite, _ float64) string {
				return fmt.Sprintf("Strong track record with %d completed studies", s.Counters.Completed)
			},
		},
		{
			Metric: "track_record", Polarity: Strength,
			When: func(s *model.CanonicalSite, _ float64) bool {
				return s.Counters.Completed >= th.TrackGood && s.Counters.Completed < th.TrackStrong
			},
			Message: func(s *model.CanonicalSite, _ float64) string {
				return fmt.Sprintf("Good track record with %d completed studies", s.Counters.Completed)
			},
		},

		// Phase expertise.
		{
			Metric: "phase", Polarity: Strength,
			When: func(s *model.CanonicalSite, _ float64) bool {
				return s.AvgPhase >= th.PhaseAdvanced
			},
			Message: func(s *model.CanonicalSite, _ float64) string {
				return fmt.Sprintf("Experience with advanced phase trials (avg Phase %.1f)", s.AvgPhase)
			},
		},
		{
			Metric: "phase", Polarity: Strength,
			When: func(s *model.CanonicalSite, _ float64) bool {
				return s.AvgPhase >= th.PhaseMid && s.AvgPhase < th.PhaseAdvanced
			},
			Message: func(s *model.CanonicalSite, _ float64) string {
				return fmt.Sprintf("Phase 2-3 expertise (avg Phase %.1f)", s.AvgPhase)
			},
		},

		// Enrollment capacity.
		{
			Metric: "enrollment", Polarity: Strength,
			When: func(s *model.CanonicalSite, _ float64) bool {
				return s.AvgEnrollment >= th.EnrollLarge
			},
			Message: func(s *model.CanonicalSite, _ float64) string {
				return fmt.Sprintf("Large enrollment capacity (avg %.0f patients)", s.AvgEnrollment)
			},
		},
		{
			Metric: "enrollment", Polarity: Strength,
			When: func(s *model.CanonicalSite, _ float64) bool {
				return s.AvgEnrollment >= th.EnrollGood && s.AvgEnrollment < th.EnrollLarge
			},
			Message: func(s *model.CanonicalSite, _ float64) string {
				return fmt.Sprintf("Good enrollment capacity (avg %.0f patients)", s.AvgEnrollment)
			},
		},
	}
}
