package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/trialscope/sitescope/internal/model"
)

var testNow = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func testEngine() *Engine {
	return NewWithClock(DefaultConfig(), func() time.Time { return testNow })
}

func TestCompletionRatio_TwoThirds(t *testing.T) {
	// {COMPLETED, COMPLETED, TERMINATED} -> 2/3 -> 0.67.
	c := model.SiteCounters{Total: 3, Completed: 2, Terminated: 1}
	assert.Equal(t, 0.67, CompletionRatio(c))
}

func TestCompletionRatio_NoConcludedStudies(t *testing.T) {
	// {RECRUITING, RECRUITING} is the normal zero case, not an error.
	c := model.SiteCounters{Total: 2, Ongoing: 2}
	assert.Equal(t, 0.0, CompletionRatio(c))
}

func TestCompletionRatio_AllCompleted(t *testing.T) {
	c := model.SiteCounters{Total: 5, Completed: 5}
	assert.Equal(t, 1.0, CompletionRatio(c))
}

func TestCompletionRatio_InUnitInterval(t *testing.T) {
	cases := []model.SiteCounters{
		{},
		{Total: 1, Withdrawn: 1},
		{Total: 10, Completed: 3, Terminated: 4, Withdrawn: 3},
		{Total: 7, Completed: 1, Ongoing: 6},
	}
	for _, c := range cases {
		r := CompletionRatio(c)
		assert.GreaterOrEqual(t, r, 0.0)
		assert.LessOrEqual(t, r, 1.0)
	}
}

func fullSite() *model.CanonicalSite {
	last := testNow.AddDate(0, -3, 0)
	return &model.CanonicalSite{
		Name:             "Test Hospital",
		City:             "Boston",
		Country:          "United States",
		TherapeuticAreas: []string{"Breast Cancer"},
		Investigators:    []string{"Dr. A"},
		AvgPhase:         2.5,
		AvgEnrollment:    120,
		LastActive:       &last,
		Counters:         model.SiteCounters{Total: 10, Completed: 6, Ongoing: 4},
	}
}

func TestDataQuality_FullyCompleteRecent(t *testing.T) {
	// All ten fields present, activity inside the recency window:
	// 0.6*1.0 + 0.4*1.0 = 1.0.
	assert.Equal(t, 1.0, testEngine().DataQuality(fullSite()))
}

func TestDataQuality_RecencyTiers(t *testing.T) {
	e := testEngine()
	site := fullSite()

	old := testNow.AddDate(0, -18, 0)
	site.LastActive = &old
	assert.Equal(t, 0.92, e.DataQuality(site)) // 0.6 + 0.4*0.8

	older := testNow.AddDate(0, -30, 0)
	site.LastActive = &older
	assert.Equal(t, 0.84, e.DataQuality(site)) // 0.6 + 0.4*0.6

	ancient := testNow.AddDate(-4, 0, 0)
	site.LastActive = &ancient
	assert.Equal(t, 0.76, e.DataQuality(site)) // 0.6 + 0.4*0.4
}

func TestDataQuality_SparseSite(t *testing.T) {
	site := &model.CanonicalSite{
		Name:     "unknown",
		Country:  "Japan",
		Counters: model.SiteCounters{Total: 1, Ongoing: 1},
	}
	// 2/10 fields filled, no activity date keeps full recency weight:
	// 0.6*0.2 + 0.4*1.0 = 0.52.
	assert.Equal(t, 0.52, testEngine().DataQuality(site))
}

func TestDataQuality_InUnitInterval(t *testing.T) {
	q := testEngine().DataQuality(&model.CanonicalSite{})
	assert.GreaterOrEqual(t, q, 0.0)
	assert.LessOrEqual(t, q, 1.0)
}

func TestApply_Scores(t *testing.T) {
	site := fullSite()
	testEngine().Apply([]*model.CanonicalSite{site})
	assert.Equal(t, 1.0, site.CompletionRatio) // 6 completed, 0 failed
	assert.Equal(t, 10, site.ExperienceIndex)
	assert.Equal(t, 1.0, site.DataQualityScore)
}

func TestMatchScore_FullMatch(t *testing.T) {
	e := testEngine()
	site := fullSite()
	site.Phases = []string{"Phase 3"}
	site.Interventions = []string{"DRUG"}

	q := model.MatchQuery{
		Condition:    "cancer",
		Phase:        "Phase 3",
		Intervention: "DRUG",
		Country:      "United States",
	}
	// 0.4*1 + 0.2*1 + 0.2*1 + 0.2*1 = 1.0.
	assert.Equal(t, 1.0, e.MatchScore(site, q))
}

func TestMatchScore_AdjacentPhaseSameRegion(t *testing.T) {
	e := testEngine()
	site := fullSite()
	site.Country = "Canada"
	site.Phases = []string{"Phase 2"}
	site.Interventions = []string{"DEVICE"}

	q := model.MatchQuery{
		Condition:    "cancer",
		Phase:        "Phase 3",
		Intervention: "DRUG",
		Country:      "United States",
	}
	// 0.4*1 + 0.2*0.5 + 0.2*0 + 0.2*0.3 = 0.56.
	assert.Equal(t, 0.56, e.MatchScore(site, q))
}

func TestMatchScore_NoTherapeuticSubstring(t *testing.T) {
	e := testEngine()
	site := fullSite()
	site.TherapeuticAreas = []string{"Diabetes Mellitus"}
	site.Phases = nil
	site.Interventions = nil

	q := model.MatchQuery{Condition: "cancer", Phase: "Phase 1", Country: "France"}
	// 0.4*0 + 0.2*0 + 0.2*0.5 (unspecified intervention) + 0.2*0 = 0.1.
	assert.Equal(t, 0.1, e.MatchScore(site, q))
}

func TestMatchScore_DoesNotMutateSite(t *testing.T) {
	e := testEngine()
	site := fullSite()
	before := *site
	e.MatchScore(site, model.MatchQuery{Condition: "cancer", Country: "United States"})
	assert.Equal(t, before, *site)
}

func TestPhaseSimilarity_CombinedPhases(t *testing.T) {
	// Phase 1/Phase 2 (1.5) vs Phase 2 (2.0): adjacent.
	assert.Equal(t, 0.5, phaseSimilarity([]string{"Phase 1/Phase 2"}, "Phase 2"))
	// Phase 1 (1.0) vs Phase 4 (4.0): unrelated.
	assert.Equal(t, 0.0, phaseSimilarity([]string{"Phase 1"}, "Phase 4"))
	// Unparseable query phase.
	assert.Equal(t, 0.0, phaseSimilarity([]string{"Phase 2"}, "NA"))
}

func TestRegionalProximity(t *testing.T) {
	e := testEngine()
	assert.Equal(t, 1.0, e.regionalProximity("United States", "united states"))
	assert.Equal(t, 0.3, e.regionalProximity("Germany", "France"))
	assert.Equal(t, 0.0, e.regionalProximity("Japan", "Brazil"))
	assert.Equal(t, 0.0, e.regionalProximity("Narnia", "Atlantis"))
}
