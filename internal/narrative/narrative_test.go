package narrative

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trialscope/sitescope/internal/model"
)

var testNow = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func testGen() *Generator {
	return NewWithClock(DefaultThresholds(), func() time.Time { return testNow })
}

func TestGenerate_ExceptionalCompletion(t *testing.T) {
	site := &model.CanonicalSite{
		CompletionRatio: 0.95,
		Counters:        model.SiteCounters{Total: 20, Completed: 19, Terminated: 1},
	}
	n := testGen().Generate(site)
	assert.Contains(t, strings.Join(n.Strengths, "\n"), "Exceptional completion rate (95%)")
}

func TestGenerate_GoodCompletionBand(t *testing.T) {
	site := &model.CanonicalSite{CompletionRatio: 0.7, Counters: model.SiteCounters{Total: 10, Completed: 7, Terminated: 3}}
	n := testGen().Generate(site)
	joined := strings.Join(n.Strengths, "\n")
	assert.Contains(t, joined, "Good completion rate (70%)")
	assert.NotContains(t, joined, "High completion rate")
}

func TestGenerate_SingleRulePerMetric(t *testing.T) {
	// A completion ratio of 0.95 satisfies >=0.9, >=0.8 and >=0.6; only
	// the exceptional band may fire.
	site := &model.CanonicalSite{CompletionRatio: 0.95, Counters: model.SiteCounters{Total: 1, Completed: 1}}
	n := testGen().Generate(site)
	count := 0
	for _, s := range n.Strengths {
		if strings.Contains(s, "completion rate") {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestGenerate_NoMetricYieldsBothPolarities(t *testing.T) {
	sites := []*model.CanonicalSite{
		{CompletionRatio: 0.3, Counters: model.SiteCounters{Total: 10, Completed: 3, Terminated: 7}},
		{CompletionRatio: 1.0, Counters: model.SiteCounters{Total: 60, Completed: 60}},
		{DataQualityScore: 0.4, Counters: model.SiteCounters{Total: 2, Ongoing: 2}},
	}
	for _, site := range sites {
		n := testGen().Generate(site)
		for _, metric := range []string{"completion rate", "termination rate", "data quality"} {
			inStrengths := strings.Contains(strings.Join(n.Strengths, "\n"), metric)
			inWeaknesses := strings.Contains(strings.Join(n.Weaknesses, "\n"), metric)
			assert.False(t, inStrengths && inWeaknesses, "metric %q on both sides", metric)
		}
	}
}

func TestGenerate_ExplicitEmptyWeaknesses(t *testing.T) {
	// Ongoing studies keep the dormant-site rule from firing; every
	// other weakness predicate is clear of its threshold too.
	site := &model.CanonicalSite{
		CompletionRatio: 1.0,
		Counters:        model.SiteCounters{Total: 12, Completed: 10, Ongoing: 2},
	}
	n := testGen().Generate(site)
	require.NotNil(t, n.Weaknesses)
	assert.Empty(t, n.Weaknesses)
}

func TestGenerate_TerminationWeaknesses(t *testing.T) {
	site := &model.CanonicalSite{
		CompletionRatio: 0.2,
		Counters:        model.SiteCounters{Total: 10, Completed: 2, Terminated: 5, Withdrawn: 1},
	}
	n := testGen().Generate(site)
	assert.Contains(t, strings.Join(n.Weaknesses, "\n"), "High termination rate (60%)")
}

func TestGenerate_ZeroTerminationStrength(t *testing.T) {
	site := &model.CanonicalSite{
		CompletionRatio: 1.0,
		Counters:        model.SiteCounters{Total: 8, Completed: 6, Ongoing: 2},
	}
	n := testGen().Generate(site)
	assert.Contains(t, strings.Join(n.Strengths, "\n"), "Zero termination rate")
}

func TestGenerate_RecencyBands(t *testing.T) {
	recent := testNow.AddDate(0, -2, 0)
	stale := testNow.AddDate(0, -30, 0)
	gone := testNow.AddDate(-4, 0, 0)

	n := testGen().Generate(&model.CanonicalSite{LastActive: &recent, Counters: model.SiteCounters{Total: 1}})
	assert.Contains(t, strings.Join(n.Strengths, "\n"), "Very recently active")

	n = testGen().Generate(&model.CanonicalSite{LastActive: &stale, Counters: model.SiteCounters{Total: 1}})
	assert.Contains(t, strings.Join(n.Weaknesses, "\n"), "over 2 years ago")

	n = testGen().Generate(&model.CanonicalSite{LastActive: &gone, Counters: model.SiteCounters{Total: 1}})
	assert.Contains(t, strings.Join(n.Weaknesses, "\n"), "3+ years")
}

func TestGenerate_FallbackStrength(t *testing.T) {
	site := &model.CanonicalSite{Counters: model.SiteCounters{Total: 1, Ongoing: 1}}
	n := testGen().Generate(site)
	assert.Equal(t, []string{"Active clinical research site"}, n.Strengths)
}

func TestGenerate_EmptySiteNoFallback(t *testing.T) {
	n := testGen().Generate(&model.CanonicalSite{})
	assert.Empty(t, n.Strengths)
	assert.Empty(t, n.Weaknesses)
}

func TestGenerate_Deterministic(t *testing.T) {
	last := testNow.AddDate(0, -3, 0)
	site := &model.CanonicalSite{
		CompletionRatio:  0.85,
		DataQualityScore: 0.92,
		AvgPhase:         2.7,
		AvgEnrollment:    130,
		LastActive:       &last,
		TherapeuticAreas: []string{"Oncology", "Hematology"},
		Counters:         model.SiteCounters{Total: 25, Completed: 17, Terminated: 3, Ongoing: 5},
	}
	first := testGen().Generate(site)
	second := testGen().Generate(site)
	assert.Equal(t, first, second)
}

func TestLoadThresholds_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("completion_exceptional: 0.99\nexperience_extensive: 100\n"), 0o600))

	th, err := LoadThresholds(path)
	require.NoError(t, err)
	assert.Equal(t, 0.99, th.CompletionExceptional)
	assert.Equal(t, 100, th.ExperienceExtensive)
	// Untouched values keep their defaults.
	assert.Equal(t, 0.8, th.CompletionHigh)
}

func TestLoadThresholds_MissingFile(t *testing.T) {
	_, err := LoadThresholds("/nonexistent/rules.yaml")
	assert.Error(t, err)
}
