package recommend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trialscope/sitescope/internal/metrics"
	"github.com/trialscope/sitescope/internal/model"
)

func usSite(name string, experience int) *model.CanonicalSite {
	return &model.CanonicalSite{
		Name:             name,
		Country:          "United States",
		TherapeuticAreas: []string{"Breast Cancer"},
		Phases:           []string{"Phase 3"},
		ExperienceIndex:  experience,
	}
}

var cancerQuery = model.MatchQuery{
	Condition: "cancer",
	Phase:     "Phase 3",
	Country:   "United States",
}

func TestRecommend_HigherExperienceBreaksTie(t *testing.T) {
	// Identical profiles, so match scores tie and experience decides.
	sites := []*model.CanonicalSite{
		usSite("memorial clinic", 4),
		usSite("university hospital", 52),
	}
	recs := New(metrics.New(metrics.DefaultConfig()), Config{}).Recommend(sites, cancerQuery)

	require.Len(t, recs, 2)
	assert.Equal(t, recs[0].MatchScore, recs[1].MatchScore)
	assert.Equal(t, "university hospital", recs[0].Site.Name)
	assert.Equal(t, "memorial clinic", recs[1].Site.Name)
}

func TestRecommend_OrdersByScoreDescending(t *testing.T) {
	offTopic := usSite("cardiology center", 100)
	offTopic.TherapeuticAreas = []string{"Heart Failure"}
	sites := []*model.CanonicalSite{offTopic, usSite("oncology center", 1)}

	recs := New(metrics.New(metrics.DefaultConfig()), Config{}).Recommend(sites, cancerQuery)

	require.Len(t, recs, 2)
	assert.Equal(t, "oncology center", recs[0].Site.Name)
	assert.Greater(t, recs[0].Score, recs[1].Score)
}

func TestRecommend_NameBreaksFinalTie(t *testing.T) {
	sites := []*model.CanonicalSite{
		usSite("zeta hospital", 10),
		usSite("alpha hospital", 10),
	}
	recs := New(metrics.New(metrics.DefaultConfig()), Config{}).Recommend(sites, cancerQuery)

	require.Len(t, recs, 2)
	assert.Equal(t, "alpha hospital", recs[0].Site.Name)
}

func TestRecommend_CountryFilter(t *testing.T) {
	german := usSite("berlin clinic", 10)
	german.Country = "Germany"
	sites := []*model.CanonicalSite{german, usSite("boston clinic", 10)}

	recs := New(metrics.New(metrics.DefaultConfig()), Config{Country: "germany"}).
		Recommend(sites, cancerQuery)

	require.Len(t, recs, 1)
	assert.Equal(t, "berlin clinic", recs[0].Site.Name)
}

func TestRecommend_Limit(t *testing.T) {
	sites := []*model.CanonicalSite{
		usSite("a", 1), usSite("b", 2), usSite("c", 3),
	}
	recs := New(metrics.New(metrics.DefaultConfig()), Config{Limit: 2}).Recommend(sites, cancerQuery)
	assert.Len(t, recs, 2)
}

func TestRecommend_PerformanceBonusCanReorder(t *testing.T) {
	// Perfect geography but no delivery history versus a foreign site
	// with a flawless record.
	local := usSite("local clinic", 10)
	proven := usSite("proven clinic", 10)
	proven.Country = "Germany"
	proven.CompletionRatio = 1.0
	proven.DataQualityScore = 1.0
	sites := []*model.CanonicalSite{local, proven}

	engine := metrics.New(metrics.DefaultConfig())

	plain := New(engine, Config{}).Recommend(sites, cancerQuery)
	require.Len(t, plain, 2)
	assert.Equal(t, "local clinic", plain[0].Site.Name)

	boosted := New(engine, Config{PerformanceBonus: true}).Recommend(sites, cancerQuery)
	require.Len(t, boosted, 2)
	// 0.7 match + 0.2*1.0 + 0.1*1.0 = 1.0 beats the local 0.9.
	assert.Equal(t, "proven clinic", boosted[0].Site.Name)
	assert.InDelta(t, 1.0, boosted[0].Score, 1e-9)
}

func TestRecommend_DoesNotMutateSites(t *testing.T) {
	site := usSite("memorial clinic", 4)
	site.CompletionRatio = 0.5
	before := *site

	New(metrics.New(metrics.DefaultConfig()), Config{PerformanceBonus: true}).
		Recommend([]*model.CanonicalSite{site}, cancerQuery)

	assert.Equal(t, before, *site)
}
