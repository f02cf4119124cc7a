// Package recommend ranks evaluated sites against a sponsor query.
package recommend

import (
	"math"
	"sort"
	"strings"

	"github.com/trialscope/sitescope/internal/metrics"
	"github.com/trialscope/sitescope/internal/model"
)

// Config controls candidate filtering and ranking.
type Config struct {
	// Limit caps the number of returned recommendations. Zero or
	// negative means no cap.
	Limit int `yaml:"limit" mapstructure:"limit"`
	// Country restricts candidates to a single country when set.
	Country string `yaml:"country" mapstructure:"country"`
	// PerformanceBonus adds a completion/quality bonus on top of the
	// match score. Off by default so the ranking follows the match
	// score alone.
	PerformanceBonus bool `yaml:"performance_bonus" mapstructure:"performance_bonus"`
}

// Recommendation pairs a site with its ranking score.
type Recommendation struct {
	Site       *model.CanonicalSite `json:"site"`
	Score      float64              `json:"score"`
	MatchScore float64              `json:"match_score"`
}

// Recommender ranks sites for a query using a shared metrics engine.
type Recommender struct {
	engine *metrics.Engine
	cfg    Config
}

func New(engine *metrics.Engine, cfg Config) *Recommender {
	return &Recommender{engine: engine, cfg: cfg}
}

// Recommend scores every candidate site against the query and returns
// them ordered by score descending, ties broken by experience index,
// then data quality, then canonical name. Sites are read, never
// modified.
func (r *Recommender) Recommend(sites []*model.CanonicalSite, q model.MatchQuery) []Recommendation {
	recs := make([]Recommendation, 0, len(sites))
	for _, site := range sites {
		if r.cfg.Country != "" && !strings.EqualFold(site.Country, r.cfg.Country) {
			continue
		}
		ms := r.engine.MatchScore(site, q)
		score := ms
		if r.cfg.PerformanceBonus {
			score = round2(ms + 0.2*site.CompletionRatio + 0.1*site.DataQualityScore)
		}
		recs = append(recs, Recommendation{Site: site, Score: score, MatchScore: ms})
	}

	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Site.ExperienceIndex != b.Site.ExperienceIndex {
			return a.Site.ExperienceIndex > b.Site.ExperienceIndex
		}
		if a.Site.DataQualityScore != b.Site.DataQualityScore {
			return a.Site.DataQualityScore > b.Site.DataQualityScore
		}
		return a.Site.Name < b.Site.Name
	})

	if r.cfg.Limit > 0 && len(recs) > r.cfg.Limit {
		recs = recs[:r.cfg.Limit]
	}
	return recs
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
