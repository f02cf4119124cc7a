// Package metrics computes derived scores for canonical sites.
package metrics

import (
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/trialscope/sitescope/internal/model"
)

// Weights holds the match-score term weights. They must sum to 1.0;
// config validation enforces that before a run starts.
type Weights struct {
	Therapeutic  float64 `yaml:"therapeutic" mapstructure:"therapeutic"`
	Phase        float64 `yaml:"phase" mapstructure:"phase"`
	Intervention float64 `yaml:"intervention" mapstructure:"intervention"`
	Region       float64 `yaml:"region" mapstructure:"region"`
}

// Sum returns the total weight.
func (w Weights) Sum() float64 {
	return w.Therapeutic + w.Phase + w.Intervention + w.Region
}

// DefaultWeights mirrors the 0.4/0.2/0.2/0.2 split of the match formula.
func DefaultWeights() Weights {
	return Weights{Therapeutic: 0.4, Phase: 0.2, Intervention: 0.2, Region: 0.2}
}

// Config configures the metrics engine.
type Config struct {
	Weights       Weights `yaml:"weights" mapstructure:"weights"`
	RegionPartial float64 `yaml:"region_partial" mapstructure:"region_partial"`
	RecencyMonths int     `yaml:"recency_months" mapstructure:"recency_months"`
}

// DefaultConfig returns the stock scoring configuration.
func DefaultConfig() Config {
	return Config{Weights: DefaultWeights(), RegionPartial: 0.3, RecencyMonths: 12}
}

// Engine computes per-site scores. Every method is a pure function of a
// site's current state (plus the injected clock for recency), so scores
// are fully re-derivable and testable in isolation.
type Engine struct {
	cfg Config
	now func() time.Time
}

// New creates an engine using the wall clock.
func New(cfg Config) *Engine {
	return NewWithClock(cfg, time.Now)
}

// NewWithClock creates an engine with an injected clock.
func NewWithClock(cfg Config, now func() time.Time) *Engine {
	return &Engine{cfg: cfg, now: now}
}

// Apply computes and stores the persistent scores on every site.
// Match scores are query-scoped and deliberately not stored here.
func (e *Engine) Apply(sites []*model.CanonicalSite) {
	for _, site := range sites {
		e.Score(site)
	}
	zap.L().Info("metrics: scores computed", zap.Int("sites", len(sites)))
}

// Score computes the persistent scores for a single site. Safe to call
// concurrently across distinct sites.
func (e *Engine) Score(site *model.CanonicalSite) {
	site.CompletionRatio = CompletionRatio(site.Counters)
	site.DataQualityScore = e.DataQuality(site)
	site.ExperienceIndex = site.Counters.Total
}

// CompletionRatio returns completed / (completed+terminated+withdrawn),
// clamped to [0,1] and rounded to 2 decimals. Zero concluded studies is
// the normal zero-ratio case, not an error.
func CompletionRatio(c model.SiteCounters) float64 {
	concluded := c.Concluded()
	if concluded == 0 {
		return 0.0
	}
	ratio := float64(c.Completed) / float64(concluded)
	return round2(math.Min(math.Max(ratio, 0), 1))
}

// DataQuality combines field completeness and activity recency as
// 0.6*completeness + 0.4*recency, rounded to 2 decimals.
func (e *Engine) DataQuality(site *model.CanonicalSite) float64 {
	quality := 0.6*completeness(site) + 0.4*e.recencyWeight(site.LastActive)
	return round2(quality)
}

// completeness is the filled fraction of the ten descriptive fields a
// well-reported site carries.
func completeness(site *model.CanonicalSite) float64 {
	const totalFields = 10
	filled := 0
	for _, present := range []bool{
		site.Name != "" && site.Name != "unknown",
		site.City != "",
		site.Country != "",
		len(site.TherapeuticAreas) > 0,
		len(site.Investigators) > 0,
		site.AvgPhase > 0,
		site.AvgEnrollment > 0,
		site.LastActive != nil,
		site.Counters.Total > 0,
		site.Counters.Completed > 0,
	} {
		if present {
			filled++
		}
	}
	return float64(filled) / totalFields
}

// recencyWeight decays with the age of the most recent activity.
// A site with no recorded activity date keeps full weight; the missing
// date already costs it a completeness field.
func (e *Engine) recencyWeight(lastActive *time.Time) float64 {
	if lastActive == nil {
		return 1.0
	}
	monthsOld := e.now().Sub(*lastActive).Hours() / 24 / 30
	switch {
	case monthsOld <= float64(e.cfg.RecencyMonths):
		return 1.0
	case monthsOld <= 24:
		return 0.8
	case monthsOld <= 36:
		return 0.6
	default:
		return 0.4
	}
}

// MatchScore scores a site against a query profile. Each term is in
// [0,1]; the weighted sum is rounded to 2 decimals. The site is never
// mutated.
func (e *Engine) MatchScore(site *model.CanonicalSite, q model.MatchQuery) float64 {
	w := e.cfg.Weights
	score := w.Therapeutic*therapeuticMatch(site.TherapeuticAreas, q.Condition) +
		w.Phase*phaseSimilarity(site.Phases, q.Phase) +
		w.Intervention*interventionMatch(site.Interventions, q.Intervention) +
		w.Region*e.regionalProximity(site.Country, q.Country)
	return round2(score)
}

// therapeuticMatch is 1.0 when the query condition appears in the
// site's therapeutic-area set by case-insensitive substring.
func therapeuticMatch(areas []string, condition string) float64 {
	condition = strings.ToLower(strings.TrimSpace(condition))
	if condition == "" {
		return 0.0
	}
	for _, area := range areas {
		if strings.Contains(strings.ToLower(area), condition) {
			return 1.0
		}
	}
	return 0.0
}

// phaseSimilarity is the best similarity of the query phase against any
// phase the site has run: 1.0 exact, 0.5 adjacent (rank distance <= 1),
// 0.0 otherwise.
func phaseSimilarity(sitePhases []string, queryPhase string) float64 {
	target, ok := model.PhaseRank(queryPhase)
	if !ok {
		return 0.0
	}
	best := 0.0
	for _, p := range sitePhases {
		rank, ok := model.PhaseRank(p)
		if !ok {
			continue
		}
		diff := math.Abs(rank - target)
		switch {
		case diff == 0:
			return 1.0
		case diff <= 1 && best < 0.5:
			best = 0.5
		}
	}
	return best
}

// interventionMatch is 1.0 when the query intervention type is among
// the site's observed types. An unspecified query type scores neutral.
func interventionMatch(observed []string, query string) float64 {
	query = strings.TrimSpace(query)
	if query == "" {
		return 0.5
	}
	for _, o := range observed {
		if strings.EqualFold(o, query) {
			return 1.0
		}
	}
	return 0.0
}

// regionalProximity is 1.0 for an exact country match, the configured
// partial value for a different country in the same region, else 0.0.
func (e *Engine) regionalProximity(siteCountry, queryCountry string) float64 {
	if queryCountry == "" {
		return 0.0
	}
	if strings.EqualFold(strings.TrimSpace(siteCountry), strings.TrimSpace(queryCountry)) {
		return 1.0
	}
	sr, sok := regionOf(siteCountry)
	qr, qok := regionOf(queryCountry)
	if sok && qok && sr == qr {
		return e.cfg.RegionPartial
	}
	return 0.0
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
