// Package narrative derives strength/weakness summaries from site metrics.
package narrative

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/trialscope/sitescope/internal/model"
)

// Polarity marks whether a triggered rule contributes a strength or a
// weakness. No metric has rules of both polarities with overlapping
// predicates.
type Polarity int

const (
	Strength Polarity = iota
	Weakness
)

// Rule is one entry of the ordered narrative table. Each rule is
// independently evaluable against a site snapshot.
type Rule struct {
	Metric   string
	Polarity Polarity
	When     func(s *model.CanonicalSite, monthsIdle float64) bool
	Message  func(s *model.CanonicalSite, monthsIdle float64) string
}

// Thresholds holds every numeric cutoff in the default rule table. A
// YAML rules file can override individual values without touching the
// rule structure itself.
type Thresholds struct {
	CompletionExceptional float64 `yaml:"completion_exceptional"`
	CompletionHigh        float64 `yaml:"completion_high"`
	CompletionGood        float64 `yaml:"completion_good"`
	CompletionLow         float64 `yaml:"completion_low"`

	ExperienceExtensive int `yaml:"experience_extensive"`
	ExperienceSolid     int `yaml:"experience_solid"`
	ExperienceModerate  int `yaml:"experience_moderate"`
	ExperienceLimited   int `yaml:"experience_limited"`

	OngoingActive int `yaml:"ongoing_active"`

	DiversityHigh       int `yaml:"diversity_high"`
	DiversityGood       int `yaml:"diversity_good"`
	DiversityModerate   int `yaml:"diversity_moderate"`
	SpecializationMax   int `yaml:"specialization_max"`
	SpecializationFloor int `yaml:"specialization_floor"`

	QualityExcellent float64 `yaml:"quality_excellent"`
	QualityHigh      float64 `yaml:"quality_high"`
	QualityGood      float64 `yaml:"quality_good"`
	QualityLow       float64 `yaml:"quality_low"`

	RecentMonths   float64 `yaml:"recent_months"`
	ActiveMonths   float64 `yaml:"active_months"`
	StaleMonths    float64 `yaml:"stale_months"`
	InactiveMonths float64 `yaml:"inactive_months"`

	TerminationHigh      float64 `yaml:"termination_high"`
	TerminationElevated  float64 `yaml:"termination_elevated"`
	ZeroTermMinCompleted int     `yaml:"zero_term_min_completed"`

	TrackStrong int `yaml:"track_strong"`
	TrackGood   int `yaml:"track_good"`

	PhaseAdvanced float64 `yaml:"phase_advanced"`
	PhaseMid      float64 `yaml:"phase_mid"`

	EnrollLarge float64 `yaml:"enroll_large"`
	EnrollGood  float64 `yaml:"enroll_good"`
}

// DefaultThresholds returns the stock cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CompletionExceptional: 0.9,
		CompletionHigh:        0.8,
		CompletionGood:        0.6,
		CompletionLow:         0.5,
		ExperienceExtensive:   50,
		ExperienceSolid:       20,
		ExperienceModerate:    10,
		ExperienceLimited:     3,
		OngoingActive:         5,
		DiversityHigh:         15,
		DiversityGood:         10,
		DiversityModerate:     5,
		SpecializationMax:     2,
		SpecializationFloor:   5,
		QualityExcellent:      0.9,
		QualityHigh:           0.8,
		QualityGood:           0.6,
		QualityLow:            0.5,
		RecentMonths:          6,
		ActiveMonths:          12,
		StaleMonths:           24,
		InactiveMonths:        36,
		TerminationHigh:       0.4,
		TerminationElevated:   0.25,
		ZeroTermMinCompleted:  5,
		TrackStrong:           20,
		TrackGood:             10,
		PhaseAdvanced:         2.5,
		PhaseMid:              2.0,
		EnrollLarge:           100,
		EnrollGood:            50,
	}
}

// LoadThresholds reads threshold overrides from a YAML file, starting
// from the defaults.
func LoadThresholds(path string) (Thresholds, error) {
	th := DefaultThresholds()
	data, err := os.ReadFile(path)
	if err != nil {
		return th, eris.Wrapf(err, "narrative: read rules file %s", path)
	}
	if err := yaml.Unmarshal(data, &th); err != nil {
		return th, eris.Wrapf(err, "narrative: parse rules file %s", path)
	}
	return th, nil
}

// Generator evaluates the rule table against site snapshots.
type Generator struct {
	rules []Rule
	now   func() time.Time
}

// New creates a generator with the wall clock.
func New(th Thresholds) *Generator {
	return NewWithClock(th, time.Now)
}

// NewWithClock creates a generator with an injected clock for the
// recency rules.
func NewWithClock(th Thresholds, now func() time.Time) *Generator {
	return &Generator{rules: buildRules(th), now: now}
}

// Generate evaluates every rule in order and returns the narrative.
// Both lists are always non-nil; a site triggering no weakness rules
// reports an explicit empty weaknesses list.
func (g *Generator) Generate(site *model.CanonicalSite) model.Narrative {
	monthsIdle := -1.0
	if site.LastActive != nil {
		monthsIdle = g.now().Sub(*site.LastActive).Hours() / 24 / 30
	}

	n := model.Narrative{Strengths: []string{}, Weaknesses: []string{}}
	for _, rule := range g.rules {
		if !rule.When(site, monthsIdle) {
			continue
		}
		msg := rule.Message(site, monthsIdle)
		if rule.Polarity == Strength {
			n.Strengths = append(n.Strengths, msg)
		} else {
			n.Weaknesses = append(n.Weaknesses, msg)
		}
	}

	if len(n.Strengths) == 0 && site.Counters.Total > 0 {
		n.Strengths = append(n.Strengths, "Active clinical research site")
	}
	return n
}

// Apply generates and stores narratives for every site.
func (g *Generator) Apply(sites []*model.CanonicalSite) {
	for _, site := range sites {
		site.Narrative = g.Generate(site)
	}
	zap.L().Info("narrative: summaries generated", zap.Int("sites", len(sites)))
}

func terminationRate(s *model.CanonicalSite) float64 {
	if s.Counters.Total == 0 {
		return 0
	}
	return float64(s.Counters.Terminated+s.Counters.Withdrawn) / float64(s.Counters.Total)
}
