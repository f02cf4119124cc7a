package model

import "time"

// SiteCounters holds the aggregated study counters for a canonical site.
// Completed, Terminated, Withdrawn, Ongoing and Unknown never sum past Total.
type SiteCounters struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Ongoing    int `json:"ongoing"`
	Terminated int `json:"terminated"`
	Withdrawn  int `json:"withdrawn"`
	Unknown    int `json:"unknown"`
}

// Concluded returns the completion-ratio denominator.
func (c SiteCounters) Concluded() int {
	return c.Completed + c.Terminated + c.Withdrawn
}

// Narrative holds the derived strength/weakness strings for a site.
// Both lists are always present; an empty weaknesses list is explicit.
type Narrative struct {
	Strengths  []string `json:"strengths"`
	Weaknesses []string `json:"weaknesses"`
}

// CanonicalSite is a deduplicated real-world trial site. Created by the
// resolver, filled in counter/metric/narrative/cluster order by the
// later pipeline stages, rebuilt from scratch on every run.
type CanonicalSite struct {
	Name         string   `json:"name"`
	City         string   `json:"city,omitempty"`
	Country      string   `json:"country"`
	NameVariants []string `json:"name_variants"`

	// Trials resolved to this site, in ingestion order.
	TrialIDs []string `json:"trial_ids"`

	Counters         SiteCounters `json:"counters"`
	TherapeuticAreas []string     `json:"therapeutic_areas,omitempty"`
	Phases           []string     `json:"phases,omitempty"`
	Interventions    []string     `json:"interventions,omitempty"`
	Investigators    []string     `json:"investigators,omitempty"`

	AvgPhase      float64    `json:"avg_phase,omitempty"`
	AvgEnrollment float64    `json:"avg_enrollment,omitempty"`
	LastActive    *time.Time `json:"last_active,omitempty"`

	CompletionRatio  float64 `json:"completion_ratio"`
	DataQualityScore float64 `json:"data_quality_score"`
	ExperienceIndex  int     `json:"experience_index"`

	// Nil until the cluster assigner has run.
	ClusterLabel *int `json:"cluster_label,omitempty"`

	Narrative Narrative `json:"narrative"`
}

// HasVariant reports whether the raw name is already folded into the site.
func (s *CanonicalSite) HasVariant(name string) bool {
	for _, v := range s.NameVariants {
		if v == name {
			return true
		}
	}
	return false
}

// MatchQuery is an ephemeral target-study profile scored against sites.
type MatchQuery struct {
	Condition    string `json:"condition"`
	Phase        string `json:"phase"`
	Intervention string `json:"intervention,omitempty"`
	Country      string `json:"country"`
}
