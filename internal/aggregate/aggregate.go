// Package aggregate folds trial records into per-site summary counters.
package aggregate

import (
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/trialscope/sitescope/internal/model"
)

// Run recomputes every site's counters from an immutable snapshot of
// the trial set. The fold is pure with respect to its inputs, so
// re-running on the same assignment yields identical counters; nothing
// carries over from a previous run.
func Run(sites []*model.CanonicalSite, trials []model.TrialRecord) {
	byID := make(map[string]*model.TrialRecord, len(trials))
	for i := range trials {
		if trials[i].NCTID != "" {
			byID[trials[i].NCTID] = &trials[i]
		}
	}

	for _, site := range sites {
		fold(site, byID)
	}

	zap.L().Info("aggregate: counters rebuilt",
		zap.Int("sites", len(sites)),
		zap.Int("trials", len(byID)),
	)
}

func fold(site *model.CanonicalSite, byID map[string]*model.TrialRecord) {
	counters := model.SiteCounters{}
	areas := make(map[string]string)
	phases := make(map[string]string)
	interventions := make(map[string]string)

	var phaseSum float64
	var phaseCount int
	var enrollSum int
	var enrollCount int
	var lastActive *time.Time

	seen := make(map[string]bool, len(site.TrialIDs))
	for _, id := range site.TrialIDs {
		trial, ok := byID[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true

		counters.Total++
		status := model.ParseStatus(string(trial.Status))
		switch {
		case status == model.StatusCompleted:
			counters.Completed++
		case status == model.StatusTerminated:
			counters.Terminated++
		case status == model.StatusWithdrawn:
			counters.Withdrawn++
		case status.IsOngoing():
			counters.Ongoing++
		case status == model.StatusUnknown:
			counters.Unknown++
		}

		for _, c := range trial.Conditions {
			addFolded(areas, c)
		}
		for _, it := range trial.InterventionTypes {
			addFolded(interventions, it)
		}
		if trial.Phase != "" {
			addFolded(phases, trial.Phase)
			if rank, ok := model.PhaseRank(trial.Phase); ok {
				phaseSum += rank
				phaseCount++
			}
		}
		if trial.Enrollment > 0 {
			enrollSum += trial.Enrollment
			enrollCount++
		}
		lastActive = laterOf(lastActive, trial.LastUpdateDate)
		lastActive = laterOf(lastActive, trial.StartDate)
	}

	site.Counters = counters
	site.TherapeuticAreas = sortedValues(areas)
	site.Phases = sortedValues(phases)
	site.Interventions = sortedValues(interventions)
	site.LastActive = lastActive

	site.AvgPhase = 0
	if phaseCount > 0 {
		site.AvgPhase = phaseSum / float64(phaseCount)
	}
	site.AvgEnrollment = 0
	if enrollCount > 0 {
		site.AvgEnrollment = float64(enrollSum) / float64(enrollCount)
	}
}

// addFolded unions values case-insensitively, keeping the first-seen
// original spelling.
func addFolded(set map[string]string, v string) {
	v = strings.TrimSpace(v)
	if v == "" {
		return
	}
	key := strings.ToLower(v)
	if _, ok := set[key]; !ok {
		set[key] = v
	}
}

func sortedValues(set map[string]string) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for _, v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func laterOf(current, candidate *time.Time) *time.Time {
	if candidate == nil {
		return current
	}
	if current == nil || candidate.After(*current) {
		t := *candidate
		return &t
	}
	return current
}
