// Package resolve groups raw trial locations into canonical sites.
package resolve

import (
	"sort"

	"go.uber.org/zap"

	"github.com/trialscope/sitescope/internal/model"
	"github.com/trialscope/sitescope/internal/normalize"
	"github.com/trialscope/sitescope/internal/similarity"
)

// DefaultThreshold is the merge threshold on the 0-100 similarity scale.
const DefaultThreshold = 85

// Resolver maps location records onto a growing set of canonical sites.
// It must process records single-threaded and in ingestion order:
// processing order decides which site absorbs ambiguous near-duplicates.
type Resolver struct {
	scorer    similarity.Scorer
	threshold int

	// Sites indexed by country key; cross-country names never merge.
	byCountry map[string][]*entry
	order     []*entry
}

type entry struct {
	site *model.CanonicalSite
	key  string
}

// New creates a resolver with the given scorer and threshold.
func New(scorer similarity.Scorer, threshold int) *Resolver {
	return &Resolver{
		scorer:    scorer,
		threshold: threshold,
		byCountry: make(map[string][]*entry),
	}
}

// Resolve attaches one location record of a trial to an existing site or
// creates a new one, and returns the site. Records that cannot be
// normalized still land on a singleton site under the sentinel key.
func (r *Resolver) Resolve(trial *model.TrialRecord, loc model.LocationRecord) *model.CanonicalSite {
	key := normalize.Key(loc.Facility)
	country := normalize.CountryKey(loc.Country)

	if best := r.bestMatch(country, key); best != nil {
		if loc.Facility != "" && !best.site.HasVariant(loc.Facility) {
			best.site.NameVariants = append(best.site.NameVariants, loc.Facility)
		}
		best.site.TrialIDs = appendUnique(best.site.TrialIDs, trial.NCTID)
		for _, inv := range loc.Investigators {
			best.site.Investigators = appendUnique(best.site.Investigators, inv)
		}
		return best.site
	}

	name := loc.Facility
	if name == "" {
		name = normalize.UnknownKey
	}
	site := &model.CanonicalSite{
		Name:          name,
		City:          loc.City,
		Country:       loc.Country,
		NameVariants:  []string{name},
		TrialIDs:      []string{trial.NCTID},
		Investigators: append([]string(nil), loc.Investigators...),
	}
	e := &entry{site: site, key: key}
	r.byCountry[country] = append(r.byCountry[country], e)
	r.order = append(r.order, e)

	zap.L().Debug("resolve: new canonical site",
		zap.String("name", site.Name),
		zap.String("country", site.Country),
	)
	return site
}

// bestMatch scans existing sites in the country partition for the best
// score at or above the threshold. Full scan is O(k) per record; a
// first-token blocking index can replace the candidate selection here
// without changing the contract.
func (r *Resolver) bestMatch(country, key string) *entry {
	var best *entry
	bestScore := -1
	for _, e := range r.byCountry[country] {
		score := r.scorer.Score(key, e.key)
		if score < r.threshold {
			continue
		}
		switch {
		case score > bestScore:
			best, bestScore = e, score
		case score == bestScore && best != nil:
			// Equal scores: the more established site wins so future
			// near-duplicates keep folding into the same place. Equal
			// variant counts fall back to the lexicographically
			// smaller canonical name for determinism.
			if len(e.site.NameVariants) > len(best.site.NameVariants) ||
				(len(e.site.NameVariants) == len(best.site.NameVariants) && e.site.Name < best.site.Name) {
				best = e
			}
		}
	}
	return best
}

// Run resolves every location of every trial, in input order, and
// returns all canonical sites in creation order. Trials without an
// identifier are counted as malformed and skipped.
func (r *Resolver) Run(trials []model.TrialRecord) ([]*model.CanonicalSite, int) {
	malformed := 0
	for i := range trials {
		trial := &trials[i]
		if trial.NCTID == "" {
			malformed++
			zap.L().Warn("resolve: skipping trial without identifier",
				zap.String("title", trial.Title),
			)
			continue
		}
		for _, loc := range trial.Locations {
			r.Resolve(trial, loc)
		}
	}

	sites := make([]*model.CanonicalSite, len(r.order))
	for i, e := range r.order {
		sites[i] = e.site
	}
	zap.L().Info("resolve: pass complete",
		zap.Int("trials", len(trials)),
		zap.Int("sites", len(sites)),
		zap.Int("malformed", malformed),
	)
	return sites, malformed
}

// Sites returns the current canonical sites in creation order.
func (r *Resolver) Sites() []*model.CanonicalSite {
	sites := make([]*model.CanonicalSite, len(r.order))
	for i, e := range r.order {
		sites[i] = e.site
	}
	return sites
}

// SortSitesByName orders sites by country then name, for stable output.
func SortSitesByName(sites []*model.CanonicalSite) {
	sort.Slice(sites, func(i, j int) bool {
		if sites[i].Country != sites[j].Country {
			return sites[i].Country < sites[j].Country
		}
		return sites[i].Name < sites[j].Name
	})
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
