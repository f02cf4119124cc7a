// Package cluster groups sites into behavioral clusters via k-means.
package cluster

import (
	"math"
	"math/rand"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/trialscope/sitescope/internal/model"
)

// Config configures the cluster assigner.
type Config struct {
	Count    int   `yaml:"count" mapstructure:"count"`
	MaxIters int   `yaml:"max_iters" mapstructure:"max_iters"`
	Seed     int64 `yaml:"seed" mapstructure:"seed"`
}

// DefaultConfig returns the stock clustering configuration.
func DefaultConfig() Config {
	return Config{Count: 5, MaxIters: 100, Seed: 42}
}

// Result reports the outcome of a clustering pass. Non-convergence is
// informational, never fatal: the last assignment is kept.
type Result struct {
	Labels     []int
	Iterations int
	Converged  bool
}

// featureCount is the dimensionality of the site feature vector:
// experience index, data quality, completion ratio, total studies.
const featureCount = 4

// Assign standardizes the site feature vectors over the current
// population and runs k-means with a deterministic seed. Labels are
// written back onto the sites; they are arbitrary integers with no
// inherent ordering. The scaler is recomputed from scratch on every
// call because the population changes between runs.
func Assign(sites []*model.CanonicalSite, cfg Config) Result {
	n := len(sites)
	if n == 0 {
		return Result{Converged: true}
	}

	k := cfg.Count
	if k < 1 {
		k = 1
	}
	if k >= n {
		// Degenerate population: every site is its own cluster.
		labels := make([]int, n)
		for i, site := range sites {
			labels[i] = i
			label := i
			site.ClusterLabel = &label
		}
		return Result{Labels: labels, Converged: true}
	}

	data := standardize(features(sites))
	labels, iters, converged := kmeans(data, k, cfg.MaxIters, cfg.Seed)

	for i, site := range sites {
		label := labels[i]
		site.ClusterLabel = &label
	}

	if converged {
		zap.L().Info("cluster: assignment converged",
			zap.Int("sites", n),
			zap.Int("clusters", k),
			zap.Int("iterations", iters),
		)
	} else {
		zap.L().Warn("cluster: iteration cap reached without stable assignment",
			zap.Int("sites", n),
			zap.Int("clusters", k),
			zap.Int("iterations", iters),
		)
	}
	return Result{Labels: labels, Iterations: iters, Converged: converged}
}

func features(sites []*model.CanonicalSite) *mat.Dense {
	data := mat.NewDense(len(sites), featureCount, nil)
	for i, s := range sites {
		data.SetRow(i, []float64{
			float64(s.ExperienceIndex),
			s.DataQualityScore,
			s.CompletionRatio,
			float64(s.Counters.Total),
		})
	}
	return data
}

// standardize rescales each feature column to zero mean and unit
// variance. A zero-variance column becomes all zeros so it cannot
// dominate distances.
func standardize(data *mat.Dense) *mat.Dense {
	rows, cols := data.Dims()
	out := mat.NewDense(rows, cols, nil)
	for j := 0; j < cols; j++ {
		var sum float64
		for i := 0; i < rows; i++ {
			sum += data.At(i, j)
		}
		mean := sum / float64(rows)

		var variance float64
		for i := 0; i < rows; i++ {
			d := data.At(i, j) - mean
			variance += d * d
		}
		std := math.Sqrt(variance / float64(rows))

		for i := 0; i < rows; i++ {
			if std == 0 {
				out.Set(i, j, 0)
			} else {
				out.Set(i, j, (data.At(i, j)-mean)/std)
			}
		}
	}
	return out
}

// kmeans runs Lloyd's algorithm with seeded random centroid init.
func kmeans(data *mat.Dense, k, maxIters int, seed int64) (labels []int, iters int, converged bool) {
	rows, cols := data.Dims()
	rng := rand.New(rand.NewSource(seed))

	// Initialize centroids from k data points, preferring distinct
	// positions so duplicate rows cannot collapse two centroids.
	centroids := mat.NewDense(k, cols, nil)
	perm := rng.Perm(rows)
	chosen := 0
	for _, idx := range perm {
		if chosen == k {
			break
		}
		row := data.RawRowView(idx)
		dup := false
		for c := 0; c < chosen; c++ {
			if equalRow(row, centroids.RawRowView(c)) {
				dup = true
				break
			}
		}
		if !dup {
			centroids.SetRow(chosen, row)
			chosen++
		}
	}
	for _, idx := range perm {
		if chosen == k {
			break
		}
		// Fewer distinct rows than clusters; repeats are unavoidable.
		centroids.SetRow(chosen, mat.Row(nil, idx, data))
		chosen++
	}

	labels = make([]int, rows)
	for iters = 1; iters <= maxIters; iters++ {
		next := assignNearest(data, centroids)

		stable := true
		for i := range labels {
			if labels[i] != next[i] {
				stable = false
				break
			}
		}
		labels = next
		if stable && iters > 1 {
			return labels, iters, true
		}

		centroids = recomputeCentroids(data, labels, centroids, k)
	}
	return labels, maxIters, false
}

func assignNearest(data, centroids *mat.Dense) []int {
	rows, _ := data.Dims()
	k, _ := centroids.Dims()
	labels := make([]int, rows)
	for i := 0; i < rows; i++ {
		bestDist := math.Inf(1)
		for c := 0; c < k; c++ {
			d := euclidean(data.RawRowView(i), centroids.RawRowView(c))
			if d < bestDist {
				bestDist = d
				labels[i] = c
			}
		}
	}
	return labels
}

// recomputeCentroids moves each centroid to the mean of its members.
// A centroid that lost all members keeps its previous position.
func recomputeCentroids(data *mat.Dense, labels []int, prev *mat.Dense, k int) *mat.Dense {
	rows, cols := data.Dims()
	sums := mat.NewDense(k, cols, nil)
	counts := make([]int, k)
	for i := 0; i < rows; i++ {
		c := labels[i]
		counts[c]++
		for j := 0; j < cols; j++ {
			sums.Set(c, j, sums.At(c, j)+data.At(i, j))
		}
	}

	out := mat.NewDense(k, cols, nil)
	for c := 0; c < k; c++ {
		if counts[c] == 0 {
			out.SetRow(c, mat.Row(nil, c, prev))
			continue
		}
		for j := 0; j < cols; j++ {
			out.Set(c, j, sums.At(c, j)/float64(counts[c]))
		}
	}
	return out
}

func equalRow(a, b []float64) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Summary describes one cluster's mean characteristics for reporting.
type Summary struct {
	Label           int     `json:"label"`
	Size            int     `json:"size"`
	AvgExperience   float64 `json:"avg_experience"`
	AvgQuality      float64 `json:"avg_quality"`
	AvgCompletion   float64 `json:"avg_completion"`
	AvgTotalStudies float64 `json:"avg_total_studies"`
}

// Summarize computes per-cluster means over the raw (unstandardized)
// feature values of labeled sites.
func Summarize(sites []*model.CanonicalSite) []Summary {
	byLabel := make(map[int]*Summary)
	var order []int
	for _, s := range sites {
		if s.ClusterLabel == nil {
			continue
		}
		label := *s.ClusterLabel
		sum, ok := byLabel[label]
		if !ok {
			sum = &Summary{Label: label}
			byLabel[label] = sum
			order = append(order, label)
		}
		sum.Size++
		sum.AvgExperience += float64(s.ExperienceIndex)
		sum.AvgQuality += s.DataQualityScore
		sum.AvgCompletion += s.CompletionRatio
		sum.AvgTotalStudies += float64(s.Counters.Total)
	}

	out := make([]Summary, 0, len(order))
	for _, label := range order {
		sum := byLabel[label]
		n := float64(sum.Size)
		sum.AvgExperience /= n
		sum.AvgQuality /= n
		sum.AvgCompletion /= n
		sum.AvgTotalStudies /= n
		out = append(out, *sum)
	}
	return out
}
