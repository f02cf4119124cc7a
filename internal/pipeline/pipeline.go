// Package pipeline orchestrates the site evaluation stages.
package pipeline

import (
	"context"
	"runtime"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/trialscope/sitescope/internal/aggregate"
	"github.com/trialscope/sitescope/internal/cluster"
	"github.com/trialscope/sitescope/internal/config"
	"github.com/trialscope/sitescope/internal/metrics"
	"github.com/trialscope/sitescope/internal/model"
	"github.com/trialscope/sitescope/internal/narrative"
	"github.com/trialscope/sitescope/internal/resolve"
	"github.com/trialscope/sitescope/internal/similarity"
	"github.com/trialscope/sitescope/internal/store"
	"github.com/trialscope/sitescope/pkg/ctgov"
)

// Pipeline runs extract, resolve, aggregate, metrics, narrative and
// cluster in order against a single store.
type Pipeline struct {
	cfg      *config.Config
	store    store.Store
	registry ctgov.Client
}

// Result summarizes one completed run.
type Result struct {
	RunID     string
	Trials    int
	Sites     int
	Malformed int
	Cluster   cluster.Result
	Duration  time.Duration
}

// New creates a Pipeline. The registry client may be nil when only
// Evaluate is used.
func New(cfg *config.Config, st store.Store, registry ctgov.Client) *Pipeline {
	return &Pipeline{cfg: cfg, store: st, registry: registry}
}

// Run executes the full pipeline: fetch trials from the registry, save
// them, derive the canonical site set, and replace it in the store. A
// run either completes or fails; there is no resumption.
func (p *Pipeline) Run(ctx context.Context, q ctgov.Query) (*Result, error) {
	if p.registry == nil {
		return nil, eris.New("pipeline: no registry client configured")
	}
	start := time.Now()

	run, err := p.store.CreateRun(ctx, q.String())
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	log := zap.L().With(zap.String("run_id", run.ID))
	log.Info("pipeline: starting run", zap.String("query", q.String()))

	result, err := p.execute(ctx, run.ID, q, log)
	if err != nil {
		if failErr := p.store.FailRun(ctx, run.ID, err); failErr != nil {
			log.Warn("pipeline: failed to record run failure", zap.Error(failErr))
		}
		return nil, err
	}

	result.RunID = run.ID
	result.Duration = time.Since(start)
	if err := p.store.CompleteRun(ctx, run.ID, store.RunResult{
		Trials:    result.Trials,
		Sites:     result.Sites,
		Malformed: result.Malformed,
	}); err != nil {
		return nil, eris.Wrap(err, "pipeline: complete run")
	}

	log.Info("pipeline: run complete",
		zap.Int("trials", result.Trials),
		zap.Int("sites", result.Sites),
		zap.Int("malformed", result.Malformed),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

func (p *Pipeline) execute(ctx context.Context, runID string, q ctgov.Query, log *zap.Logger) (*Result, error) {
	var trials []model.TrialRecord
	fetchMalformed := 0

	err := stage(log, "extract", func() error {
		var err error
		trials, fetchMalformed, err = p.registry.FetchStudies(ctx, q)
		if err != nil {
			return err
		}
		_, err = p.store.SaveTrials(ctx, trials)
		return err
	})
	if err != nil {
		return nil, err
	}

	sites, malformed, clusterResult, err := p.Evaluate(ctx, trials)
	if err != nil {
		return nil, err
	}

	if err := stage(log, "persist", func() error {
		return p.store.ReplaceSites(ctx, sites)
	}); err != nil {
		return nil, err
	}

	return &Result{
		Trials:    len(trials),
		Sites:     len(sites),
		Malformed: fetchMalformed + malformed,
		Cluster:   clusterResult,
	}, nil
}

// Evaluate derives the full canonical site set from trial records:
// resolve, aggregate, score, narrate, cluster. It does not touch the
// store.
func (p *Pipeline) Evaluate(ctx context.Context, trials []model.TrialRecord) ([]*model.CanonicalSite, int, cluster.Result, error) {
	log := zap.L()
	var sites []*model.CanonicalSite
	malformed := 0

	_ = stage(log, "resolve", func() error {
		resolver := resolve.New(similarity.NewTokenSetScorer(), p.cfg.Fuzzy.Threshold)
		sites, malformed = resolver.Run(trials)
		return nil
	})

	_ = stage(log, "aggregate", func() error {
		aggregate.Run(sites, trials)
		return nil
	})

	thresholds := narrative.DefaultThresholds()
	if p.cfg.Narrative.RulesFile != "" {
		var err error
		thresholds, err = narrative.LoadThresholds(p.cfg.Narrative.RulesFile)
		if err != nil {
			return nil, 0, cluster.Result{}, eris.Wrap(err, "pipeline: load narrative rules")
		}
	}
	engine := metrics.New(p.cfg.MetricsConfig())
	gen := narrative.New(thresholds)

	// Scoring and narration are pure per-site, so they fan out.
	err := stage(log, "score", func() error {
		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(runtime.GOMAXPROCS(0))
		for _, site := range sites {
			g.Go(func() error {
				if err := gCtx.Err(); err != nil {
					return err
				}
				engine.Score(site)
				site.Narrative = gen.Generate(site)
				return nil
			})
		}
		return g.Wait()
	})
	if err != nil {
		return nil, 0, cluster.Result{}, eris.Wrap(err, "pipeline: score sites")
	}

	var clusterResult cluster.Result
	_ = stage(log, "cluster", func() error {
		clusterResult = cluster.Assign(sites, p.cfg.ClustererConfig())
		return nil
	})
	if !clusterResult.Converged {
		log.Warn("clustering hit iteration cap without converging",
			zap.Int("iterations", clusterResult.Iterations))
	}

	return sites, malformed, clusterResult, nil
}

// stage wraps one pipeline stage with duration logging.
func stage(log *zap.Logger, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	duration := time.Since(start)

	if err != nil {
		log.Error("pipeline: stage failed",
			zap.String("stage", name),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return eris.Wrapf(err, "pipeline: stage %s", name)
	}
	log.Info("pipeline: stage complete",
		zap.String("stage", name),
		zap.Duration("duration", duration),
	)
	return nil
}
