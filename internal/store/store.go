package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/trialscope/sitescope/internal/model"
)

// RunStatus tracks the lifecycle of a pipeline run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is the persisted record of one pipeline execution.
type Run struct {
	ID         string     `json:"id"`
	Query      string     `json:"query"`
	Status     RunStatus  `json:"status"`
	Trials     int        `json:"trials"`
	Sites      int        `json:"sites"`
	Malformed  int        `json:"malformed"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// RunResult carries the counters written when a run completes.
type RunResult struct {
	Trials    int `json:"trials"`
	Sites     int `json:"sites"`
	Malformed int `json:"malformed"`
}

// SiteFilter specifies criteria for listing canonical sites. A zero
// or negative Limit returns every matching row; read-modify-write
// callers rely on that to avoid truncating the site master.
type SiteFilter struct {
	Country string `json:"country,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// Store defines the persistence interface for the evaluation pipeline.
type Store interface {
	// Trials
	SaveTrials(ctx context.Context, trials []model.TrialRecord) (int, error)
	LoadTrials(ctx context.Context) ([]model.TrialRecord, error)

	// Canonical sites
	ReplaceSites(ctx context.Context, sites []*model.CanonicalSite) error
	ListSites(ctx context.Context, filter SiteFilter) ([]*model.CanonicalSite, error)
	// GetSite looks a site up by canonical name, scoped to a country
	// when one is given. Returns (nil, nil) when no site matches.
	GetSite(ctx context.Context, name, country string) (*model.CanonicalSite, error)

	// Runs
	CreateRun(ctx context.Context, query string) (*Run, error)
	CompleteRun(ctx context.Context, runID string, result RunResult) error
	FailRun(ctx context.Context, runID string, cause error) error
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open selects a backend by driver name.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "sqlite":
		return NewSQLite(dsn)
	case "postgres":
		return NewPostgres(ctx, dsn)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}
