package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/trialscope/sitescope/internal/store"
	"github.com/trialscope/sitescope/pkg/ctgov"
)

// initStore opens the configured backend and applies migrations.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// registryClient builds the ClinicalTrials.gov client from config.
func registryClient() ctgov.Client {
	return ctgov.NewClient(
		ctgov.WithBaseURL(cfg.Registry.BaseURL),
		ctgov.WithRateLimit(cfg.Registry.RatePerSec),
		ctgov.WithRetry(cfg.Registry.MaxRetries, time.Duration(cfg.Registry.RetryDelaySecs)*time.Second),
	)
}
