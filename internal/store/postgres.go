package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/trialscope/sitescope/internal/model"
)

// pgPool is the subset of pgxpool.Pool the store uses, narrowed so
// pgxmock can stand in during tests.
type pgPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool pgPool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS trials (
	nct_id     TEXT PRIMARY KEY,
	record     JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sites (
	name    TEXT NOT NULL,
	country TEXT NOT NULL,
	site    JSONB NOT NULL,
	PRIMARY KEY (name, country)
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	query       TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	trials      INTEGER NOT NULL DEFAULT 0,
	sites       INTEGER NOT NULL DEFAULT 0,
	malformed   INTEGER NOT NULL DEFAULT 0,
	error       TEXT,
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_sites_country ON sites(lower(country));
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) SaveTrials(ctx context.Context, trials []model.TrialRecord) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin save trials")
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	saved := 0
	for _, trial := range trials {
		record, err := json.Marshal(trial)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: marshal trial %s", trial.NCTID)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO trials (nct_id, record, updated_at) VALUES ($1, $2, $3)
			 ON CONFLICT (nct_id) DO UPDATE SET record = EXCLUDED.record, updated_at = EXCLUDED.updated_at`,
			trial.NCTID, string(record), now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: upsert trial %s", trial.NCTID)
		}
		saved++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit save trials")
	}
	return saved, nil
}

func (s *PostgresStore) LoadTrials(ctx context.Context) ([]model.TrialRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT record FROM trials ORDER BY nct_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load trials")
	}
	defer rows.Close()

	var trials []model.TrialRecord
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, eris.Wrap(err, "postgres: scan trial")
		}
		var trial model.TrialRecord
		if err := json.Unmarshal(record, &trial); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal trial")
		}
		trials = append(trials, trial)
	}
	return trials, eris.Wrap(rows.Err(), "postgres: load trials iterate")
}

func (s *PostgresStore) ReplaceSites(ctx context.Context, sites []*model.CanonicalSite) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin replace sites")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM sites`); err != nil {
		return eris.Wrap(err, "postgres: clear sites")
	}
	for _, site := range sites {
		doc, err := json.Marshal(site)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal site %s", site.Name)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO sites (name, country, site) VALUES ($1, $2, $3)`,
			site.Name, site.Country, string(doc),
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert site %s", site.Name)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit replace sites")
}

func (s *PostgresStore) ListSites(ctx context.Context, filter SiteFilter) ([]*model.CanonicalSite, error) {
	query := `SELECT site FROM sites WHERE 1=1`
	var args []any

	if filter.Country != "" {
		args = append(args, filter.Country)
		query += ` AND lower(country) = lower($1)`
	}
	query += ` ORDER BY name`

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		if filter.Country != "" {
			query += ` LIMIT $2`
		} else {
			query += ` LIMIT $1`
		}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sites")
	}
	defer rows.Close()

	var sites []*model.CanonicalSite
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "postgres: scan site")
		}
		var site model.CanonicalSite
		if err := json.Unmarshal(doc, &site); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal site")
		}
		sites = append(sites, &site)
	}
	return sites, eris.Wrap(rows.Err(), "postgres: list sites iterate")
}

func (s *PostgresStore) GetSite(ctx context.Context, name, country string) (*model.CanonicalSite, error) {
	query := `SELECT site FROM sites WHERE lower(name) = lower($1)`
	args := []any{name}
	if country != "" {
		query += ` AND lower(country) = lower($2)`
		args = append(args, country)
	}
	query += ` ORDER BY country LIMIT 1`

	row := s.pool.QueryRow(ctx, query, args...)

	var doc []byte
	err := row.Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get site")
	}
	var site model.CanonicalSite
	if err := json.Unmarshal(doc, &site); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal site")
	}
	return &site, nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, query string) (*Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, query, status, started_at) VALUES ($1, $2, $3, $4)`,
		id, query, string(RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &Run{ID: id, Query: query, Status: RunStatusRunning, StartedAt: now}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, result RunResult) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, trials = $2, sites = $3, malformed = $4, finished_at = $5 WHERE id = $6`,
		string(RunStatusComplete), result.Trials, result.Sites, result.Malformed, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, cause error) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, error = $2, finished_at = $3 WHERE id = $4`,
		string(RunStatusFailed), cause.Error(), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, query, status, trials, sites, malformed, error, started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var errMsg *string
		var finished *time.Time
		if err := rows.Scan(&r.ID, &r.Query, &r.Status, &r.Trials, &r.Sites, &r.Malformed, &errMsg, &r.StartedAt, &finished); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if errMsg != nil {
			r.Error = *errMsg
		}
		r.FinishedAt = finished
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}
