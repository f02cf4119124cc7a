package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/trialscope/sitescope/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS trials (
	nct_id     TEXT PRIMARY KEY,
	record     TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS sites (
	name    TEXT NOT NULL COLLATE NOCASE,
	country TEXT NOT NULL,
	site    TEXT NOT NULL,
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
	started_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_sites_country ON sites(country);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveTrials upserts trial records keyed by NCT ID and returns the
// number written.
func (s *SQLiteStore) SaveTrials(ctx context.Context, trials []model.TrialRecord) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin save trials")
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	saved := 0
	for _, trial := range trials {
		record, err := json.Marshal(trial)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: marshal trial %s", trial.NCTID)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO trials (nct_id, record, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(nct_id) DO UPDATE SET record = excluded.record, updated_at = excluded.updated_at`,
			trial.NCTID, string(record), now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert trial %s", trial.NCTID)
		}
		saved++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit save trials")
	}
	return saved, nil
}

func (s *SQLiteStore) LoadTrials(ctx context.Context) ([]model.TrialRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT record FROM trials ORDER BY nct_id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load trials")
	}
	defer rows.Close()

	var trials []model.TrialRecord
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan trial")
		}
		var trial model.TrialRecord
		if err := json.Unmarshal([]byte(record), &trial); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal trial")
		}
		trials = append(trials, trial)
	}
	return trials, eris.Wrap(rows.Err(), "sqlite: load trials iterate")
}

// ReplaceSites swaps the full canonical site set atomically. Sites are
// derived data, so partial updates are never meaningful.
func (s *SQLiteStore) ReplaceSites(ctx context.Context, sites []*model.CanonicalSite) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace sites")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sites`); err != nil {
		return eris.Wrap(err, "sqlite: clear sites")
	}
	for _, site := range sites {
		doc, err := json.Marshal(site)
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal site %s", site.Name)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO sites (name, country, site) VALUES (?, ?, ?)`,
			site.Name, site.Country, string(doc),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert site %s", site.Name)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit replace sites")
}

func (s *SQLiteStore) ListSites(ctx context.Context, filter SiteFilter) ([]*model.CanonicalSite, error) {
	query := `SELECT site FROM sites WHERE 1=1`
	var args []any

	if filter.Country != "" {
		query += ` AND country = ? COLLATE NOCASE`
		args = append(args, filter.Country)
	}
	query += ` ORDER BY name`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sites")
	}
	defer rows.Close()

	var sites []*model.CanonicalSite
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		sites = append(sites, site)
	}
	return sites, eris.Wrap(rows.Err(), "sqlite: list sites iterate")
}

func (s *SQLiteStore) GetSite(ctx context.Context, name, country string) (*model.CanonicalSite, error) {
	query := `SELECT site FROM sites WHERE name = ? COLLATE NOCASE`
	args := []any{name}
	if country != "" {
		query += ` AND country = ? COLLATE NOCASE`
		args = append(args, country)
	}
	query += ` ORDER BY country LIMIT 1`

	row := s.db.QueryRowContext(ctx, query, args...)

	site, err := scanSite(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return site, err
}

func (s *SQLiteStore) CreateRun(ctx context.Context, query string) (*Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, query, status, started_at) VALUES (?, ?, ?, ?)`,
		id, query, string(RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &Run{ID: id, Query: query, Status: RunStatusRunning, StartedAt: now}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, result RunResult) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, trials = ?, sites = ?, malformed = ?, finished_at = ? WHERE id = ?`,
		string(RunStatusComplete), result.Trials, result.Sites, result.Malformed, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, cause error) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(RunStatusFailed), cause.Error(), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, query, status, trials, sites, malformed, error, started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var errMsg sql.NullString
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.Query, &r.Status, &r.Trials, &r.Sites, &r.Malformed, &errMsg, &r.StartedAt, &finished); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		r.Error = errMsg.String
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSite(row scannable) (*model.CanonicalSite, error) {
	var doc string
	err := row.Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan site")
	}
	var site model.CanonicalSite
	if err := json.Unmarshal([]byte(doc), &site); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal site")
	}
	return &site, nil
}
