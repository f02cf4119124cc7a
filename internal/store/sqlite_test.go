package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trialscope/sitescope/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func sampleTrial(nctID string, status model.Status) model.TrialRecord {
	start := time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)
	return model.TrialRecord{
		NCTID:      nctID,
		Title:      "A Study of Something",
		Status:     status,
		Phase:      "Phase 3",
		Conditions: []string{"Breast Cancer"},
		Sponsor:    "Acme Pharma",
		Enrollment: 120,
		StartDate:  &start,
		Locations: []model.LocationRecord{
			{Facility: "Seoul National University Hospital", City: "Seoul", Country: "Korea, Republic of"},
		},
	}
}

func TestSQLite_Trials_RoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	n, err := st.SaveTrials(ctx, []model.TrialRecord{
		sampleTrial("NCT00000001", model.StatusCompleted),
		sampleTrial("NCT00000002", model.StatusRecruiting),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	trials, err := st.LoadTrials(ctx)
	require.NoError(t, err)
	require.Len(t, trials, 2)
	assert.Equal(t, "NCT00000001", trials[0].NCTID)
	assert.Equal(t, "Seoul National University Hospital", trials[0].Locations[0].Facility)
	require.NotNil(t, trials[0].StartDate)
}

func TestSQLite_Trials_UpsertByNCTID(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.SaveTrials(ctx, []model.TrialRecord{sampleTrial("NCT00000001", model.StatusRecruiting)})
	require.NoError(t, err)
	_, err = st.SaveTrials(ctx, []model.TrialRecord{sampleTrial("NCT00000001", model.StatusCompleted)})
	require.NoError(t, err)

	trials, err := st.LoadTrials(ctx)
	require.NoError(t, err)
	require.Len(t, trials, 1)
	assert.Equal(t, model.StatusCompleted, trials[0].Status)
}

func TestSQLite_Sites_ReplaceAndList(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	first := []*model.CanonicalSite{
		{Name: "Seoul National University Hospital", Country: "Korea, Republic of"},
		{Name: "Mayo Clinic", Country: "United States"},
	}
	require.NoError(t, st.ReplaceSites(ctx, first))

	// Replacing swaps the whole set.
	second := []*model.CanonicalSite{
		{Name: "Charite Berlin", Country: "Germany", Counters: model.SiteCounters{Total: 7, Completed: 4}},
	}
	require.NoError(t, st.ReplaceSites(ctx, second))

	sites, err := st.ListSites(ctx, SiteFilter{})
	require.NoError(t, err)
	require.Len(t, sites, 1)
	assert.Equal(t, "Charite Berlin", sites[0].Name)
	assert.Equal(t, 7, sites[0].Counters.Total)
}

func TestSQLite_Sites_CountryFilterAndLimit(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.ReplaceSites(ctx, []*model.CanonicalSite{
		{Name: "a", Country: "Germany"},
		{Name: "b", Country: "germany"},
		{Name: "c", Country: "France"},
	}))

	sites, err := st.ListSites(ctx, SiteFilter{Country: "Germany"})
	require.NoError(t, err)
	assert.Len(t, sites, 2)

	sites, err = st.ListSites(ctx, SiteFilter{Country: "Germany", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, sites, 1)
}

func TestSQLite_ListSites_NoLimitReturnsAll(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	// Populations well past any page size must survive a
	// list-then-replace round trip intact.
	sites := make([]*model.CanonicalSite, 1200)
	for i := range sites {
		sites[i] = &model.CanonicalSite{
			Name:    fmt.Sprintf("Site %04d", i),
			Country: "United States",
		}
	}
	require.NoError(t, st.ReplaceSites(ctx, sites))

	listed, err := st.ListSites(ctx, SiteFilter{})
	require.NoError(t, err)
	require.Len(t, listed, 1200)

	require.NoError(t, st.ReplaceSites(ctx, listed))
	listed, err = st.ListSites(ctx, SiteFilter{})
	require.NoError(t, err)
	assert.Len(t, listed, 1200)
}

func TestSQLite_GetSite_CaseInsensitive(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.ReplaceSites(ctx, []*model.CanonicalSite{
		{Name: "Mayo Clinic", Country: "United States", ExperienceIndex: 12},
	}))

	site, err := st.GetSite(ctx, "mayo clinic", "")
	require.NoError(t, err)
	require.NotNil(t, site)
	assert.Equal(t, 12, site.ExperienceIndex)
}

func TestSQLite_GetSite_CountryScoped(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	// Same canonical name in two countries; the lookup must honor the
	// country half of the key.
	require.NoError(t, st.ReplaceSites(ctx, []*model.CanonicalSite{
		{Name: "General Hospital", Country: "France", ExperienceIndex: 3},
		{Name: "General Hospital", Country: "Germany", ExperienceIndex: 8},
	}))

	site, err := st.GetSite(ctx, "General Hospital", "germany")
	require.NoError(t, err)
	require.NotNil(t, site)
	assert.Equal(t, 8, site.ExperienceIndex)

	site, err = st.GetSite(ctx, "General Hospital", "Spain")
	require.NoError(t, err)
	assert.Nil(t, site)
}

func TestSQLite_GetSite_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	site, err := st.GetSite(context.Background(), "nowhere", "")
	require.NoError(t, err)
	assert.Nil(t, site)
}

func TestSQLite_Runs_Lifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "condition=cancer phase=Phase 3")
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	assert.Equal(t, RunStatusRunning, run.Status)

	require.NoError(t, st.CompleteRun(ctx, run.ID, RunResult{Trials: 40, Sites: 12, Malformed: 1}))

	runs, err := st.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, RunStatusComplete, runs[0].Status)
	assert.Equal(t, 40, runs[0].Trials)
	assert.Equal(t, 12, runs[0].Sites)
	assert.Equal(t, 1, runs[0].Malformed)
	assert.NotNil(t, runs[0].FinishedAt)
}

func TestSQLite_FailRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "q")
	require.NoError(t, err)

	require.NoError(t, st.FailRun(ctx, run.ID, eris.New("registry unavailable")))

	runs, err := st.ListRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, RunStatusFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "registry unavailable")
}

func TestSQLite_CompleteRun_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.CompleteRun(context.Background(), "no-such-run", RunResult{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "dsn")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}
