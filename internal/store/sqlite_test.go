package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalog-enrich/internal/model"
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

func rawFixture(manufacturer, part string) model.RawProductRecord {
	return model.RawProductRecord{
		PartNumber:   part,
		Manufacturer: manufacturer,
		Name:         "Widget " + part,
		Category:     "fasteners",
		Cost:         1.25,
		Price:        3.99,
		InStock:      true,
	}
}

func enrichedFixture(manufacturer, part string) *model.EnrichedRecord {
	return &model.EnrichedRecord{
		Manufacturer: manufacturer,
		PartNumber:   part,
		Sections: model.Sections{
			Identity: model.IdentitySection{Name: "Widget " + part, PartNumber: part, Brand: manufacturer},
		},
		QualityScore:  45,
		QualityBucket: model.BucketMedium,
		Hash:          "hash-" + part,
		Version:       "v1",
	}
}

// --- Raw products ---

func TestSQLite_ImportRaw_AndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	n, err := st.ImportRaw(ctx, []model.RawProductRecord{
		rawFixture("Acme", "AB-100"),
		rawFixture("Acme", "AB-200"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := st.GetRaw(ctx, model.NewRecordKey("Acme", "AB-100"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Widget AB-100", got.Name)
}

func TestSQLite_ImportRaw_KeyNormalization(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.ImportRaw(ctx, []model.RawProductRecord{rawFixture("ACME  Corp", "AB-100")})
	require.NoError(t, err)

	// Differing upstream formatting resolves to the same key.
	got, err := st.GetRaw(ctx, model.NewRecordKey("acme corp", "ab-100"))
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestSQLite_ImportRaw_SkipsEmptyKeys(t *testing.T) {
	st := newTestSQLiteStore(t)

	n, err := st.ImportRaw(context.Background(), []model.RawProductRecord{
		{Manufacturer: "Acme"},            // no part number
		{PartNumber: "AB-1"},              // no manufacturer
		rawFixture("Acme", "AB-100"),      // valid
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSQLite_GetRaw_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	got, err := st.GetRaw(context.Background(), model.NewRecordKey("nobody", "nothing"))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_ListCandidates_StableOrder(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.ImportRaw(ctx, []model.RawProductRecord{
		rawFixture("Zeta", "Z-1"),
		rawFixture("Acme", "AB-200"),
		rawFixture("Acme", "AB-100"),
	})
	require.NoError(t, err)

	first, err := st.ListCandidates(ctx, CandidateFilter{})
	require.NoError(t, err)
	second, err := st.ListCandidates(ctx, CandidateFilter{})
	require.NoError(t, err)

	require.Len(t, first, 3)
	assert.Equal(t, first, second)
	assert.Equal(t, "AB-100", first[0].PartNumber)
	assert.Equal(t, "Z-1", first[2].PartNumber)
}

func TestSQLite_ListCandidates_Filters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	other := rawFixture("Zeta", "Z-1")
	other.Category = "adhesives"
	_, err := st.ImportRaw(ctx, []model.RawProductRecord{
		rawFixture("Acme", "AB-100"),
		rawFixture("Acme", "AB-200"),
		other,
	})
	require.NoError(t, err)

	byBrand, err := st.ListCandidates(ctx, CandidateFilter{Brand: "ACME"})
	require.NoError(t, err)
	assert.Len(t, byBrand, 2)

	byCategory, err := st.ListCandidates(ctx, CandidateFilter{Category: "adhesives"})
	require.NoError(t, err)
	require.Len(t, byCategory, 1)
	assert.Equal(t, "Z-1", byCategory[0].PartNumber)

	limited, err := st.ListCandidates(ctx, CandidateFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

// --- Enriched products ---

func TestSQLite_UpsertEnriched_InsertAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	written, err := st.UpsertEnriched(ctx, enrichedFixture("Acme", "AB-100"))
	require.NoError(t, err)
	assert.True(t, written)

	got, err := st.GetEnriched(ctx, model.NewRecordKey("Acme", "AB-100"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "hash-AB-100", got.Hash)
	assert.Equal(t, model.BucketMedium, got.QualityBucket)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestSQLite_UpsertEnriched_UnchangedHashSkipsWrite(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	written, err := st.UpsertEnriched(ctx, enrichedFixture("Acme", "AB-100"))
	require.NoError(t, err)
	require.True(t, written)

	written, err = st.UpsertEnriched(ctx, enrichedFixture("Acme", "AB-100"))
	require.NoError(t, err)
	assert.False(t, written, "identical hash and version must not rewrite the row")
}

func TestSQLite_UpsertEnriched_NewHashRewrites(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	first := enrichedFixture("Acme", "AB-100")
	_, err := st.UpsertEnriched(ctx, first)
	require.NoError(t, err)

	changed := enrichedFixture("Acme", "AB-100")
	changed.Hash = "hash-changed"
	changed.QualityScore = 85
	changed.QualityBucket = model.BucketHigh

	written, err := st.UpsertEnriched(ctx, changed)
	require.NoError(t, err)
	assert.True(t, written)

	got, err := st.GetEnriched(ctx, model.NewRecordKey("Acme", "AB-100"))
	require.NoError(t, err)
	assert.Equal(t, "hash-changed", got.Hash)
	assert.Equal(t, model.BucketHigh, got.QualityBucket)
	// The original creation time survives rewrites.
	assert.Equal(t, first.CreatedAt.Unix(), got.CreatedAt.Unix())
}

func TestSQLite_UpsertEnriched_VersionBumpRewrites(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.UpsertEnriched(ctx, enrichedFixture("Acme", "AB-100"))
	require.NoError(t, err)

	bumped := enrichedFixture("Acme", "AB-100")
	bumped.Version = "v2"
	written, err := st.UpsertEnriched(ctx, bumped)
	require.NoError(t, err)
	assert.True(t, written, "same hash with a new prompt version must rewrite")
}

func TestSQLite_PurgeEnriched(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.UpsertEnriched(ctx, enrichedFixture("Acme", "AB-100"))
	require.NoError(t, err)
	_, err = st.UpsertEnriched(ctx, enrichedFixture("Acme", "AB-200"))
	require.NoError(t, err)

	n, err := st.PurgeEnriched(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := st.GetEnriched(ctx, model.NewRecordKey("Acme", "AB-100"))
	require.NoError(t, err)
	assert.Nil(t, got)
}

// --- Runs and logs ---

func TestSQLite_SaveRun_AndList(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	older := &model.RunReport{
		Mode:      model.ModeSamples,
		Processed: 10,
		Enriched:  8,
		StartedAt: now.Add(-2 * time.Hour),
		FinishedAt: now.Add(-2 * time.Hour).Add(5 * time.Minute),
	}
	newer := &model.RunReport{
		Mode:       model.ModeFull,
		Processed:  100,
		StartedAt:  now.Add(-time.Hour),
		FinishedAt: now.Add(-time.Hour).Add(20 * time.Minute),
	}
	require.NoError(t, st.SaveRun(ctx, older))
	require.NoError(t, st.SaveRun(ctx, newer))
	assert.NotEmpty(t, older.ID)

	runs, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, newer.ID, runs[0].ID, "newest first")

	samples, err := st.ListRuns(ctx, RunFilter{Mode: model.ModeSamples})
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, older.ID, samples[0].ID)
}

func TestSQLite_GetRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	report := &model.RunReport{
		Mode:       model.ModeSamples,
		TokensUsed: 1234,
		StartedAt:  time.Now().UTC(),
		FinishedAt: time.Now().UTC(),
	}
	require.NoError(t, st.SaveRun(ctx, report))

	got, err := st.GetRun(ctx, report.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(1234), got.TokensUsed)

	missing, err := st.GetRun(ctx, "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLite_AppendLog_PreservesOrder(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	runID := "run-1"
	ts := time.Now().UTC()
	for i, msg := range []string{"started", "item enriched", "finished"} {
		ev := model.RunEvent{
			Timestamp: ts,
			Level:     "info",
			Context:   "pipeline",
			Message:   msg,
			Data:      map[string]any{"i": float64(i)},
		}
		require.NoError(t, st.AppendLog(ctx, runID, ev))
	}

	events, err := st.ListLogs(ctx, runID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "started", events[0].Message)
	assert.Equal(t, "finished", events[2].Message)
	assert.Equal(t, float64(1), events[1].Data["i"])
}

func TestSQLite_ListLogs_OtherRunExcluded(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.AppendLog(ctx, "run-a", model.NewRunEvent("info", "pipeline", "a", nil)))
	require.NoError(t, st.AppendLog(ctx, "run-b", model.NewRunEvent("info", "pipeline", "b", nil)))

	events, err := st.ListLogs(ctx, "run-a")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "a", events[0].Message)
}
