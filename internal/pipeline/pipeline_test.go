package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalog-enrich/internal/enrich"
	"github.com/sells-group/catalog-enrich/internal/model"
	"github.com/sells-group/catalog-enrich/internal/store"
	"github.com/sells-group/catalog-enrich/pkg/anthropic"
)

// mockEnricher is a programmable Enricher that counts provider calls.
type mockEnricher struct {
	mu    sync.Mutex
	calls int
	fn    func(req enrich.Request) (*enrich.Result, error)
}

func (m *mockEnricher) Enrich(_ context.Context, req enrich.Request) (*enrich.Result, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.fn != nil {
		return m.fn(req)
	}
	return &enrich.Result{
		Sections: model.Sections{
			Identity:  model.IdentitySection{Name: req.Name, PartNumber: req.PartNumber, Brand: req.Manufacturer},
			Marketing: model.MarketingSection{ValueStatement: "Reliable part."},
		},
		Usage: anthropic.TokenUsage{InputTokens: 100, OutputTokens: 50},
	}, nil
}

func (m *mockEnricher) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seedRecords(t *testing.T, st store.Store, records ...model.RawProductRecord) {
	t.Helper()
	_, err := st.ImportRaw(context.Background(), records)
	require.NoError(t, err)
}

func candidate(part string) model.RawProductRecord {
	return model.RawProductRecord{
		PartNumber:   part,
		Manufacturer: "Acme",
		Name:         "Widget " + part,
		Category:     "fasteners",
		Cost:         1.50,
		Price:        4.99,
		InStock:      true,
	}
}

func newTestPipeline(t *testing.T, st store.Store, enricher enrich.Enricher, cfg Config) *Pipeline {
	t.Helper()
	if cfg.Model == "" {
		cfg.Model = "claude-haiku-4-5-20251001"
	}
	if cfg.MaxConcurrent == 0 {
		cfg.MaxConcurrent = 1
	}
	return New(cfg, st, enricher, nil)
}

func TestRun_EnrichesCandidates(t *testing.T) {
	st := newTestStore(t)
	seedRecords(t, st, candidate("AB-100"), candidate("AB-200"))
	enricher := &mockEnricher{}
	p := newTestPipeline(t, st, enricher, Config{})

	report, err := p.Run(context.Background(), BatchDescriptor{Mode: model.ModeFull})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 2, report.Enriched)
	assert.Zero(t, report.Skipped)
	assert.Zero(t, report.Failed)
	assert.Equal(t, int64(300), report.TokensUsed)
	assert.Greater(t, report.CostEstimate, 0.0)
	assert.Equal(t, 2, enricher.callCount())

	rec, err := st.GetEnriched(context.Background(), model.NewRecordKey("Acme", "AB-100"))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.NotEmpty(t, rec.Hash)
	assert.Equal(t, "v1", rec.Version)
}

func TestRun_ZeroCostSkippedWithoutProviderCall(t *testing.T) {
	st := newTestStore(t)
	free := candidate("FREE-1")
	free.Cost = 0
	seedRecords(t, st, free)
	enricher := &mockEnricher{}
	p := newTestPipeline(t, st, enricher, Config{})

	report, err := p.Run(context.Background(), BatchDescriptor{Mode: model.ModeFull})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Skipped)
	assert.Zero(t, enricher.callCount())
}

func TestRun_DisallowedKeywordSkipped(t *testing.T) {
	st := newTestStore(t)
	placeholder := candidate("LOC-1")
	placeholder.Name = "Localization placeholder"
	byUOM := candidate("UOM-1")
	byUOM.UnitOfMeasure = "Base Unit"
	seedRecords(t, st, placeholder, byUOM, candidate("AB-100"))
	enricher := &mockEnricher{}
	p := newTestPipeline(t, st, enricher, Config{})

	report, err := p.Run(context.Background(), BatchDescriptor{Mode: model.ModeFull})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, 1, report.Enriched)
	assert.Equal(t, 1, enricher.callCount())
}

func TestRun_SecondRunIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	seedRecords(t, st, candidate("AB-100"), candidate("AB-200"), candidate("AB-300"))
	enricher := &mockEnricher{}
	p := newTestPipeline(t, st, enricher, Config{})

	first, err := p.Run(context.Background(), BatchDescriptor{Mode: model.ModeFull})
	require.NoError(t, err)
	require.Equal(t, 3, first.Enriched)
	require.Equal(t, 3, enricher.callCount())

	second, err := p.Run(context.Background(), BatchDescriptor{Mode: model.ModeFull})
	require.NoError(t, err)

	assert.Equal(t, second.Processed, second.Skipped, "unchanged input: skipped == total")
	assert.Zero(t, second.Enriched)
	assert.Equal(t, 3, enricher.callCount(), "no additional provider calls")
}

func TestRun_ChangedInputReEnriches(t *testing.T) {
	st := newTestStore(t)
	seedRecords(t, st, candidate("AB-100"))
	enricher := &mockEnricher{}
	p := newTestPipeline(t, st, enricher, Config{})

	_, err := p.Run(context.Background(), BatchDescriptor{Mode: model.ModeFull})
	require.NoError(t, err)

	changed := candidate("AB-100")
	changed.Description = "now with a description"
	seedRecords(t, st, changed)

	report, err := p.Run(context.Background(), BatchDescriptor{Mode: model.ModeFull})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Enriched)
	assert.Equal(t, 2, enricher.callCount())
}

func TestRun_VersionBumpInvalidatesHashes(t *testing.T) {
	st := newTestStore(t)
	seedRecords(t, st, candidate("AB-100"))
	enricher := &mockEnricher{}

	p1 := newTestPipeline(t, st, enricher, Config{Version: "v1"})
	_, err := p1.Run(context.Background(), BatchDescriptor{Mode: model.ModeFull})
	require.NoError(t, err)

	p2 := newTestPipeline(t, st, enricher, Config{Version: "v2"})
	report, err := p2.Run(context.Background(), BatchDescriptor{Mode: model.ModeFull})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Enriched)
}

func TestRun_FailureIsolation(t *testing.T) {
	st := newTestStore(t)
	seedRecords(t, st, candidate("AB-100"), candidate("BAD-1"), candidate("AB-200"))
	enricher := &mockEnricher{fn: func(req enrich.Request) (*enrich.Result, error) {
		if req.PartNumber == "BAD-1" {
			return nil, errors.New("provider exploded")
		}
		return &enrich.Result{
			Sections: model.Sections{Identity: model.IdentitySection{Name: req.Name}},
			Usage:    anthropic.TokenUsage{InputTokens: 10, OutputTokens: 5},
		}, nil
	}}
	p := newTestPipeline(t, st, enricher, Config{})

	report, err := p.Run(context.Background(), BatchDescriptor{Mode: model.ModeFull})
	require.NoError(t, err, "one bad record must not abort the batch")

	assert.Equal(t, 3, report.Processed)
	assert.Equal(t, 2, report.Enriched)
	assert.Equal(t, 1, report.Failed)
}

func TestRun_BudgetExceededStopsScheduling(t *testing.T) {
	st := newTestStore(t)
	seedRecords(t, st, candidate("AB-100"), candidate("AB-200"), candidate("AB-300"), candidate("AB-400"))
	enricher := &mockEnricher{}
	p := newTestPipeline(t, st, enricher, Config{BudgetMaxTokens: 200})

	report, err := p.Run(context.Background(), BatchDescriptor{Mode: model.ModeFull})
	require.NoError(t, err, "budget exhaustion is not an error")

	// Each item consumes 150 tokens; the ceiling trips after the second.
	assert.Less(t, report.Processed, 4)
	var found bool
	for _, ev := range report.Events {
		if ev.Message == model.EventBudgetExceeded {
			found = true
		}
	}
	assert.True(t, found, "terminal BudgetExceeded event recorded")
}

func TestRun_OfflineSkipsProvider(t *testing.T) {
	st := newTestStore(t)
	seedRecords(t, st, candidate("AB-100"))
	enricher := &mockEnricher{}
	p := newTestPipeline(t, st, enricher, Config{})

	report, err := p.Run(context.Background(), BatchDescriptor{Mode: model.ModeFull, Offline: true})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Enriched)
	assert.Zero(t, enricher.callCount())
	assert.Zero(t, report.TokensUsed)

	rec, err := st.GetEnriched(context.Background(), model.NewRecordKey("Acme", "AB-100"))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Widget AB-100", rec.Sections.Identity.Name)
}

func TestRun_PurgeClearsStoreFirst(t *testing.T) {
	st := newTestStore(t)
	seedRecords(t, st, candidate("AB-100"))
	enricher := &mockEnricher{}
	p := newTestPipeline(t, st, enricher, Config{})

	_, err := p.Run(context.Background(), BatchDescriptor{Mode: model.ModeFull})
	require.NoError(t, err)

	// With purge, the hash-match skip cannot apply: everything re-enriches.
	report, err := p.Run(context.Background(), BatchDescriptor{Mode: model.ModeFull, Purge: true})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Enriched)
	assert.Equal(t, 2, enricher.callCount())
}

func TestRun_SamplesModeLimit(t *testing.T) {
	st := newTestStore(t)
	seedRecords(t, st, candidate("AB-100"), candidate("AB-200"), candidate("AB-300"))
	enricher := &mockEnricher{}
	p := newTestPipeline(t, st, enricher, Config{SampleLimit: 2})

	report, err := p.Run(context.Background(), BatchDescriptor{Mode: model.ModeSamples})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Processed)
}

func TestRun_BrandFilter(t *testing.T) {
	st := newTestStore(t)
	other := candidate("Z-1")
	other.Manufacturer = "Zeta"
	seedRecords(t, st, candidate("AB-100"), other)
	enricher := &mockEnricher{}
	p := newTestPipeline(t, st, enricher, Config{})

	report, err := p.Run(context.Background(), BatchDescriptor{Mode: model.ModeFull, BrandFilter: "Acme"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
}

func TestRun_PersistsReportAndLogs(t *testing.T) {
	st := newTestStore(t)
	seedRecords(t, st, candidate("AB-100"))
	enricher := &mockEnricher{}
	p := newTestPipeline(t, st, enricher, Config{})

	report, err := p.Run(context.Background(), BatchDescriptor{Mode: model.ModeFull})
	require.NoError(t, err)

	saved, err := st.GetRun(context.Background(), report.ID)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, report.Enriched, saved.Enriched)

	logs, err := st.ListLogs(context.Background(), report.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, logs)
	assert.Equal(t, "run started", logs[0].Message)
}

func TestRun_ProviderWarningsPersisted(t *testing.T) {
	st := newTestStore(t)
	seedRecords(t, st, candidate("AB-100"))
	enricher := &mockEnricher{fn: func(req enrich.Request) (*enrich.Result, error) {
		return &enrich.Result{
			Sections: model.Sections{Identity: model.IdentitySection{Name: req.Name}},
			Warnings: []string{"unparseable provider response: fallback enrichment"},
			Fallback: true,
		}, nil
	}}
	p := newTestPipeline(t, st, enricher, Config{})

	report, err := p.Run(context.Background(), BatchDescriptor{Mode: model.ModeFull})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Enriched)

	rec, err := st.GetEnriched(context.Background(), model.NewRecordKey("Acme", "AB-100"))
	require.NoError(t, err)
	require.Len(t, rec.Warnings, 1)
}

func TestSkipReason(t *testing.T) {
	p := newTestPipeline(t, nil, nil, Config{})

	assert.Equal(t, "zero cost", p.skipReason(model.RawProductRecord{Name: "Widget"}))

	loc := candidate("X")
	loc.Name = "Spanish LOCALIZATION row"
	assert.Contains(t, p.skipReason(loc), "disallowed keyword")

	ok := candidate("X")
	assert.Empty(t, p.skipReason(ok))
}
