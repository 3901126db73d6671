// Package store persists catalog records, enrichments, runs, and the
// append-only pipeline log. Two backends implement the same interface:
// SQLite for local single-operator use and Postgres for shared deployments.
package store

import (
	"context"

	"github.com/sells-group/catalog-enrich/internal/model"
)

// CandidateFilter narrows which raw records a batch considers.
type CandidateFilter struct {
	Brand    string `json:"brand,omitempty"`
	Category string `json:"category,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}

// RunFilter specifies criteria for listing run reports.
type RunFilter struct {
	Mode   model.RunMode `json:"mode,omitempty"`
	Limit  int           `json:"limit,omitempty"`
	Offset int           `json:"offset,omitempty"`
}

// CatalogSource is the read/import side of the catalog: the raw records
// the upstream system owns. The pipeline treats them as immutable input.
type CatalogSource interface {
	// ImportRaw upserts raw records keyed by normalized
	// (manufacturer, part number) and reports how many rows were written.
	ImportRaw(ctx context.Context, records []model.RawProductRecord) (int64, error)

	// ListCandidates returns raw records matching the filter in a stable
	// order (manufacturer, then part number) so repeated runs see the
	// same batch.
	ListCandidates(ctx context.Context, filter CandidateFilter) ([]model.RawProductRecord, error)

	// GetRaw returns the raw record for the key, or (nil, nil) when absent.
	GetRaw(ctx context.Context, key model.RecordKey) (*model.RawProductRecord, error)
}

// EnrichmentStore is the write side: enriched records, run reports, and
// the per-run structured log.
type EnrichmentStore interface {
	// GetEnriched returns the enrichment for the key, or (nil, nil) when absent.
	GetEnriched(ctx context.Context, key model.RecordKey) (*model.EnrichedRecord, error)

	// UpsertEnriched writes the record. It returns written=false without
	// touching the row when the stored hash and version already match,
	// which keeps re-runs idempotent.
	UpsertEnriched(ctx context.Context, rec *model.EnrichedRecord) (written bool, err error)

	// PurgeEnriched deletes every enriched record and returns the count.
	PurgeEnriched(ctx context.Context) (int64, error)

	// SaveRun persists a finished run report.
	SaveRun(ctx context.Context, report *model.RunReport) error

	// GetRun returns the report for the run ID, or (nil, nil) when absent.
	GetRun(ctx context.Context, runID string) (*model.RunReport, error)

	// ListRuns returns reports newest-first.
	ListRuns(ctx context.Context, filter RunFilter) ([]model.RunReport, error)

	// AppendLog appends one event to the run's structured log.
	AppendLog(ctx context.Context, runID string, event model.RunEvent) error

	// ListLogs returns a run's events in append order.
	ListLogs(ctx context.Context, runID string) ([]model.RunEvent, error)
}

// Store is the full persistence surface the pipeline and server depend on.
type Store interface {
	CatalogSource
	EnrichmentStore

	Migrate(ctx context.Context) error
	Close() error
}
