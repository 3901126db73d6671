package search

import "context"

// Engine is the search backend contract the synchronizer depends on.
// Data sync and settings application are independent operations: a sync
// never implies a schema change.
type Engine interface {
	// BulkUpsert replaces each object by its ObjectID.
	BulkUpsert(ctx context.Context, objects []SearchIndexObject) error

	// ApplySettings pushes the index schema.
	ApplySettings(ctx context.Context, settings Settings) error

	// Purge removes every object from the index.
	Purge(ctx context.Context) error
}
