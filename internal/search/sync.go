package search

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/catalog-enrich/internal/model"
	"github.com/sells-group/catalog-enrich/internal/resilience"
)

// defaultBatchSize caps how many objects one bulk request carries.
const defaultBatchSize = 500

// Pair couples a raw record with its enrichment for projection. Enriched
// may be nil.
type Pair struct {
	Raw      model.RawProductRecord
	Enriched *model.EnrichedRecord
}

// Synchronizer pushes index objects to an Engine in batches.
type Synchronizer struct {
	engine    Engine
	batchSize int
	retry     resilience.RetryConfig
}

// NewSynchronizer wires a synchronizer with the default batch size.
func NewSynchronizer(engine Engine, retry resilience.RetryConfig) *Synchronizer {
	return &Synchronizer{
		engine:    engine,
		batchSize: defaultBatchSize,
		retry:     retry,
	}
}

// SetBatchSize overrides the default bulk batch size. Values < 1 are ignored.
func (s *Synchronizer) SetBatchSize(n int) {
	if n > 0 {
		s.batchSize = n
	}
}

// Sync projects and upserts every pair, returning how many objects were
// pushed. It never applies settings; schema changes are a separate,
// deliberate call.
func (s *Synchronizer) Sync(ctx context.Context, pairs []Pair) (int, error) {
	objects := make([]SearchIndexObject, 0, len(pairs))
	for _, p := range pairs {
		obj := BuildObject(p.Raw, p.Enriched)
		if obj.ObjectID == "" {
			zap.L().Warn("skipping record without a derivable object id",
				zap.String("part_number", p.Raw.PartNumber),
			)
			continue
		}
		objects = append(objects, obj)
	}

	synced := 0
	for start := 0; start < len(objects); start += s.batchSize {
		end := start + s.batchSize
		if end > len(objects) {
			end = len(objects)
		}
		batch := objects[start:end]

		err := resilience.Do(ctx, s.retry, func(ctx context.Context) error {
			return s.engine.BulkUpsert(ctx, batch)
		})
		if err != nil {
			return synced, err
		}
		synced += len(batch)
	}

	zap.L().Info("search sync complete", zap.Int("synced", synced))
	return synced, nil
}

// ApplySettings pushes the schema to the engine.
func (s *Synchronizer) ApplySettings(ctx context.Context, settings Settings) error {
	return s.engine.ApplySettings(ctx, settings)
}

// Purge clears the index before a full rebuild.
func (s *Synchronizer) Purge(ctx context.Context) error {
	return s.engine.Purge(ctx)
}
