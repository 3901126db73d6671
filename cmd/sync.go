package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-enrich/internal/search"
	"github.com/sells-group/catalog-enrich/internal/store"
)

var (
	syncBrand    string
	syncCategory string
	syncLimit    int
	syncPurge    bool
	syncSettings string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push enriched catalog records to the search index",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("sync"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		syncer, err := initSynchronizer(ctx)
		if err != nil {
			return err
		}

		// Settings are applied only on explicit request; data sync alone
		// never changes the index schema.
		if syncSettings != "" {
			settings, err := search.LoadSettings(syncSettings)
			if err != nil {
				return err
			}
			if err := syncer.ApplySettings(ctx, settings); err != nil {
				return err
			}
			zap.L().Info("index settings applied", zap.String("file", syncSettings))
		}

		if syncPurge {
			if err := syncer.Purge(ctx); err != nil {
				return eris.Wrap(err, "sync: purge index")
			}
			zap.L().Info("search index purged")
		}

		pairs, err := collectPairs(ctx, st, store.CandidateFilter{
			Brand:    syncBrand,
			Category: syncCategory,
			Limit:    syncLimit,
		})
		if err != nil {
			return err
		}

		synced, err := syncer.Sync(ctx, pairs)
		if err != nil {
			return eris.Wrapf(err, "sync: pushed %d objects before failure", synced)
		}

		zap.L().Info("sync finished", zap.Int("synced", synced))
		return nil
	},
}

// initSynchronizer wires the Elasticsearch engine from config and fails
// fast when the cluster is unreachable.
func initSynchronizer(ctx context.Context) (*search.Synchronizer, error) {
	engine, err := search.NewElastic(search.ElasticConfig{
		Addresses: cfg.Search.Addresses,
		Index:     cfg.Search.Index,
		APIKey:    cfg.Search.APIKey,
	})
	if err != nil {
		return nil, err
	}
	if err := engine.Ping(ctx); err != nil {
		return nil, err
	}

	syncer := search.NewSynchronizer(engine, retryFromConfig())
	syncer.SetBatchSize(cfg.Search.BatchSize)
	return syncer, nil
}

// collectPairs joins each raw candidate with its stored enrichment.
func collectPairs(ctx context.Context, st store.Store, filter store.CandidateFilter) ([]search.Pair, error) {
	records, err := st.ListCandidates(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "sync: list candidates")
	}

	pairs := make([]search.Pair, 0, len(records))
	for _, raw := range records {
		enriched, err := st.GetEnriched(ctx, raw.Key())
		if err != nil {
			return nil, eris.Wrapf(err, "sync: load enrichment for %s", raw.Key())
		}
		pairs = append(pairs, search.Pair{Raw: raw, Enriched: enriched})
	}
	return pairs, nil
}

func init() {
	syncCmd.Flags().StringVar(&syncBrand, "brand", "", "only sync records from this manufacturer")
	syncCmd.Flags().StringVar(&syncCategory, "category", "", "only sync records in this category")
	syncCmd.Flags().IntVar(&syncLimit, "limit", 0, "max records to sync (0 = all)")
	syncCmd.Flags().BoolVar(&syncPurge, "purge", false, "clear the index before syncing")
	syncCmd.Flags().StringVar(&syncSettings, "settings", "", "apply index settings from this YAML file before syncing")
	rootCmd.AddCommand(syncCmd)
}
