package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var purgeIndex bool

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete all enriched records",
	Long:  "Clears every enriched record from the store so the next run rebuilds from scratch. Raw catalog rows are untouched.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.PurgeEnriched(ctx)
		if err != nil {
			return err
		}
		zap.L().Info("purged enriched records", zap.Int64("count", n))

		if purgeIndex {
			if err := cfg.Validate("sync"); err != nil {
				return err
			}
			syncer, err := initSynchronizer(ctx)
			if err != nil {
				return err
			}
			if err := syncer.Purge(ctx); err != nil {
				return err
			}
			zap.L().Info("purged search index", zap.String("index", cfg.Search.Index))
		}

		return nil
	},
}

func init() {
	purgeCmd.Flags().BoolVar(&purgeIndex, "index", false, "also clear the search index")
	rootCmd.AddCommand(purgeCmd)
}
