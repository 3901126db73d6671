package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-enrich/internal/search"
)

var (
	settingsFile string
	settingsShow bool
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Apply index settings to the search engine",
	Long:  "Pushes searchable attributes, facets, and ranking configuration to the search index. Defaults are used unless a YAML file overrides them.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		settings := search.DefaultSettings()
		if settingsFile != "" {
			var err error
			settings, err = search.LoadSettings(settingsFile)
			if err != nil {
				return err
			}
		}

		if settingsShow {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(settings)
		}

		if err := cfg.Validate("sync"); err != nil {
			return err
		}

		syncer, err := initSynchronizer(ctx)
		if err != nil {
			return err
		}
		if err := syncer.ApplySettings(ctx, settings); err != nil {
			return err
		}

		zap.L().Info("index settings applied", zap.String("index", cfg.Search.Index))
		return nil
	},
}

func init() {
	settingsCmd.Flags().StringVar(&settingsFile, "file", "", "YAML file with settings overrides")
	settingsCmd.Flags().BoolVar(&settingsShow, "show", false, "print the effective settings without applying them")
	rootCmd.AddCommand(settingsCmd)
}
