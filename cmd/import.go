package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-enrich/internal/importer"
)

var (
	importFile  string
	importSheet string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import raw catalog rows from an XLSX or CSV file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		records, err := importer.ReadFile(ctx, importFile, importer.Options{
			SheetName: importSheet,
		})
		if err != nil {
			return eris.Wrap(err, "import: read file")
		}
		if len(records) == 0 {
			return eris.New("import: no records found in file")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		written, err := st.ImportRaw(ctx, records)
		if err != nil {
			return eris.Wrap(err, "import: write records")
		}

		zap.L().Info("import complete",
			zap.Int("parsed", len(records)),
			zap.Int64("written", written),
			zap.String("file", importFile),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "path to XLSX or CSV file (required)")
	importCmd.Flags().StringVar(&importSheet, "sheet", "", "XLSX sheet name (default first sheet)")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
