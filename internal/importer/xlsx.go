package importer

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-enrich/internal/model"
)

// ReadXLSX parses catalog rows from an XLSX workbook. The first row of the
// chosen sheet must be a header.
func ReadXLSX(ctx context.Context, path string, opts Options) ([]model.RawProductRecord, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "importer: open xlsx")
	}

	sheet, err := pickSheet(f, opts.SheetName)
	if err != nil {
		return nil, err
	}

	var (
		mapping *columnMapping
		records []model.RawProductRecord
	)
	for i, row := range sheet.Rows {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "importer: context cancelled")
		}

		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}

		if mapping == nil {
			m, err := mapColumns(cells)
			if err != nil {
				return nil, err
			}
			mapping = m
			continue
		}

		rec, ok := mapping.record(cells)
		if !ok {
			zap.L().Warn("skipping row without part number", zap.Int("row", i+1))
			continue
		}
		records = append(records, rec)
	}

	return records, nil
}

func pickSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name != "" {
		sheet, ok := f.Sheet[name]
		if !ok {
			return nil, eris.Errorf("importer: sheet %q not found", name)
		}
		return sheet, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("importer: workbook has no sheets")
	}
	return f.Sheets[0], nil
}
