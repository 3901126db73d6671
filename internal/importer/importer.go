// Package importer loads raw catalog rows from XLSX and CSV files.
package importer

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-enrich/internal/model"
)

// Options configures file parsing.
type Options struct {
	Delimiter rune   // CSV only, default ','
	SheetName string // XLSX only, default first sheet
}

// ReadFile parses a catalog export into raw records. The format is chosen
// by file extension (.csv or .xlsx). The first row must be a header.
func ReadFile(ctx context.Context, path string, opts Options) ([]model.RawProductRecord, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrap(err, "importer: open file")
		}
		defer f.Close()
		return ReadCSV(ctx, f, opts)
	case ".xlsx":
		return ReadXLSX(ctx, path, opts)
	default:
		return nil, eris.Errorf("importer: unsupported file type %q", filepath.Ext(path))
	}
}

// ReadCSV parses catalog rows from a CSV stream.
func ReadCSV(ctx context.Context, r io.Reader, opts Options) ([]model.RawProductRecord, error) {
	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.FieldsPerRecord = -1 // allow variable fields

	var (
		mapping *columnMapping
		records []model.RawProductRecord
		rowNum  int
	)
	for {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "importer: context cancelled")
		}

		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "importer: read row %d", rowNum+1)
		}
		rowNum++

		if mapping == nil {
			m, err := mapColumns(row)
			if err != nil {
				return nil, err
			}
			mapping = m
			continue
		}

		rec, ok := mapping.record(row)
		if !ok {
			zap.L().Warn("skipping row without part number", zap.Int("row", rowNum))
			continue
		}
		records = append(records, rec)
	}

	return records, nil
}

// columnMapping maps recognized header names to column indexes.
type columnMapping struct {
	index map[string]int
}

// headerAliases maps canonical field names to the header spellings seen in
// catalog exports. Matching is case-insensitive after squashing spaces and
// underscores.
var headerAliases = map[string][]string{
	"part_number":     {"part number", "part", "mpn", "sku", "item number", "item"},
	"manufacturer":    {"manufacturer", "mfr", "brand", "vendor"},
	"name":            {"name", "product name", "title"},
	"description":     {"description", "desc", "long description"},
	"category":        {"category", "product category", "group"},
	"unit_of_measure": {"unit of measure", "uom", "unit"},
	"cost":            {"cost", "unit cost"},
	"price":           {"price", "unit price", "list price"},
	"in_stock":        {"in stock", "stock", "available", "availability"},
	"custom_memo":     {"custom memo", "memo"},
	"custom_text":     {"custom text", "notes"},
	"tags":            {"tags", "keywords"},
}

func mapColumns(header []string) (*columnMapping, error) {
	byAlias := make(map[string]string)
	for field, aliases := range headerAliases {
		for _, a := range aliases {
			byAlias[a] = field
		}
	}

	m := &columnMapping{index: make(map[string]int)}
	for i, h := range header {
		key := strings.Join(strings.Fields(strings.ToLower(strings.ReplaceAll(h, "_", " "))), " ")
		field, ok := byAlias[key]
		if !ok {
			continue
		}
		if _, dup := m.index[field]; !dup {
			m.index[field] = i
		}
	}

	if _, ok := m.index["part_number"]; !ok {
		return nil, eris.New("importer: no part number column recognized in header")
	}
	if _, ok := m.index["manufacturer"]; !ok {
		return nil, eris.New("importer: no manufacturer column recognized in header")
	}
	return m, nil
}

func (m *columnMapping) cell(row []string, field string) string {
	i, ok := m.index[field]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// record maps one data row. Returns false when the row has no part number.
func (m *columnMapping) record(row []string) (model.RawProductRecord, bool) {
	part := m.cell(row, "part_number")
	if part == "" {
		return model.RawProductRecord{}, false
	}

	rec := model.RawProductRecord{
		PartNumber:    part,
		Manufacturer:  m.cell(row, "manufacturer"),
		Name:          m.cell(row, "name"),
		Description:   m.cell(row, "description"),
		Category:      m.cell(row, "category"),
		UnitOfMeasure: m.cell(row, "unit_of_measure"),
		Cost:          parseFloat(m.cell(row, "cost")),
		Price:         parseFloat(m.cell(row, "price")),
		InStock:       parseBool(m.cell(row, "in_stock")),
		CustomMemo:    m.cell(row, "custom_memo"),
		CustomText:    m.cell(row, "custom_text"),
	}
	if tags := m.cell(row, "tags"); tags != "" {
		for _, t := range strings.Split(tags, ";") {
			if t = strings.TrimSpace(t); t != "" {
				rec.Tags = append(rec.Tags, t)
			}
		}
	}
	return rec, true
}

func parseFloat(s string) float64 {
	s = strings.TrimPrefix(strings.ReplaceAll(s, ",", ""), "$")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "yes", "y", "1", "in stock", "in_stock", "available":
		return true
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n > 0
	}
	return false
}
