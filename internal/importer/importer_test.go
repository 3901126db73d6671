package importer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func TestReadCSV_MapsRecognizedColumns(t *testing.T) {
	csv := `Part Number,Manufacturer,Name,Category,UOM,Cost,Price,In Stock,Tags
AB-100,Acme,Widget,fasteners,EA,1.50,4.99,yes,steel; zinc
AB-200,Acme,Gadget,fasteners,EA,2.00,6.99,0,
`
	records, err := ReadCSV(context.Background(), strings.NewReader(csv), Options{})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "AB-100", records[0].PartNumber)
	assert.Equal(t, "Acme", records[0].Manufacturer)
	assert.Equal(t, "Widget", records[0].Name)
	assert.Equal(t, "fasteners", records[0].Category)
	assert.Equal(t, "EA", records[0].UnitOfMeasure)
	assert.InDelta(t, 1.50, records[0].Cost, 0.001)
	assert.InDelta(t, 4.99, records[0].Price, 0.001)
	assert.True(t, records[0].InStock)
	assert.Equal(t, []string{"steel", "zinc"}, records[0].Tags)

	assert.False(t, records[1].InStock)
	assert.Empty(t, records[1].Tags)
}

func TestReadCSV_HeaderAliases(t *testing.T) {
	csv := `SKU,Brand,Title,List Price
AB-100,Acme,Widget,"$1,299.00"
`
	records, err := ReadCSV(context.Background(), strings.NewReader(csv), Options{})
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, "AB-100", records[0].PartNumber)
	assert.Equal(t, "Acme", records[0].Manufacturer)
	assert.Equal(t, "Widget", records[0].Name)
	assert.InDelta(t, 1299.0, records[0].Price, 0.001)
}

func TestReadCSV_SkipsRowsWithoutPartNumber(t *testing.T) {
	csv := `Part Number,Manufacturer
AB-100,Acme
,Acme
AB-200,Acme
`
	records, err := ReadCSV(context.Background(), strings.NewReader(csv), Options{})
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestReadCSV_MissingPartColumn(t *testing.T) {
	csv := `Manufacturer,Name
Acme,Widget
`
	_, err := ReadCSV(context.Background(), strings.NewReader(csv), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no part number column")
}

func TestReadCSV_MissingManufacturerColumn(t *testing.T) {
	csv := `Part Number,Name
AB-100,Widget
`
	_, err := ReadCSV(context.Background(), strings.NewReader(csv), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no manufacturer column")
}

func TestReadCSV_CustomDelimiter(t *testing.T) {
	csv := "Part Number;Manufacturer\nAB-100;Acme\n"
	records, err := ReadCSV(context.Background(), strings.NewReader(csv), Options{Delimiter: ';'})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "AB-100", records[0].PartNumber)
}

func writeTestXLSX(t *testing.T, sheetName string, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName)
	require.NoError(t, err)
	for _, row := range rows {
		r := sheet.AddRow()
		for _, cell := range row {
			r.AddCell().SetString(cell)
		}
	}
	path := filepath.Join(t.TempDir(), "catalog.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestReadXLSX(t *testing.T) {
	path := writeTestXLSX(t, "Products", [][]string{
		{"Part Number", "Manufacturer", "Name", "Cost", "Price", "In Stock"},
		{"AB-100", "Acme", "Widget", "1.50", "4.99", "yes"},
	})

	records, err := ReadXLSX(context.Background(), path, Options{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "AB-100", records[0].PartNumber)
	assert.InDelta(t, 1.50, records[0].Cost, 0.001)
	assert.True(t, records[0].InStock)
}

func TestReadXLSX_NamedSheet(t *testing.T) {
	path := writeTestXLSX(t, "Products", [][]string{
		{"Part Number", "Manufacturer"},
		{"AB-100", "Acme"},
	})

	_, err := ReadXLSX(context.Background(), path, Options{SheetName: "Missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	records, err := ReadXLSX(context.Background(), path, Options{SheetName: "Products"})
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestReadFile_DispatchesByExtension(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "catalog.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("Part Number,Manufacturer\nAB-100,Acme\n"), 0644))

	records, err := ReadFile(context.Background(), csvPath, Options{})
	require.NoError(t, err)
	assert.Len(t, records, 1)

	_, err = ReadFile(context.Background(), filepath.Join(dir, "catalog.txt"), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")
}

func TestParseHelpers(t *testing.T) {
	assert.InDelta(t, 1299.5, parseFloat("$1,299.50"), 0.001)
	assert.Zero(t, parseFloat("n/a"))

	assert.True(t, parseBool("Yes"))
	assert.True(t, parseBool("12"))
	assert.False(t, parseBool("0"))
	assert.False(t, parseBool("no"))
	assert.False(t, parseBool(""))
}
