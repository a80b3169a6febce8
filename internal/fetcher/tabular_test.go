package fetcher

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func writeWorkbook(t *testing.T, sheets ...string) (string, *xlsx.File) {
	t.Helper()
	wb := xlsx.NewFile()
	for _, name := range sheets {
		_, err := wb.AddSheet(name)
		require.NoError(t, err)
	}
	return filepath.Join(t.TempDir(), "manifest.xlsx"), wb
}

func addRow(sheet *xlsx.Sheet, cells ...string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().SetString(c)
	}
}

func TestSheetRows(t *testing.T) {
	path, wb := writeWorkbook(t, "Blocks", "Vineyards")
	addRow(wb.Sheet["Blocks"], "ignored")
	vines := wb.Sheet["Vineyards"]
	addRow(vines, "Name", "link_kml_outline")
	addRow(vines, " Stags Leap ", "https://example.com/a.kml", "", "")
	addRow(vines, "Carneros")
	require.NoError(t, wb.Save(path))

	rows, err := SheetRows(path, "Vineyards")
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"Name", "link_kml_outline"},
		{"Stags Leap", "https://example.com/a.kml"},
		{"Carneros"},
	}, rows)

	first, err := SheetRows(path, "")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"ignored"}}, first)
}

func TestSheetRowsErrors(t *testing.T) {
	path, wb := writeWorkbook(t, "Vineyards")
	addRow(wb.Sheet["Vineyards"], "Name")
	require.NoError(t, wb.Save(path))

	_, err := SheetRows(path, "Orchards")
	assert.ErrorContains(t, err, `sheet "Orchards" not found`)

	_, err = SheetRows(filepath.Join(t.TempDir(), "missing.xlsx"), "")
	assert.Error(t, err)
}

func TestDelimitedRows(t *testing.T) {
	input := "\uFEFFName,link_kml_outline\n Stags Leap , https://example.com/a.kml\nCarneros,,\n"

	rows, err := DelimitedRows(strings.NewReader(input), 0)
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"Name", "link_kml_outline"},
		{"Stags Leap", "https://example.com/a.kml"},
		{"Carneros"},
	}, rows)

	rows, err = DelimitedRows(strings.NewReader("a;b\n"), ';')
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}}, rows)
}
