package linkstore

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// workbook writes rows to Sheet1 of a new workbook in a temp dir.
func workbook(t *testing.T, rows [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		ref, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", ref, &row))
	}
	path := filepath.Join(t.TempDir(), "links.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestLoadLinksXLSX(t *testing.T) {
	// Arrange
	path := workbook(t, [][]any{
		{"Naziv", "WSM_Šifra", "Dobavitelj"},
		{"Mleko 3,5% 1L", "MLEKO", ""},
		{"Kruh beli 500g", "KRUH", "SI12345678"},
		{"", "PRAZNO", ""},
		{"Brez kode", "", ""},
	})

	// Act
	links, err := LoadLinksXLSX(path)

	// Assert
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, "Mleko 3,5% 1L", links[0].Description)
	assert.Equal(t, "MLEKO", links[0].Code)
	assert.Empty(t, links[0].SupplierID)
	assert.Equal(t, "SI12345678", links[1].SupplierID)
}

func TestLoadLinksXLSX_EnglishHeadersWithoutSupplier(t *testing.T) {
	path := workbook(t, [][]any{
		{"code", "description"},
		{"KAVA", "Kava mleta 250g"},
	})

	links, err := LoadLinksXLSX(path)

	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "KAVA", links[0].Code)
	assert.Equal(t, "Kava mleta 250g", links[0].Description)
}

func TestLoadLinksXLSX_MissingColumn(t *testing.T) {
	path := workbook(t, [][]any{{"Naziv", "Cena"}, {"Mleko", 1.1}})

	_, err := LoadLinksXLSX(path)

	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestLoadLinksXLSX_MissingFile(t *testing.T) {
	_, err := LoadLinksXLSX(filepath.Join(t.TempDir(), "nope.xlsx"))

	assert.Error(t, err)
}

func TestReadLinks(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"opis", "koda"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"Sir Edamec", "SIR"}))
	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)

	links, err := ReadLinks(&buf)

	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "SIR", links[0].Code)
}

func TestLoadCatalogXLSX(t *testing.T) {
	path := workbook(t, [][]any{
		{"Šifra", "Naziv"},
		{"MLEKO", "Mleko"},
		{"KRUH", "Kruh"},
		{"MLEKO", "Mleko podvojeno"},
	})

	items, err := LoadCatalogXLSX(path)

	require.NoError(t, err)
	assert.Equal(t, []CatalogItem{{Code: "MLEKO", Name: "Mleko"}, {Code: "KRUH", Name: "Kruh"}}, items)
}

func TestLoadCatalogXLSX_Empty(t *testing.T) {
	path := workbook(t, nil)

	items, err := LoadCatalogXLSX(path)

	require.NoError(t, err)
	assert.Empty(t, items)
}
