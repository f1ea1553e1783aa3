// Package linkstore imports confirmed description-to-code links and the
// code catalog from Excel workbooks maintained outside the engine.
package linkstore

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/eshaffer321/invoice-ledger/internal/domain/matcher"
)

// ErrMissingColumn is returned when a required header is not found.
var ErrMissingColumn = errors.New("missing column")

// Accepted header names, compared after folding case, diacritics and
// punctuation.
var (
	descriptionHeaders = []string{"naziv", "naziv artikla", "opis", "description", "name"}
	codeHeaders        = []string{"wsm sifra", "sifra", "koda", "code", "wsm code"}
	supplierHeaders    = []string{"dobavitelj", "supplier", "supplier id", "davcna", "vat"}
)

// CatalogItem is one entry of the code catalog.
type CatalogItem struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// LoadLinksXLSX reads links from the first sheet of the workbook at path.
func LoadLinksXLSX(path string) ([]matcher.Link, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()
	return readLinks(f)
}

// ReadLinks is LoadLinksXLSX for an already open stream.
func ReadLinks(r io.Reader) ([]matcher.Link, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()
	return readLinks(f)
}

func readLinks(f *excelize.File) ([]matcher.Link, error) {
	rows, err := firstSheet(f)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	cols := indexHeaders(rows[0])
	desc, ok := cols.find(descriptionHeaders)
	if !ok {
		return nil, fmt.Errorf("%w: description", ErrMissingColumn)
	}
	code, ok := cols.find(codeHeaders)
	if !ok {
		return nil, fmt.Errorf("%w: code", ErrMissingColumn)
	}
	supplier, hasSupplier := cols.find(supplierHeaders)

	var links []matcher.Link
	for _, row := range rows[1:] {
		link := matcher.Link{
			Description: cell(row, desc),
			Code:        cell(row, code),
		}
		if link.Description == "" || link.Code == "" {
			continue
		}
		if hasSupplier {
			link.SupplierID = cell(row, supplier)
		}
		links = append(links, link)
	}
	return links, nil
}

// LoadCatalogXLSX reads code and name pairs from the first sheet.
func LoadCatalogXLSX(path string) ([]CatalogItem, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	rows, err := firstSheet(f)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	cols := indexHeaders(rows[0])
	code, ok := cols.find(codeHeaders)
	if !ok {
		return nil, fmt.Errorf("%w: code", ErrMissingColumn)
	}
	name, ok := cols.find(descriptionHeaders)
	if !ok {
		return nil, fmt.Errorf("%w: name", ErrMissingColumn)
	}

	seen := make(map[string]bool)
	var items []CatalogItem
	for _, row := range rows[1:] {
		item := CatalogItem{Code: cell(row, code), Name: cell(row, name)}
		if item.Code == "" || seen[item.Code] {
			continue
		}
		seen[item.Code] = true
		items = append(items, item)
	}
	return items, nil
}

func firstSheet(f *excelize.File) ([][]string, error) {
	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("unable to read sheet %q: %w", sheet, err)
	}
	return rows, nil
}

type headers map[string]int

func indexHeaders(row []string) headers {
	h := make(headers, len(row))
	for i, name := range row {
		key := matcher.NormalizeDescription(name)
		if _, dup := h[key]; !dup {
			h[key] = i
		}
	}
	return h
}

// find returns the column of the first accepted name present.
func (h headers) find(names []string) (int, bool) {
	for _, name := range names {
		if i, ok := h[name]; ok {
			return i, true
		}
	}
	return 0, false
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
