package ingest

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/M21ATS/ProductTrack-Pro/pkg/rows"
)

// DecodeXLSXFile opens and decodes an XLSX workbook.
func DecodeXLSXFile(path string, opt Options) (rows.Dataset, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return rows.Dataset{}, fmt.Errorf("ingest: open xlsx: %w", err)
	}
	defer f.Close()

	if opt.Name == "" {
		opt.Name = datasetNameFromPath(path)
	}
	return decodeWorkbook(f, opt)
}

// DecodeXLSX decodes an XLSX workbook from a reader.
func DecodeXLSX(r io.Reader, opt Options) (rows.Dataset, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return rows.Dataset{}, fmt.Errorf("ingest: open xlsx: %w", err)
	}
	defer f.Close()
	return decodeWorkbook(f, opt)
}

// decodeWorkbook reads the first sheet of the workbook. The first non-empty
// row is the header; everything below becomes data rows. Trailing cells
// beyond the header width are dropped, short rows read as absent values,
// which matches how spreadsheet exports pad ragged edges.
func decodeWorkbook(f *excelize.File, opt Options) (rows.Dataset, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return rows.Dataset{}, fmt.Errorf("ingest: workbook has no sheets")
	}

	raw, err := f.GetRows(sheets[0])
	if err != nil {
		return rows.Dataset{}, fmt.Errorf("ingest: read sheet %s: %w", sheets[0], err)
	}

	// Locate the header: first row with any non-empty cell.
	start := -1
	for i, r := range raw {
		if hasAnyCell(r) {
			start = i
			break
		}
	}
	if start < 0 {
		return rows.Dataset{}, fmt.Errorf("ingest: sheet %s has no data", sheets[0])
	}

	headers := cleanHeaders(raw[start])
	max := opt.maxRows()
	recs := make([]rows.Record, 0, len(raw)-start-1)

	for _, r := range raw[start+1:] {
		if len(recs) >= max {
			break
		}
		if !hasAnyCell(r) {
			continue
		}
		values := make([]any, len(headers))
		for i := range headers {
			if i >= len(r) {
				continue
			}
			values[i] = parseCell(r[i])
		}
		recs = append(recs, buildRecord(headers, values))
	}

	return rows.Dataset{
		Name:    opt.Name,
		Headers: headers,
		Records: recs,
	}, nil
}

func hasAnyCell(r []string) bool {
	for _, c := range r {
		if c != "" {
			return true
		}
	}
	return false
}
