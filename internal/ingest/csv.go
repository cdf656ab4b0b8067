package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/M21ATS/ProductTrack-Pro/pkg/rows"
)

// DecodeCSVFile opens and decodes a CSV file.
func DecodeCSVFile(path string, opt Options) (rows.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return rows.Dataset{}, fmt.Errorf("ingest: open csv: %w", err)
	}
	defer f.Close()

	if opt.Name == "" {
		opt.Name = datasetNameFromPath(path)
	}
	return DecodeCSV(f, opt)
}

// DecodeCSV decodes CSV from a reader.
//
// Behavior mirrors best-effort sampling:
//   - the first record is the header row (trimmed, BOM-stripped)
//   - records with a mismatched field count are skipped and reported
//   - decoding stops silently at the MaxRows cap
//
// Errors are returned only for unreadable input or a missing header row.
func DecodeCSV(r io.Reader, opt Options) (rows.Dataset, error) {
	delim := opt.Delimiter
	if delim == 0 {
		delim = ','
	}

	cr := csv.NewReader(r)
	cr.Comma = delim
	cr.FieldsPerRecord = -1 // validated manually
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	line := 0
	readRec := func() ([]string, error) {
		line++
		return cr.Read()
	}

	hdr, err := readRec()
	if err != nil {
		if err == io.EOF {
			return rows.Dataset{}, fmt.Errorf("ingest: empty csv input")
		}
		return rows.Dataset{}, fmt.Errorf("ingest: read header: %w", err)
	}
	headers := cleanHeaders(hdr)

	max := opt.maxRows()
	recs := make([]rows.Record, 0, 256)

	for len(recs) < max {
		rec, err := readRec()
		if err == io.EOF {
			break
		}
		if err != nil {
			if opt.OnError != nil {
				opt.OnError(line, fmt.Errorf("csv read: %w", err))
			}
			continue
		}
		if len(rec) != len(headers) {
			if opt.OnError != nil {
				opt.OnError(line, fmt.Errorf("field count %d, want %d", len(rec), len(headers)))
			}
			continue
		}

		values := make([]any, len(rec))
		for i, v := range rec {
			values[i] = parseCell(v)
		}
		recs = append(recs, buildRecord(headers, values))
	}

	return rows.Dataset{
		Name:    opt.Name,
		Headers: headers,
		Records: recs,
	}, nil
}
