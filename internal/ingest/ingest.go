// Package ingest decodes uploaded spreadsheet files into row datasets.
//
// The decoder owns the boundary contract promised to the grid engine: every
// produced record carries the reserved id and processingStatus fields, new
// rows always start Incomplete, and the header order of the source file is
// preserved alongside the records.
//
// Decoding is best-effort in the same spirit as sampling: misaligned CSV
// records are skipped (reported through an optional callback), and cell
// values are parsed into numbers where they round-trip cleanly.
package ingest

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/M21ATS/ProductTrack-Pro/pkg/rows"
)

// Format identifies a supported input file format.
type Format int

const (
	FormatUnknown Format = iota
	FormatCSV
	FormatXLSX
)

func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatXLSX:
		return "xlsx"
	default:
		return "unknown"
	}
}

// xlsxMagic is the ZIP local-file signature; XLSX workbooks are ZIP
// containers.
var xlsxMagic = []byte{0x50, 0x4b, 0x03, 0x04}

// Options control decoding behavior.
type Options struct {
	// Name for the resulting dataset. Defaults to the file base name.
	Name string

	// MaxRows caps how many data rows are decoded. 0 means the default cap;
	// negative means unlimited. The viewer is interactive, so the default
	// keeps memory bounded for oversized exports.
	MaxRows int

	// Delimiter for CSV input. Zero means ','.
	Delimiter rune

	// OnError receives skipped-record notices (1-based line, cause).
	// Decoding continues; a bad row must not fail the upload.
	OnError func(line int, err error)
}

const defaultMaxRows = 50000

func (o Options) maxRows() int {
	if o.MaxRows == 0 {
		return defaultMaxRows
	}
	if o.MaxRows < 0 {
		return int(^uint(0) >> 1)
	}
	return o.MaxRows
}

// DetectFormat sniffs the format from the file name and leading bytes.
// The extension decides when recognized; otherwise the ZIP signature marks
// XLSX and anything else falls back to CSV, mirroring conservative
// sample-sniffing.
func DetectFormat(name string, head []byte) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".tsv", ".txt":
		return FormatCSV
	case ".xlsx", ".xlsm":
		return FormatXLSX
	}
	if bytes.HasPrefix(head, xlsxMagic) {
		return FormatXLSX
	}
	if len(bytes.TrimSpace(head)) > 0 {
		return FormatCSV
	}
	return FormatUnknown
}

// Decode reads the named file and returns its dataset. The format is
// sniffed via DetectFormat.
func Decode(path string, opt Options) (rows.Dataset, error) {
	if opt.Name == "" {
		opt.Name = datasetNameFromPath(path)
	}

	head, err := readHead(path, 512)
	if err != nil {
		return rows.Dataset{}, fmt.Errorf("ingest: read %s: %w", path, err)
	}

	switch DetectFormat(path, head) {
	case FormatXLSX:
		return DecodeXLSXFile(path, opt)
	case FormatCSV:
		return DecodeCSVFile(path, opt)
	default:
		return rows.Dataset{}, fmt.Errorf("ingest: cannot determine format of %s", path)
	}
}

// readHead returns up to n leading bytes of the file for format sniffing.
func readHead(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, n)
	m, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	return buf[:m], nil
}

func datasetNameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// buildRecord assembles one record from an aligned header/value pair list.
// Empty cells are absent (key omitted), matching the dynamic-column model.
// The reserved fields are assigned here and only here.
func buildRecord(headers []string, values []any) rows.Record {
	rec := make(rows.Record, len(headers)+2)
	for i, h := range headers {
		if i >= len(values) || values[i] == nil {
			continue
		}
		rec[h] = values[i]
	}
	rec[rows.FieldID] = uuid.NewString()
	rec[rows.FieldStatus] = string(rows.StatusIncomplete)
	return rec
}

// parseCell converts a raw cell string to its scalar value: int64 when it
// parses as an integer, float64 when it parses as a decimal, otherwise the
// trimmed string. Empty cells map to nil (absent).
func parseCell(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// cleanHeaders trims headers, strips a UTF-8 BOM from the first one, and
// drops reserved names by suffixing them; a source file must not be able to
// spoof the reserved fields.
func cleanHeaders(raw []string) []string {
	out := make([]string, 0, len(raw))
	for i, h := range raw {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("column_%d", i+1)
		}
		if rows.IsReserved(h) {
			h = h + "_src"
		}
		out = append(out, h)
	}
	return out
}
