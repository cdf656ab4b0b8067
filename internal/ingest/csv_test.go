package ingest

import (
	"reflect"
	"strings"
	"testing"

	"github.com/M21ATS/ProductTrack-Pro/pkg/rows"
)

//
// DecodeCSV
//

// TestDecodeCSV verifies header discovery, value parsing, and the reserved
// field defaults on a well-formed input.
func TestDecodeCSV(t *testing.T) {
	t.Parallel()

	in := "Name,Price,Unit\nWidget A,10,box\nGadget,1.5,case\n"
	ds, err := DecodeCSV(strings.NewReader(in), Options{Name: "inv"})
	if err != nil {
		t.Fatalf("DecodeCSV error: %v", err)
	}

	if !reflect.DeepEqual(ds.Headers, []string{"Name", "Price", "Unit"}) {
		t.Fatalf("headers = %v", ds.Headers)
	}
	if len(ds.Records) != 2 {
		t.Fatalf("records len = %d, want 2", len(ds.Records))
	}

	r0 := ds.Records[0]
	if r0["Name"] != "Widget A" {
		t.Fatalf("Name = %v", r0["Name"])
	}
	if r0["Price"] != int64(10) {
		t.Fatalf("Price = %v (%T), want int64 10", r0["Price"], r0["Price"])
	}
	if ds.Records[1]["Price"] != 1.5 {
		t.Fatalf("Price = %v, want 1.5", ds.Records[1]["Price"])
	}

	if r0.ID() == "" {
		t.Fatalf("record missing id")
	}
	if r0.Status() != rows.StatusIncomplete {
		t.Fatalf("new record status = %v, want Incomplete", r0.Status())
	}
	if r0.ID() == ds.Records[1].ID() {
		t.Fatalf("row ids are not unique")
	}
}

// TestDecodeCSV_SkipsMisaligned verifies records with the wrong field count
// are skipped and reported, not fatal.
func TestDecodeCSV_SkipsMisaligned(t *testing.T) {
	t.Parallel()

	in := "a,b\n1\n2,3\n4,5,6\n7,8\n"
	var reported []int
	ds, err := DecodeCSV(strings.NewReader(in), Options{
		OnError: func(line int, err error) { reported = append(reported, line) },
	})
	if err != nil {
		t.Fatalf("DecodeCSV error: %v", err)
	}
	if len(ds.Records) != 2 {
		t.Fatalf("records len = %d, want 2", len(ds.Records))
	}
	if !reflect.DeepEqual(reported, []int{2, 4}) {
		t.Fatalf("reported lines = %v, want [2 4]", reported)
	}
}

// TestDecodeCSV_EmptyCellsAbsent verifies empty cells become absent keys
// rather than empty strings.
func TestDecodeCSV_EmptyCellsAbsent(t *testing.T) {
	t.Parallel()

	in := "a,b\nx,\n"
	ds, err := DecodeCSV(strings.NewReader(in), Options{})
	if err != nil {
		t.Fatalf("DecodeCSV error: %v", err)
	}
	if _, ok := ds.Records[0]["b"]; ok {
		t.Fatalf("empty cell produced a key: %v", ds.Records[0])
	}
}

// TestDecodeCSV_HeaderHygiene verifies BOM stripping, blank header naming,
// and reserved-name collision handling.
func TestDecodeCSV_HeaderHygiene(t *testing.T) {
	t.Parallel()

	in := "\ufeffName,,id\nx,y,z\n"
	ds, err := DecodeCSV(strings.NewReader(in), Options{})
	if err != nil {
		t.Fatalf("DecodeCSV error: %v", err)
	}
	want := []string{"Name", "column_2", "id_src"}
	if !reflect.DeepEqual(ds.Headers, want) {
		t.Fatalf("headers = %v, want %v", ds.Headers, want)
	}
	// The reserved id field still belongs to the decoder, not the file.
	if ds.Records[0].ID() == "z" {
		t.Fatalf("source file spoofed the reserved id field")
	}
}

// TestDecodeCSV_MaxRowsCap verifies the row cap stops decoding early.
func TestDecodeCSV_MaxRowsCap(t *testing.T) {
	t.Parallel()

	in := "a\n1\n2\n3\n4\n"
	ds, err := DecodeCSV(strings.NewReader(in), Options{MaxRows: 2})
	if err != nil {
		t.Fatalf("DecodeCSV error: %v", err)
	}
	if len(ds.Records) != 2 {
		t.Fatalf("records len = %d, want 2", len(ds.Records))
	}
}

// TestDecodeCSV_Empty verifies empty input errors instead of producing a
// headerless dataset.
func TestDecodeCSV_Empty(t *testing.T) {
	t.Parallel()

	if _, err := DecodeCSV(strings.NewReader(""), Options{}); err == nil {
		t.Fatalf("DecodeCSV(empty) expected error")
	}
}

//
// DetectFormat
//

// TestDetectFormat verifies extension-first sniffing with a ZIP-signature
// fallback.
func TestDetectFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		file string
		head []byte
		want Format
	}{
		{"csv ext", "inv.csv", nil, FormatCSV},
		{"xlsx ext", "inv.XLSX", nil, FormatXLSX},
		{"zip magic", "upload", []byte{0x50, 0x4b, 0x03, 0x04, 0x00}, FormatXLSX},
		{"plain text falls back to csv", "upload", []byte("a,b\n1,2\n"), FormatCSV},
		{"empty unknown", "upload", []byte("   "), FormatUnknown},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := DetectFormat(tt.file, tt.head); got != tt.want {
				t.Fatalf("DetectFormat(%q) = %v, want %v", tt.file, got, tt.want)
			}
		})
	}
}
