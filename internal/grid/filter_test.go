package grid

import (
	"testing"

	"github.com/M21ATS/ProductTrack-Pro/pkg/rows"
)

func demoRecords() ([]string, []rows.Record) {
	headers := []string{"Name", "Price", "Unit"}
	recs := []rows.Record{
		{rows.FieldID: "1", "Name": "Widget A", "Price": 10, "Unit": "box", rows.FieldStatus: "Incomplete"},
		{rows.FieldID: "2", "Name": "Widget B", "Price": 0, "Unit": "box", rows.FieldStatus: "Incomplete"},
		{rows.FieldID: "3", "Name": "Gadget", "Price": 5, "Unit": "case", rows.FieldStatus: "Completed"},
	}
	return headers, recs
}

func visibleIDs(recs []rows.Record) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ID())
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

//
// Visible
//

// TestVisible_Conjunction verifies that search and tag combine with AND
// semantics and that the empty filter returns the full set unchanged.
func TestVisible_Conjunction(t *testing.T) {
	t.Parallel()

	headers, recs := demoRecords()

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"empty filter returns all", Filter{}, []string{"1", "2", "3"}},
		{"search only", Filter{Search: "Widget"}, []string{"1", "2"}},
		{"search is case insensitive", Filter{Search: "wIdGeT"}, []string{"1", "2"}},
		{"tag only", Filter{Tag: "case"}, []string{"3"}},
		{"search and tag intersect", Filter{Search: "Widget", Tag: "case"}, []string{}},
		{"search and tag agree", Filter{Search: "Gadget", Tag: "case"}, []string{"3"}},
		{"search matches numeric field", Filter{Search: "10"}, []string{"1"}},
		{"no match", Filter{Search: "zzz"}, []string{}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := visibleIDs(Visible(recs, headers, "Unit", tt.filter))
			if !equalIDs(got, tt.want) {
				t.Fatalf("Visible(%+v) ids = %v, want %v", tt.filter, got, tt.want)
			}
		})
	}
}

// TestVisible_TagUsesNormalization verifies tag matching compares the
// normalized group value, so N/A rows are selectable by the sentinel tag.
func TestVisible_TagUsesNormalization(t *testing.T) {
	t.Parallel()

	headers := []string{"Name", "Unit"}
	recs := []rows.Record{
		{rows.FieldID: "1", "Name": "a", "Unit": nil},
		{rows.FieldID: "2", "Name": "b", "Unit": " box "},
		{rows.FieldID: "3", "Name": "c"},
	}

	got := visibleIDs(Visible(recs, headers, "Unit", Filter{Tag: TagNA}))
	if !equalIDs(got, []string{"1", "3"}) {
		t.Fatalf("N/A tag ids = %v, want [1 3]", got)
	}

	got = visibleIDs(Visible(recs, headers, "Unit", Filter{Tag: "box"}))
	if !equalIDs(got, []string{"2"}) {
		t.Fatalf("trimmed tag ids = %v, want [2]", got)
	}
}

// TestVisible_ReservedFieldsNotSearched verifies row ids and statuses do not
// leak into free-text matching.
func TestVisible_ReservedFieldsNotSearched(t *testing.T) {
	t.Parallel()

	headers, recs := demoRecords()

	if got := Visible(recs, headers, "Unit", Filter{Search: "Incomplete"}); len(got) != 0 {
		t.Fatalf("search over status matched %d rows, want 0", len(got))
	}
	if got := Visible(recs, headers, "Unit", Filter{Search: "3"}); len(got) != 0 {
		t.Fatalf("search over id matched %d rows, want 0", len(got))
	}
}

// TestVisible_MalformedRows verifies the filter never panics on rows with
// missing keys or mixed value types.
func TestVisible_MalformedRows(t *testing.T) {
	t.Parallel()

	headers := []string{"Name", "Unit"}
	recs := []rows.Record{
		{rows.FieldID: "1"},
		{rows.FieldID: "2", "Name": 7, "Unit": []byte("box")},
		{rows.FieldID: "3", "Name": nil},
	}

	got := Visible(recs, headers, "Unit", Filter{Search: "7"})
	if !equalIDs(visibleIDs(got), []string{"2"}) {
		t.Fatalf("mixed-type search ids = %v, want [2]", visibleIDs(got))
	}
}
