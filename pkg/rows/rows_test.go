package rows

import "testing"

// TestStatus verifies validity and toggling, including recovery from
// malformed values.
func TestStatus(t *testing.T) {
	t.Parallel()

	if !StatusIncomplete.Valid() || !StatusCompleted.Valid() {
		t.Fatal("defined statuses must be valid")
	}
	if Status("Done").Valid() {
		t.Fatal("unknown status must be invalid")
	}

	if got := StatusIncomplete.Toggled(); got != StatusCompleted {
		t.Errorf("Incomplete.Toggled() = %q", got)
	}
	if got := StatusCompleted.Toggled(); got != StatusIncomplete {
		t.Errorf("Completed.Toggled() = %q", got)
	}
	// Unknown values recover into a defined state.
	if got := Status("garbage").Toggled(); got != StatusCompleted {
		t.Errorf("garbage.Toggled() = %q", got)
	}
}

// TestRecordAccessors verifies reserved-field reads on well-formed and
// malformed records.
func TestRecordAccessors(t *testing.T) {
	t.Parallel()

	rec := Record{FieldID: "r1", FieldStatus: string(StatusCompleted), "Name": "Widget"}
	if rec.ID() != "r1" {
		t.Errorf("ID() = %q", rec.ID())
	}
	if rec.Status() != StatusCompleted {
		t.Errorf("Status() = %q", rec.Status())
	}

	tests := []struct {
		name string
		rec  Record
	}{
		{"missing_fields", Record{"Name": "Widget"}},
		{"wrong_types", Record{FieldID: 42, FieldStatus: true}},
		{"unknown_status", Record{FieldID: "r2", FieldStatus: "Done"}},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if tc.rec.Status() != StatusIncomplete {
				t.Errorf("Status() = %q, want Incomplete", tc.rec.Status())
			}
		})
	}
	if (Record{FieldID: 42}).ID() != "" {
		t.Error("non-string id should read as empty")
	}
}

// TestWithStatusDoesNotMutate verifies value semantics of status updates.
func TestWithStatusDoesNotMutate(t *testing.T) {
	t.Parallel()

	orig := Record{FieldID: "r1", FieldStatus: string(StatusIncomplete), "Name": "Widget"}
	updated := orig.WithStatus(StatusCompleted)

	if orig.Status() != StatusIncomplete {
		t.Errorf("original mutated: %q", orig.Status())
	}
	if updated.Status() != StatusCompleted {
		t.Errorf("copy status = %q", updated.Status())
	}
	if updated["Name"] != "Widget" {
		t.Errorf("copy lost fields: %v", updated)
	}
}

// TestStripReserved verifies reserved fields are removed and the receiver
// is untouched.
func TestStripReserved(t *testing.T) {
	t.Parallel()

	rec := Record{FieldID: "r1", FieldStatus: string(StatusIncomplete), "Name": "Widget", "Qty": 3}
	out := rec.StripReserved()

	if len(out) != 2 {
		t.Fatalf("stripped record = %v", out)
	}
	if _, ok := out[FieldID]; ok {
		t.Error("id survived strip")
	}
	if _, ok := rec[FieldID]; !ok {
		t.Error("receiver mutated")
	}
}

// TestDatasetClone verifies the clone shares nothing with the original.
func TestDatasetClone(t *testing.T) {
	t.Parallel()

	ds := Dataset{
		Name:    "inv",
		Headers: []string{"Name"},
		Records: []Record{{FieldID: "r1", "Name": "Widget"}},
	}
	cp := ds.Clone()

	cp.Headers[0] = "Mutated"
	cp.Records[0]["Name"] = "Mutated"

	if ds.Headers[0] != "Name" {
		t.Error("clone aliases headers")
	}
	if ds.Records[0]["Name"] != "Widget" {
		t.Error("clone aliases records")
	}
}

// TestStringify verifies display rendering across value kinds.
func TestStringify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"string", "Widget A", "Widget A"},
		{"int64", int64(42), "42"},
		{"float_no_exponent", 1000000.0, "1000000"},
		{"float_trims_zeros", 1.50, "1.5"},
		{"bool", true, "true"},
		{"status", StatusCompleted, "Completed"},
		{"bytes", []byte("raw"), "raw"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Stringify(tc.in); got != tc.want {
				t.Errorf("Stringify(%v) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
