package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/M21ATS/ProductTrack-Pro/internal/store"
	"github.com/M21ATS/ProductTrack-Pro/pkg/rows"
)

func openTestRepo(t *testing.T) store.Store {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "test.db")
	s, err := New(context.Background(), store.Config{Kind: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.Close)

	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return s
}

func testDataset(name string) rows.Dataset {
	return rows.Dataset{
		Name:    name,
		Headers: []string{"Name", "Unit", "Qty"},
		Records: []rows.Record{
			{rows.FieldID: "r1", rows.FieldStatus: string(rows.StatusIncomplete), "Name": "Widget A", "Unit": "box", "Qty": float64(10)},
			{rows.FieldID: "r2", rows.FieldStatus: string(rows.StatusCompleted), "Name": "Widget B", "Unit": "case"},
			{rows.FieldID: "r3", rows.FieldStatus: string(rows.StatusIncomplete), "Name": "Gadget"},
		},
	}
}

// TestSaveLoadRoundTrip verifies that a dataset survives storage intact:
// same headers, same row order, same statuses, same field values.
func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	s := openTestRepo(t)
	ctx := context.Background()

	want := testDataset("inventory")
	if err := s.SaveDataset(ctx, want); err != nil {
		t.Fatalf("SaveDataset: %v", err)
	}

	got, err := s.LoadDataset(ctx, "inventory")
	if err != nil {
		t.Fatalf("LoadDataset: %v", err)
	}
	if got.Name != want.Name {
		t.Fatalf("Name = %q, want %q", got.Name, want.Name)
	}
	if len(got.Headers) != 3 || got.Headers[0] != "Name" || got.Headers[2] != "Qty" {
		t.Fatalf("Headers = %v", got.Headers)
	}
	if len(got.Records) != len(want.Records) {
		t.Fatalf("got %d records, want %d", len(got.Records), len(want.Records))
	}
	for i, rec := range got.Records {
		if rec.ID() != want.Records[i].ID() {
			t.Errorf("row %d: id = %q, want %q", i, rec.ID(), want.Records[i].ID())
		}
		if rec.Status() != want.Records[i].Status() {
			t.Errorf("row %d: status = %q, want %q", i, rec.Status(), want.Records[i].Status())
		}
	}

	// Field values round-trip through JSON; numbers come back as float64.
	if got.Records[0]["Unit"] != "box" {
		t.Errorf("r1 Unit = %v", got.Records[0]["Unit"])
	}
	if got.Records[0]["Qty"] != float64(10) {
		t.Errorf("r1 Qty = %v (%T)", got.Records[0]["Qty"], got.Records[0]["Qty"])
	}
	if _, present := got.Records[2]["Unit"]; present {
		t.Errorf("r3 Unit should stay absent")
	}
}

// TestSaveReplacesPrevious verifies re-upload semantics: the new contents
// fully replace the old, including rows that no longer exist.
func TestSaveReplacesPrevious(t *testing.T) {
	t.Parallel()

	s := openTestRepo(t)
	ctx := context.Background()

	if err := s.SaveDataset(ctx, testDataset("inventory")); err != nil {
		t.Fatalf("SaveDataset: %v", err)
	}

	replacement := rows.Dataset{
		Name:    "inventory",
		Headers: []string{"Product"},
		Records: []rows.Record{
			{rows.FieldID: "x1", rows.FieldStatus: string(rows.StatusIncomplete), "Product": "Sprocket"},
		},
	}
	if err := s.SaveDataset(ctx, replacement); err != nil {
		t.Fatalf("SaveDataset replace: %v", err)
	}

	got, err := s.LoadDataset(ctx, "inventory")
	if err != nil {
		t.Fatalf("LoadDataset: %v", err)
	}
	if len(got.Records) != 1 || got.Records[0].ID() != "x1" {
		t.Fatalf("replacement not applied: %+v", got.Records)
	}
	if len(got.Headers) != 1 || got.Headers[0] != "Product" {
		t.Fatalf("Headers = %v", got.Headers)
	}
}

func TestUpdateStatus(t *testing.T) {
	t.Parallel()

	s := openTestRepo(t)
	ctx := context.Background()

	if err := s.SaveDataset(ctx, testDataset("inventory")); err != nil {
		t.Fatalf("SaveDataset: %v", err)
	}

	if err := s.UpdateStatus(ctx, "inventory", "r1", rows.StatusCompleted); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	got, err := s.LoadDataset(ctx, "inventory")
	if err != nil {
		t.Fatalf("LoadDataset: %v", err)
	}
	if got.Records[0].Status() != rows.StatusCompleted {
		t.Fatalf("r1 status = %q, want Completed", got.Records[0].Status())
	}

	if err := s.UpdateStatus(ctx, "inventory", "missing", rows.StatusCompleted); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("UpdateStatus unknown row: err = %v, want ErrNotFound", err)
	}
	if err := s.UpdateStatus(ctx, "nope", "r1", rows.StatusCompleted); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("UpdateStatus unknown dataset: err = %v, want ErrNotFound", err)
	}
}

func TestListAndDelete(t *testing.T) {
	t.Parallel()

	s := openTestRepo(t)
	ctx := context.Background()

	for _, name := range []string{"beta", "alpha"} {
		if err := s.SaveDataset(ctx, testDataset(name)); err != nil {
			t.Fatalf("SaveDataset %s: %v", name, err)
		}
	}

	names, err := s.ListDatasets(ctx)
	if err != nil {
		t.Fatalf("ListDatasets: %v", err)
	}
	if len(names) != 2 || names[0] != "alpha" || names[1] != "beta" {
		t.Fatalf("ListDatasets = %v, want sorted [alpha beta]", names)
	}

	if err := s.DeleteDataset(ctx, "alpha"); err != nil {
		t.Fatalf("DeleteDataset: %v", err)
	}
	// Deleting again is a no-op, not an error.
	if err := s.DeleteDataset(ctx, "alpha"); err != nil {
		t.Fatalf("DeleteDataset repeat: %v", err)
	}

	if _, err := s.LoadDataset(ctx, "alpha"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("LoadDataset deleted: err = %v, want ErrNotFound", err)
	}

	names, err = s.ListDatasets(ctx)
	if err != nil {
		t.Fatalf("ListDatasets: %v", err)
	}
	if len(names) != 1 || names[0] != "beta" {
		t.Fatalf("ListDatasets after delete = %v", names)
	}
}
