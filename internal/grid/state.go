package grid

import (
	"fmt"

	"github.com/M21ATS/ProductTrack-Pro/pkg/rows"
)

// StatusChangeFn relays a status change upward, typically to persist the new
// status in the authoritative store. Invoked after the in-memory collection
// has already been replaced.
type StatusChangeFn func(rowID string, newStatus rows.Status)

// Table owns the loaded dataset and all derived view state for one grid.
//
// Derived values (name column, group column, tags, visible rows) are pure
// functions of the current inputs and recomputed per call; nothing is cached
// across mutations, which rules out staleness by construction.
//
// Table is not safe for concurrent use. All inference and filtering happens
// synchronously on the caller's goroutine; callers that share a Table across
// goroutines must serialize access themselves.
type Table struct {
	headers []string
	records []rows.Record

	filter Filter

	// Explicit user choices. Once set they win over inference for the
	// lifetime of the loaded dataset; Load resets them.
	nameOverride  string
	groupOverride string

	// groupCol is the sticky inferred selection, resolved when the header
	// set changes. Kept separate from the override so "explicit beats
	// inferred" stays a plain precedence check.
	groupCol string

	expanded map[string]bool

	onStatusChange StatusChangeFn
}

// NewTable returns an empty table. onStatusChange may be nil.
func NewTable(onStatusChange StatusChangeFn) *Table {
	return &Table{
		expanded:       make(map[string]bool),
		onStatusChange: onStatusChange,
	}
}

// Load replaces the table contents with a freshly ingested dataset and
// resets filters, overrides, and expansion state. The dataset is cloned so
// the table's collection is never aliased by the caller.
func (t *Table) Load(ds rows.Dataset) {
	cp := ds.Clone()
	t.headers = cp.Headers
	t.records = cp.Records
	t.filter = Filter{}
	t.nameOverride = ""
	t.groupOverride = ""
	t.groupCol = ResolveGroupColumn(t.headers, "")
	t.expanded = make(map[string]bool)
}

// Clear empties the table. The grid stays usable in its empty state even
// when ingest or a collaborator failed.
func (t *Table) Clear() {
	t.Load(rows.Dataset{})
}

// Len returns the total row count (unfiltered).
func (t *Table) Len() int { return len(t.records) }

// Headers returns the discovered column list in original order.
func (t *Table) Headers() []string {
	return append([]string(nil), t.headers...)
}

// Records returns a copy of the full row collection.
func (t *Table) Records() []rows.Record {
	out := make([]rows.Record, len(t.records))
	copy(out, t.records)
	return out
}

// SetSearch updates the free-text search term.
func (t *Table) SetSearch(s string) { t.filter.Search = s }

// SetActiveTag activates a tag; activating the already-active tag clears it,
// matching one-click toggle behavior. At most one tag is ever active.
func (t *Table) SetActiveTag(tag string) {
	if t.filter.Tag == tag {
		t.filter.Tag = ""
		return
	}
	t.filter.Tag = tag
}

// ActiveFilter returns the current filter state.
func (t *Table) ActiveFilter() Filter { return t.filter }

// SetNameColumn pins the name column to an explicit user choice.
// The override wins over inference until the next Load.
func (t *Table) SetNameColumn(col string) error {
	if !containsHeader(t.headers, col) {
		return fmt.Errorf("grid: unknown column %q", col)
	}
	t.nameOverride = col
	return nil
}

// SetGroupColumn pins the group-by column to an explicit user choice.
func (t *Table) SetGroupColumn(col string) error {
	if !containsHeader(t.headers, col) {
		return fmt.Errorf("grid: unknown column %q", col)
	}
	t.groupOverride = col
	return nil
}

// NameColumn returns the effective name column: the explicit override when
// set, otherwise the heuristic inference over the first rows.
func (t *Table) NameColumn() string {
	if t.nameOverride != "" {
		return t.nameOverride
	}
	return InferNameColumn(t.headers, t.records)
}

// GroupColumn returns the effective group-by column, or "" when grouping is
// unset.
func (t *Table) GroupColumn() string {
	if t.groupOverride != "" {
		return t.groupOverride
	}
	return t.groupCol
}

// NameScores returns the per-column inference breakdown for the report.
func (t *Table) NameScores() []ColumnScore {
	return ScoreNameColumns(t.headers, t.records)
}

// Tags returns the tag histogram for the effective group-by column.
func (t *Table) Tags() []Tag {
	return DeriveTags(t.records, t.GroupColumn())
}

// VisibleRows evaluates the combined search + tag filter against the full
// collection.
func (t *Table) VisibleRows() []rows.Record {
	return Visible(t.records, t.headers, t.GroupColumn(), t.filter)
}

// NameValue returns the stringified name-column value of the given row, used
// as the image-search query. Returns "" when the row or value is missing.
func (t *Table) NameValue(rowID string) string {
	for _, rec := range t.records {
		if rec.ID() == rowID {
			return rows.Stringify(rec[t.NameColumn()])
		}
	}
	return ""
}

// ToggleExpanded flips the detail-panel state for a row and returns the new
// state. Rows default to collapsed.
func (t *Table) ToggleExpanded(rowID string) bool {
	t.expanded[rowID] = !t.expanded[rowID]
	return t.expanded[rowID]
}

// Expanded reports whether a row's detail panel is open.
func (t *Table) Expanded(rowID string) bool { return t.expanded[rowID] }

// ToggleStatus flips the completion status of one row.
//
// This is the single mutation point for row data: the entire collection is
// replaced with a new slice containing the updated record, so no caller ever
// observes a half-mutated row. All other rows are carried over untouched.
// The status-change callback fires after the swap. Returns false when the
// row id is unknown.
func (t *Table) ToggleStatus(rowID string) (rows.Status, bool) {
	idx := -1
	for i, rec := range t.records {
		if rec.ID() == rowID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", false
	}

	next := t.records[idx].Status().Toggled()

	out := make([]rows.Record, len(t.records))
	copy(out, t.records)
	out[idx] = t.records[idx].WithStatus(next)
	t.records = out

	if t.onStatusChange != nil {
		t.onStatusChange(rowID, next)
	}
	return next, true
}
