package grid

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/M21ATS/ProductTrack-Pro/pkg/rows"
)

// Filter is the combined view filter: free-text search plus at most one
// active tag. Both conditions AND together; empty members match everything.
type Filter struct {
	Search string
	Tag    string
}

// Visible computes the visible row subset for the filter.
//
// A row is visible iff:
//   - Search is empty, or at least one discovered field value contains the
//     search text case-insensitively, AND
//   - Tag is empty, or the row's normalized group-column value equals it.
//
// Reserved fields are not searched; row ids and statuses are machine fields,
// not user-visible text. The input slice is never mutated; the result is a
// fresh slice sharing the underlying records.
func Visible(recs []rows.Record, headers []string, groupCol string, f Filter) []rows.Record {
	search := strings.TrimSpace(f.Search)
	if search == "" && f.Tag == "" {
		out := make([]rows.Record, len(recs))
		copy(out, recs)
		return out
	}

	fold := cases.Fold()
	needle := fold.String(search)

	out := make([]rows.Record, 0, len(recs))
	for _, rec := range recs {
		if needle != "" && !matchesSearch(rec, headers, needle, fold) {
			continue
		}
		if f.Tag != "" {
			v, ok := rec[groupCol]
			if groupCol == "" || NormalizeTagValue(v, ok) != f.Tag {
				continue
			}
		}
		out = append(out, rec)
	}
	return out
}

// matchesSearch reports whether any discovered field value contains needle.
// needle must already be case-folded.
func matchesSearch(rec rows.Record, headers []string, needle string, fold cases.Caser) bool {
	for _, h := range headers {
		v, ok := rec[h]
		if !ok || v == nil {
			continue
		}
		if strings.Contains(fold.String(rows.Stringify(v)), needle) {
			return true
		}
	}
	return false
}
