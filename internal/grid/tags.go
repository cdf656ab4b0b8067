package grid

import (
	"sort"
	"strings"

	"github.com/M21ATS/ProductTrack-Pro/pkg/rows"
)

// TagNA is the sentinel bucket for rows whose group-column value is absent,
// nil, or blank after trimming.
const TagNA = "N/A"

// Tag is one distinct normalized group-column value with its row count.
type Tag struct {
	Name  string `json:"tag"`
	Count int    `json:"count"`
}

// NormalizeTagValue maps a raw group-column value to its tag bucket.
// Absent and nil values, and values that stringify to "" after trimming,
// all collapse into the TagNA bucket.
func NormalizeTagValue(v any, present bool) string {
	if !present || v == nil {
		return TagNA
	}
	s := strings.TrimSpace(rows.Stringify(v))
	if s == "" {
		return TagNA
	}
	return s
}

// DeriveTags computes the distinct-value histogram of groupCol across recs,
// sorted by count descending. Ties keep first-seen row order (stable).
//
// The histogram is recomputed fully on every call; there is no incremental
// maintenance. Returns nil when groupCol is empty or no rows exist.
func DeriveTags(recs []rows.Record, groupCol string) []Tag {
	if groupCol == "" || len(recs) == 0 {
		return nil
	}

	counts := make(map[string]int, 16)
	order := make([]string, 0, 16)
	for _, rec := range recs {
		v, ok := rec[groupCol]
		tag := NormalizeTagValue(v, ok)
		if _, seen := counts[tag]; !seen {
			order = append(order, tag)
		}
		counts[tag]++
	}

	out := make([]Tag, 0, len(order))
	for _, tag := range order {
		out = append(out, Tag{Name: tag, Count: counts[tag]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}
