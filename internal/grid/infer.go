// Package grid implements the column-role inference and table state engine
// behind the inventory viewer.
//
// The grid package is responsible for:
//   - Guessing which column holds the human-readable product name
//   - Picking a default categorical group-by column
//   - Deriving the tag histogram for the active group-by column
//   - Evaluating the combined search + tag filter
//   - Tracking per-row expansion and relaying status toggles
//
// Design constraints:
//   - All inference is best-effort and must never fail on a non-empty input.
//   - Derived views are pure functions of their inputs, recomputed per call.
//   - The engine never mutates the row collection except through the single
//     status-toggle mutation point, which replaces the collection wholesale.
package grid

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/M21ATS/ProductTrack-Pro/pkg/rows"
)

// nameSampleSize bounds how many rows inference inspects per column.
const nameSampleSize = 5

// numericRatioThreshold is the fraction of sampled values above which a
// column is treated as numeric and penalized hard. Fixed constant; it does
// not scale with dataset size.
const numericRatioThreshold = 0.6

var digitsOnly = regexp.MustCompile(`^\d+$`)

// ColumnScore is the per-column breakdown produced by ScoreNameColumns.
// Total is the sum of the three partial scores.
type ColumnScore struct {
	Column  string
	Header  int // header-text heuristic (mutually exclusive rules)
	Penalty int // id/code/price-style penalties (additive)
	Shape   int // content-shape bonuses/penalties from the sample
	Total   int
}

// InferNameColumn picks the most likely product-name column from the
// discovered headers and up to the first 5 rows of data.
//
// The highest total score wins; on an exact tie the column appearing first
// in the original header order wins. Returns "" only when headers is empty;
// callers must treat that as "no usable name column".
//
// The result is deterministic for identical input and the function never
// panics regardless of row shape (missing keys, mixed types, empty values).
func InferNameColumn(headers []string, sample []rows.Record) string {
	scores := ScoreNameColumns(headers, sample)
	if len(scores) == 0 {
		return ""
	}

	best := scores[0]
	for _, s := range scores[1:] {
		if s.Total > best.Total {
			best = s
		}
	}
	return best.Column
}

// ScoreNameColumns scores every header independently and returns the
// breakdowns in original header order. Exposed for the inference report.
func ScoreNameColumns(headers []string, sample []rows.Record) []ColumnScore {
	if len(headers) == 0 {
		return nil
	}
	if len(sample) > nameSampleSize {
		sample = sample[:nameSampleSize]
	}

	out := make([]ColumnScore, 0, len(headers))
	for _, h := range headers {
		cs := ColumnScore{
			Column:  h,
			Header:  headerScore(h),
			Penalty: headerPenalty(h),
			Shape:   shapeScore(h, sample),
		}
		cs.Total = cs.Header + cs.Penalty + cs.Shape
		out = append(out, cs)
	}
	return out
}

// headerScore applies the name-text rules. Rules are mutually exclusive and
// evaluated in priority order; the first match wins.
func headerScore(header string) int {
	h := strings.ToLower(header)
	switch {
	case strings.Contains(h, "classification data"):
		return 100
	case strings.Contains(h, "description") || strings.Contains(h, "desc"):
		return 80
	case strings.Contains(h, "product name") || strings.Contains(h, "item name"):
		return 70
	case h == "name":
		return 60
	case strings.Contains(h, "title"):
		return 50
	default:
		return 0
	}
}

// headerPenalty applies the independent penalty rules. Both can apply to
// the same header; penalties stack.
func headerPenalty(header string) int {
	h := strings.ToLower(header)
	p := 0
	for _, tok := range []string{"id", "code", "sku", "number", "no."} {
		if strings.Contains(h, tok) {
			p -= 50
			break
		}
	}
	for _, tok := range []string{"price", "cost", "qty", "quantity"} {
		if strings.Contains(h, tok) {
			p -= 100
			break
		}
	}
	return p
}

// shapeScore inspects the sampled values of one column.
//
// Three independent signals:
//   - mostly-numeric sample (ratio above numericRatioThreshold): -200
//   - any sampled string containing a space: +50 (flat, not per occurrence)
//   - any sampled string longer than 5 characters: +30 (flat)
func shapeScore(header string, sample []rows.Record) int {
	if len(sample) == 0 {
		return 0
	}

	numeric := 0
	hasSpace := false
	hasLong := false

	for _, rec := range sample {
		v, ok := rec[header]
		if !ok || v == nil {
			continue
		}
		if isNumericValue(v) {
			numeric++
		}
		if s, ok := v.(string); ok {
			if strings.Contains(s, " ") {
				hasSpace = true
			}
			if len(s) > 5 {
				hasLong = true
			}
		}
	}

	score := 0
	if float64(numeric)/float64(len(sample)) > numericRatioThreshold {
		score -= 200
	}
	if hasSpace {
		score += 50
	}
	if hasLong {
		score += 30
	}
	return score
}

// isNumericValue reports whether v is number-typed or a digits-only string
// after trimming.
func isNumericValue(v any) bool {
	switch t := v.(type) {
	case int, int32, int64, float32, float64:
		return true
	case string:
		return digitsOnly.MatchString(strings.TrimSpace(t))
	default:
		return false
	}
}

// FormatInferenceReport renders a small human-readable score table for the
// infer command, best candidates first.
func FormatInferenceReport(scores []ColumnScore, chosen string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "name column: %s\n", chosen)
	fmt.Fprintf(&b, "%-24s\t%-7s\t%-8s\t%-7s\ttotal\n", "col", "header", "penalty", "shape")
	for _, s := range sortScoresByTotal(scores) {
		marker := ""
		if s.Column == chosen {
			marker = " *"
		}
		fmt.Fprintf(&b, "%-24s\t%-7d\t%-8d\t%-7d\t%d%s\n", s.Column, s.Header, s.Penalty, s.Shape, s.Total, marker)
	}
	return strings.TrimRight(b.String(), "\n")
}

// sortScoresByTotal returns a copy sorted by total descending with original
// order preserved among ties. Used by the report for readability only; the
// winner is always decided against the original order.
func sortScoresByTotal(scores []ColumnScore) []ColumnScore {
	cp := append([]ColumnScore(nil), scores...)
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].Total > cp[j].Total })
	return cp
}
