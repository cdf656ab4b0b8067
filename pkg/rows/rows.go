// Package rows defines the dynamic row record shared by ingest, the grid
// engine, and the storage backends.
//
// A record is a flat mapping from column name to a scalar value (string or
// number). Columns carry no declared types; their semantic roles are inferred
// downstream. Two reserved fields are always present:
//
//   - "id": a unique row identifier assigned at ingest
//   - "processingStatus": the row completion status
//
// Reserved fields are never part of the discovered column set.
package rows

import (
	"fmt"
	"strconv"
	"strings"
)

// Reserved field names. The decoder guarantees both are present on every
// record it produces; the grid engine excludes them from column discovery.
const (
	FieldID     = "id"
	FieldStatus = "processingStatus"
)

// Status is the row completion status. Exactly two values exist.
type Status string

const (
	StatusIncomplete Status = "Incomplete"
	StatusCompleted  Status = "Completed"
)

// Valid reports whether s is one of the two defined statuses.
func (s Status) Valid() bool {
	return s == StatusIncomplete || s == StatusCompleted
}

// Toggled returns the other status. Unknown inputs normalize to Incomplete
// so a malformed record can always recover into a defined state.
func (s Status) Toggled() Status {
	if s == StatusCompleted {
		return StatusIncomplete
	}
	return StatusCompleted
}

// Record is one spreadsheet row: arbitrary string-keyed scalar fields plus
// the reserved id and processingStatus fields.
type Record map[string]any

// ID returns the reserved row identifier, or "" when absent/malformed.
func (r Record) ID() string {
	s, _ := r[FieldID].(string)
	return s
}

// Status returns the reserved completion status. Absent or malformed values
// read as Incomplete, matching the decoder default for new rows.
func (r Record) Status() Status {
	switch v := r[FieldStatus].(type) {
	case Status:
		if v.Valid() {
			return v
		}
	case string:
		if Status(v).Valid() {
			return Status(v)
		}
	}
	return StatusIncomplete
}

// Clone returns a shallow copy of the record. Field values are scalars, so a
// shallow copy is a full copy for our purposes.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// WithStatus returns a copy of the record with the status field replaced.
// The receiver is never mutated; callers swap the copy into their collection.
func (r Record) WithStatus(s Status) Record {
	out := r.Clone()
	out[FieldStatus] = string(s)
	return out
}

// StripReserved returns a copy of the record without the reserved fields.
// Used when handing rows to external collaborators (AI summary payloads).
func (r Record) StripReserved() Record {
	out := make(Record, len(r))
	for k, v := range r {
		if IsReserved(k) {
			continue
		}
		out[k] = v
	}
	return out
}

// IsReserved reports whether key is one of the reserved field names.
func IsReserved(key string) bool {
	return key == FieldID || key == FieldStatus
}

// Dataset is a named, ordered row collection as produced by the decoder.
//
// Headers preserves the original column order of the source file with the
// reserved fields excluded; map iteration order is useless for display, so
// the order travels alongside the records.
type Dataset struct {
	Name    string
	Headers []string
	Records []Record
}

// Clone returns a deep-enough copy: a fresh header slice and record slice
// with cloned records.
func (d Dataset) Clone() Dataset {
	out := Dataset{
		Name:    d.Name,
		Headers: append([]string(nil), d.Headers...),
		Records: make([]Record, len(d.Records)),
	}
	for i, r := range d.Records {
		out.Records[i] = r.Clone()
	}
	return out
}

// Stringify renders a scalar field value the way the grid displays it.
// Numbers render without an exponent and without trailing zeros; nil renders
// as the empty string. Unknown kinds fall back to their string form.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case Status:
		return string(t)
	case []byte:
		return string(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
