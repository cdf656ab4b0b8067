package grid

import "strings"

// groupTokens are the header fragments that mark a column as categorical
// enough to group by. Scanned in header order; first match wins.
var groupTokens = []string{
	"unit",
	"measure",
	"packaging",
	"material",
	"type",
	"cat",
	"group",
	"classification code",
}

// DefaultGroupColumn picks the default group-by column: the first header,
// in original order, containing any of the group tokens case-insensitively.
// Returns "" when nothing matches; grouping is then left unset.
func DefaultGroupColumn(headers []string) string {
	for _, h := range headers {
		lower := strings.ToLower(h)
		for _, tok := range groupTokens {
			if strings.Contains(lower, tok) {
				return h
			}
		}
	}
	return ""
}

// ResolveGroupColumn preserves a still-valid current selection and only
// re-infers when the selection is absent or no longer part of the header set.
func ResolveGroupColumn(headers []string, current string) string {
	if current != "" && containsHeader(headers, current) {
		return current
	}
	return DefaultGroupColumn(headers)
}

func containsHeader(headers []string, name string) bool {
	for _, h := range headers {
		if h == name {
			return true
		}
	}
	return false
}
