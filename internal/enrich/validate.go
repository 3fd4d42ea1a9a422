package enrich

import "strings"

// placeholderValues are strings that CRM records and model output use to
// mean "no data". Matched case-insensitively after trimming.
var placeholderValues = map[string]struct{}{
	"not found":   {},
	"unknown":     {},
	"n/a":         {},
	"none":        {},
	"null":        {},
	"info needed": {},
}

// IsValidValue reports whether a field value carries real data: non-empty
// after trimming and not a known placeholder.
func IsValidValue(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return false
	}
	_, placeholder := placeholderValues[strings.ToLower(v)]
	return !placeholder
}
