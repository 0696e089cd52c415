package domain

import "strings"

// FieldAnswer is the consolidated outcome for one field.
type FieldAnswer struct {
	FieldID    string
	Value      string
	Confidence float64
	Method     string
	Pages      []int
}

// Found reports whether the answer resolved to a real value.
func (a FieldAnswer) Found() bool { return a.Value != "" && a.Value != NotFound }

// ExtractionPass is one complete pass over a set of expected fields: the
// semicolon-split values in field order plus the pass confidence. Priority
// ranks passes for progressive combination (lower = earlier, cheaper).
type ExtractionPass struct {
	Method     string
	Priority   int
	Values     []string
	Confidence float64
}

// SplitConsolidated splits a consolidated model response into exactly n
// values in declared field order. Short responses are padded with NotFound,
// long ones truncated, so downstream indexing is always safe.
func SplitConsolidated(raw string, n int) []string {
	parts := strings.Split(raw, ";")
	values := make([]string, n)
	for i := range values {
		if i < len(parts) {
			values[i] = strings.TrimSpace(parts[i])
		}
		if values[i] == "" {
			values[i] = NotFound
		}
	}
	return values
}

// JoinConsolidated renders values back into the semicolon wire format.
func JoinConsolidated(values []string) string {
	return strings.Join(values, ";")
}

// NotFoundRate returns the fraction of values equal to the NotFound sentinel.
func NotFoundRate(values []string) float64 {
	if len(values) == 0 {
		return 0
	}
	var missing int
	for _, v := range values {
		if v == NotFound || v == "" {
			missing++
		}
	}
	return float64(missing) / float64(len(values))
}
