package consensus

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/alannreyes/uwia-sub001/internal/domain"
)

// canonicalDateLayout is the two-digit month-day-year wire format.
const canonicalDateLayout = "01-02-06"

var (
	numberPattern = regexp.MustCompile(`-?\d[\d,]*\.?\d*`)

	// dateLayouts lists the input formats seen in model answers, most
	// specific first. time.Parse tries them in order.
	dateLayouts = []string{
		"01-02-06",
		"1-2-06",
		"01/02/06",
		"1/2/06",
		"01-02-2006",
		"1-2-2006",
		"01/02/2006",
		"1/2/2006",
		"2006-01-02",
		"January 2, 2006",
		"Jan 2, 2006",
		"2 January 2006",
	}

	yesWords = map[string]struct{}{
		"yes": {}, "y": {}, "true": {}, "si": {}, "sí": {}, "present": {}, "signed": {},
	}
	noWords = map[string]struct{}{
		"no": {}, "n": {}, "false": {}, "none": {}, "absent": {}, "unsigned": {}, "not": {},
	}
)

// Normalize canonicalizes a raw model answer for comparison. Unparseable
// values pass through trimmed, so downstream similarity still applies.
func Normalize(raw string, fieldType domain.FieldType) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if strings.EqualFold(s, domain.NotFound) {
		return domain.NotFound
	}

	switch fieldType {
	case domain.TypeBoolean:
		if v, ok := normalizeBoolean(s); ok {
			return v
		}
	case domain.TypeDate:
		if v, ok := normalizeDate(s); ok {
			return v
		}
	case domain.TypeNumber:
		if f, ok := parseNumber(s); ok {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
	}
	return s
}

// normalizeBoolean maps boolean-like words to the YES/NO literals. The
// first token decides, so "Yes, on page 9" normalizes to YES.
func normalizeBoolean(s string) (string, bool) {
	fields := strings.Fields(strings.ToLower(s))
	if len(fields) == 0 {
		return "", false
	}
	head := strings.Trim(fields[0], ".,;:!")
	if _, ok := yesWords[head]; ok {
		return domain.AnswerYes, true
	}
	if _, ok := noWords[head]; ok {
		return domain.AnswerNo, true
	}
	return "", false
}

// normalizeDate reformats any recognized date to MM-DD-YY.
func normalizeDate(s string) (string, bool) {
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		return t.Format(canonicalDateLayout), true
	}
	return "", false
}

// parseNumber extracts the first numeric substring (separators and
// currency symbols stripped) and parses it as a float.
func parseNumber(s string) (float64, bool) {
	m := numberPattern.FindString(s)
	if m == "" {
		return 0, false
	}
	m = strings.ReplaceAll(m, ",", "")
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// isBooleanLike reports whether a normalized value is one of the
// boolean literals.
func isBooleanLike(s string) bool {
	return s == domain.AnswerYes || s == domain.AnswerNo
}

// FormatDate renders t in the canonical wire format.
func FormatDate(t time.Time) string {
	return t.Format(canonicalDateLayout)
}
