// Package fieldgroup partitions requested fields into processing groups.
// Group membership tunes per-group concurrency and decides whether a
// high-confidence positive may short-circuit the remaining page budget.
package fieldgroup

import (
	"github.com/alannreyes/uwia-sub001/internal/domain"
)

// Group labels one processing group.
type Group string

const (
	// GroupSignature covers boolean signature/stamp presence checks.
	GroupSignature Group = "signature"
	// GroupComprehensive covers consolidated multi-field prompts.
	GroupComprehensive Group = "comprehensive"
	// GroupComplex covers single fields on long documents.
	GroupComplex Group = "complex"
	// GroupSimple covers everything else.
	GroupSimple Group = "simple"
)

// complexPageThreshold is the page count above which a plain field is
// treated as complex.
const complexPageThreshold = 30

// Classify assigns one field to a group.
func Classify(field domain.FieldRequest, pageCount int) Group {
	switch {
	case field.Keyword("signature") || field.Keyword("sign") || field.Keyword("stamp"):
		return GroupSignature
	case field.ExpectedType == domain.TypeJSON ||
		field.Keyword("comprehensive") || field.Keyword("all fields") ||
		field.Keyword(";"):
		return GroupComprehensive
	case pageCount > complexPageThreshold:
		return GroupComplex
	default:
		return GroupSimple
	}
}

// Partition groups fields preserving their declared order within each
// group.
func Partition(fields []domain.FieldRequest, pageCount int) map[Group][]domain.FieldRequest {
	out := make(map[Group][]domain.FieldRequest)
	for _, f := range fields {
		g := Classify(f, pageCount)
		out[g] = append(out[g], f)
	}
	return out
}

// Concurrency returns the in-flight call budget for a group.
// Comprehensive prompts run serially: their consolidated answers are
// merged positionally and must not interleave.
func Concurrency(g Group) int {
	switch g {
	case GroupComprehensive:
		return 1
	case GroupSignature, GroupComplex:
		return 2
	default:
		return 3
	}
}

// EarlyExitAllowed reports whether a high-confidence positive may stop
// the page scan for the group. Comprehensive groups must always examine
// the full page budget because every packed field needs a value.
func EarlyExitAllowed(g Group) bool {
	return g != GroupComprehensive
}
