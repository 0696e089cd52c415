// Package consensus scores agreement between two model outputs for the
// same field. Scoring is pure: normalization per expected type, then a
// cascade of exact, boolean, numeric, and token-overlap comparisons.
package consensus

import (
	"math"
	"strings"

	"github.com/alannreyes/uwia-sub001/internal/domain"
)

const (
	// numericTolerance is the relative difference under which two numbers
	// are considered to agree.
	numericTolerance = 0.10
	// numericAgreement is the score for numbers within tolerance.
	numericAgreement = 0.9

	// boostedMax caps the confidence bonus for a perfect agreement.
	boostedMax = 0.99
	// agreementBonus is added to the average confidence on full agreement.
	agreementBonus = 0.15
)

// Score compares two answers for one field and returns the agreement
// decision. Empty answers never panic: an empty side scores 0 and the
// non-empty side wins; two empty sides resolve to NOT_FOUND.
func Score(a, b string, fieldType domain.FieldType) domain.ConsensusDecision {
	na := Normalize(a, fieldType)
	nb := Normalize(b, fieldType)

	if na == "" && nb == "" {
		return domain.ConsensusDecision{Agreement: 0, FinalAnswer: domain.NotFound}
	}
	if na == "" {
		return domain.ConsensusDecision{Agreement: 0, FinalAnswer: nb}
	}
	if nb == "" {
		return domain.ConsensusDecision{Agreement: 0, FinalAnswer: na}
	}

	if na == nb {
		return domain.ConsensusDecision{Agreement: 1.0, FinalAnswer: na}
	}

	if isBooleanLike(na) && isBooleanLike(nb) {
		// Same polarity already matched above; opposite polarity is a
		// hard disagreement, not a partial one.
		return domain.ConsensusDecision{Agreement: 0, FinalAnswer: na}
	}

	fa, okA := parseNumber(na)
	fb, okB := parseNumber(nb)
	if okA && okB {
		if relativeDiff(fa, fb) < numericTolerance {
			return domain.ConsensusDecision{Agreement: numericAgreement, FinalAnswer: na}
		}
	}

	return domain.ConsensusDecision{Agreement: jaccard(na, nb), FinalAnswer: na}
}

// CombinedConfidence derives a field confidence from two adapter
// confidences and the agreement between them. Full agreement earns a
// bonus over the average; disagreement scales the average down.
func CombinedConfidence(confA, confB, agreement float64) float64 {
	avg := (confA + confB) / 2
	if agreement >= 1.0 {
		return math.Min(boostedMax, avg+agreementBonus)
	}
	return avg * agreement
}

// relativeDiff is |a-b| over the larger magnitude; equal values
// (including both zero) yield 0.
func relativeDiff(a, b float64) float64 {
	if a == b {
		return 0
	}
	denom := math.Max(math.Abs(a), math.Abs(b))
	if denom == 0 {
		return 0
	}
	return math.Abs(a-b) / denom
}

// jaccard computes token-set similarity over whitespace-split,
// lowercased tokens.
func jaccard(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	inter := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		tok = strings.Trim(tok, ".,;:()\"'")
		if tok != "" {
			set[tok] = struct{}{}
		}
	}
	return set
}
