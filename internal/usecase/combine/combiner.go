// Package combine merges the value arrays of multiple extraction passes
// into one consolidated answer per field. The merge is a fold over
// passes in priority order with a stability margin, so a later noisier
// pass cannot flap a value an earlier pass already got right.
package combine

import (
	"sort"

	"github.com/alannreyes/uwia-sub001/internal/domain"
)

// Margins and floors for the progressive merge. Tuned empirically in
// production; treat as configuration, not derived values.
const (
	DefaultPlaceholderMargin = 0.05
	DefaultStableMargin      = 0.15
	DefaultRetentionBonus    = 0.10
	DefaultConfidenceFloor   = 0.70

	// retainedBase is the confidence a retained value starts from before
	// the retention bonus.
	retainedBase = 0.5
)

// Combiner folds ranked extraction passes into a consolidated answer.
type Combiner struct {
	placeholderMargin float64
	stableMargin      float64
	retentionBonus    float64
	confidenceFloor   float64
}

// Option mutates Combiner construction.
type Option func(*Combiner)

// WithMargins overrides the overwrite margins.
func WithMargins(placeholder, stable float64) Option {
	return func(c *Combiner) {
		c.placeholderMargin = placeholder
		c.stableMargin = stable
	}
}

// WithRetention overrides the retention bonus and confidence floor.
func WithRetention(bonus, floor float64) Option {
	return func(c *Combiner) {
		c.retentionBonus = bonus
		c.confidenceFloor = floor
	}
}

// New creates a Combiner with the production defaults.
func New(opts ...Option) *Combiner {
	c := &Combiner{
		placeholderMargin: DefaultPlaceholderMargin,
		stableMargin:      DefaultStableMargin,
		retentionBonus:    DefaultRetentionBonus,
		confidenceFloor:   DefaultConfidenceFloor,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Result is the consolidated outcome of a combination.
type Result struct {
	Values     []string
	Confidence float64
	// Confidences holds the winning per-field confidence before the
	// overall floor applies.
	Confidences []float64
	// Sources names the pass method that produced each final value;
	// retained seeds carry the "retained" label.
	Sources []string
}

// Combine merges passes for the given fields. retained carries values
// kept from an earlier run of the same document (empty strings for
// fields with nothing retained) and may be nil. Passes are ranked by
// Priority; input order does not matter. The result always has exactly
// len(fields) values.
func (c *Combiner) Combine(fields []domain.FieldRequest, retained []string, passes []domain.ExtractionPass) Result {
	n := len(fields)
	values := make([]string, n)
	confidences := make([]float64, n)
	sources := make([]string, n)
	for i := range values {
		values[i] = domain.NotFound
	}

	for i := 0; i < n && i < len(retained); i++ {
		if plausible(retained[i]) {
			values[i] = retained[i]
			confidences[i] = retainedBase + c.retentionBonus
			sources[i] = "retained"
		}
	}

	ranked := make([]domain.ExtractionPass, len(passes))
	copy(ranked, passes)
	sort.SliceStable(ranked, func(a, b int) bool { return ranked[a].Priority < ranked[b].Priority })

	for _, pass := range ranked {
		for i := 0; i < n && i < len(pass.Values); i++ {
			candidate := pass.Values[i]
			if candidate == "" || candidate == domain.NotFound {
				continue
			}
			if fields[i].IsBoolean() {
				c.mergeBoolean(i, candidate, pass, values, confidences, sources)
				continue
			}
			c.mergeValue(i, candidate, pass, values, confidences, sources)
		}
	}

	return Result{
		Values:      values,
		Confidence:  c.overallConfidence(confidences),
		Confidences: confidences,
		Sources:     sources,
	}
}

// mergeBoolean applies the high-recall rule for boolean fields: a YES
// from any pass always overwrites, a NO only fills an empty slot.
func (c *Combiner) mergeBoolean(i int, candidate string, pass domain.ExtractionPass, values []string, confidences []float64, sources []string) {
	switch candidate {
	case domain.AnswerYes:
		values[i] = domain.AnswerYes
		if pass.Confidence > confidences[i] {
			confidences[i] = pass.Confidence
		}
		sources[i] = pass.Method
	case domain.AnswerNo:
		if values[i] == domain.NotFound {
			values[i] = domain.AnswerNo
			confidences[i] = pass.Confidence
			sources[i] = pass.Method
		}
	default:
		// Non-literal boolean output is treated like a plain value.
		c.mergeValue(i, candidate, pass, values, confidences, sources)
	}
}

// mergeValue fills empty slots unconditionally and overwrites occupied
// ones only when the pass clears the stability margin for the current
// occupant.
func (c *Combiner) mergeValue(i int, candidate string, pass domain.ExtractionPass, values []string, confidences []float64, sources []string) {
	if values[i] == domain.NotFound || values[i] == "" {
		values[i] = candidate
		confidences[i] = pass.Confidence
		sources[i] = pass.Method
		return
	}

	margin := c.placeholderMargin
	if plausible(values[i]) {
		margin = c.stableMargin
	}
	if pass.Confidence > confidences[i]+margin {
		values[i] = candidate
		confidences[i] = pass.Confidence
		sources[i] = pass.Method
	}
}

// overallConfidence is the mean per-field confidence floored at the
// configured minimum. Fields still at NOT_FOUND contribute their zero
// confidence to the mean before the floor applies.
func (c *Combiner) overallConfidence(confidences []float64) float64 {
	if len(confidences) == 0 {
		return c.confidenceFloor
	}
	var sum float64
	for _, v := range confidences {
		sum += v
	}
	mean := sum / float64(len(confidences))
	if mean < c.confidenceFloor {
		return c.confidenceFloor
	}
	return mean
}

// plausible reports whether a value looks like a real extracted answer
// rather than a placeholder.
func plausible(v string) bool {
	return v != "" && v != domain.NotFound && len(v) > 2
}
