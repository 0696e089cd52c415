// Package strategy picks the document-level processing strategy from
// document metadata alone. Selection is a pure function: no I/O, no errors.
package strategy

import (
	"time"

	"github.com/alannreyes/uwia-sub001/internal/domain"
)

const (
	// directMaxMB is the largest file sent through a single direct pass.
	directMaxMB = 4.0
	// directMaxPages bounds the direct pass by page count as well.
	directMaxPages = 15
	// targetedMaxMB is the ceiling for the targeted-vision strategy.
	targetedMaxMB = 25.0
	// splitMaxMB is the ceiling for page-split; above it retrieval takes over.
	splitMaxMB = 60.0

	// defaultMinTextPerMB is the text density under which a document is
	// presumed scan-only and routed to vision-first strategies.
	defaultMinTextPerMB = 100.0

	baseTimeout    = 120 * time.Second
	timeoutPerStep = 30 * time.Second
	maxTimeout     = 600 * time.Second

	// maxPages matches the provider hard page limit.
	maxPages = 100
)

// Selector chooses a StrategyPlan for a document.
type Selector struct {
	minTextPerMB float64
}

// New creates a Selector. minTextPerMB <= 0 selects the default threshold.
func New(minTextPerMB float64) *Selector {
	if minTextPerMB <= 0 {
		minTextPerMB = defaultMinTextPerMB
	}
	return &Selector{minTextPerMB: minTextPerMB}
}

// Select computes the processing plan for doc. Degenerate documents with
// zero pages fall through to the direct strategy.
func (s *Selector) Select(doc domain.Document) domain.StrategyPlan {
	sizeMB := doc.SizeMB()
	plan := domain.StrategyPlan{
		Timeout:    timeoutFor(sizeMB),
		ChunkPages: chunkPagesFor(sizeMB),
		MaxPages:   maxPages,
	}

	if doc.PageCount() == 0 {
		plan.Strategy = domain.StrategyDirect
		return plan
	}

	plan.ScanOnly = doc.TextDensity() < s.minTextPerMB

	switch {
	case plan.ScanOnly:
		// Scan-only documents never go direct: there is no text worth
		// a single-pass prompt, so vision-first regardless of size.
		if sizeMB <= targetedMaxMB {
			plan.Strategy = domain.StrategyTargetedVision
		} else {
			plan.Strategy = domain.StrategyPageSplit
		}
	case sizeMB <= directMaxMB && doc.PageCount() <= directMaxPages:
		plan.Strategy = domain.StrategyDirect
	case sizeMB <= targetedMaxMB:
		plan.Strategy = domain.StrategyTargetedVision
	case sizeMB <= splitMaxMB:
		plan.Strategy = domain.StrategyPageSplit
	default:
		plan.Strategy = domain.StrategyRetrieval
	}

	return plan
}

// timeoutFor grows the budget with file size: 120s base plus 30s for every
// started 10 MB, capped at 600s.
func timeoutFor(sizeMB float64) time.Duration {
	t := baseTimeout
	for covered := 10.0; covered < sizeMB; covered += 10.0 {
		t += timeoutPerStep
		if t >= maxTimeout {
			return maxTimeout
		}
	}
	return t
}

// chunkPagesFor shrinks the per-chunk page count as documents grow.
func chunkPagesFor(sizeMB float64) int {
	switch {
	case sizeMB <= targetedMaxMB:
		return 10
	case sizeMB <= splitMaxMB:
		return 5
	default:
		return 3
	}
}
