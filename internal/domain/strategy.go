package domain

import "time"

// Strategy is the document-level processing approach.
type Strategy string

// Strategy constants.
const (
	StrategyDirect         Strategy = "direct"
	StrategyTargetedVision Strategy = "targeted-vision"
	StrategyPageSplit      Strategy = "page-split"
	StrategyRetrieval      Strategy = "retrieval-augmented"
)

// StrategyPlan is the full processing plan for one document: the chosen
// strategy plus the resource budget derived from document size.
type StrategyPlan struct {
	Strategy   Strategy
	Timeout    time.Duration // per model call budget
	ChunkPages int           // pages per split chunk for page-split
	MaxPages   int           // hard page cap (provider limit)
	ScanOnly   bool          // text density below minimum, vision required
}
