package domain

import (
	"context"
	"time"
)

// Model is the uniform extraction contract between the orchestrator and any
// text- or vision-capable backend. Adapters do not retry; callers apply
// retry and fallback policy.
type Model interface {
	Extract(ctx context.Context, in ModelInput) (ModelOutput, error)
	ID() string
}

// ModelInput is a single extraction request against one page (or the whole
// document text for direct strategies). Exactly one of Text or Image is set.
type ModelInput struct {
	Text         string
	Image        []byte // rendered page image, PNG
	Prompt       string
	ExpectedType FieldType
	FieldID      string
	Page         int
}

// ModelOutput is the raw adapter response.
type ModelOutput struct {
	Response   string
	Confidence float64
	TokensUsed int
	Elapsed    time.Duration
	ModelID    string
}

// ModelResult is one extraction outcome for a field on a page. Immutable;
// many instances accumulate per field across pages and passes.
type ModelResult struct {
	FieldID    string
	Page       int
	Response   string
	Confidence float64
	ModelID    string
	Method     string
	TokensUsed int
	Elapsed    time.Duration
}

// ConsensusDecision scores agreement between two model results for the same
// field and carries the answer chosen between them.
type ConsensusDecision struct {
	Agreement   float64
	FinalAnswer string
}
