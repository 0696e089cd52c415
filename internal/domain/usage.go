package domain

import "context"

type usageKey struct{}

// Usage collects token consumption for a single extraction request.
// The handler puts a mutable pointer into the context before calling the
// orchestrator; adapters and the retrieval path write into it; the handler
// reads it back for the response.
type Usage struct {
	ModelTokens     int
	EmbeddingTokens int
	ModelCalls      int
}

// NewContextWithUsage returns a context with an embedded usage collector.
func NewContextWithUsage(ctx context.Context) (context.Context, *Usage) {
	u := &Usage{}
	return context.WithValue(ctx, usageKey{}, u), u
}

// UsageFromContext extracts the usage collector from context. Returns nil if not set.
func UsageFromContext(ctx context.Context) *Usage {
	u, _ := ctx.Value(usageKey{}).(*Usage)
	return u
}

// AddModelTokens records tokens consumed by an extraction model call.
func (u *Usage) AddModelTokens(n int) {
	if u != nil {
		u.ModelTokens += n
		u.ModelCalls++
	}
}

// AddEmbeddingTokens records tokens consumed by embedding calls.
func (u *Usage) AddEmbeddingTokens(n int) {
	if u != nil {
		u.EmbeddingTokens += n
	}
}
