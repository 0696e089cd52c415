package httpapi

import (
	"context"

	"github.com/alannreyes/uwia-sub001/internal/usecase/extraction"
	"github.com/alannreyes/uwia-sub001/internal/usecase/health"
)

// Extractor runs the extraction pipeline for one document.
type Extractor interface {
	Extract(ctx context.Context, req extraction.Request) extraction.Result
}

// SessionStore removes retrieval sessions and their chunks.
type SessionStore interface {
	DeleteSession(ctx context.Context, sessionID string) error
}

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) health.Report
}

var _ Extractor = (*extraction.Service)(nil)
