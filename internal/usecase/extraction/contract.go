package extraction

import (
	"context"

	"github.com/alannreyes/uwia-sub001/internal/domain"
)

// Selector chooses the document-level processing strategy.
type Selector interface {
	Select(doc domain.Document) domain.StrategyPlan
}

// Targeter maps fields to candidate pages.
type Targeter interface {
	MapFields(ctx context.Context, doc domain.Document, fields []domain.FieldRequest) []domain.PageMapping
}

// Arbitrator breaks ties between two disagreeing model results.
type Arbitrator interface {
	Arbitrate(ctx context.Context, field domain.FieldRequest, a, b domain.ModelResult, docContext, trigger string) domain.ModelResult
}

// Retriever runs the retrieval-augmented path for oversized documents.
type Retriever interface {
	Ingest(ctx context.Context, doc domain.Document, pagesPerChunk int) (*domain.ProcessingSession, error)
	Answer(ctx context.Context, sessionID string, field domain.FieldRequest) (domain.ModelResult, error)
	AnswerComprehensive(ctx context.Context, sessionID string, field domain.FieldRequest) (domain.ModelResult, error)
}
