package retrieval

import (
	"context"

	"github.com/alannreyes/uwia-sub001/internal/domain"
)

// SessionRepo persists processing sessions and their chunks.
type SessionRepo interface {
	Create(ctx context.Context, sess *domain.ProcessingSession) error
	Update(ctx context.Context, sess *domain.ProcessingSession) error
	Get(ctx context.Context, id string) (*domain.ProcessingSession, error)
	SaveChunks(ctx context.Context, sess *domain.ProcessingSession, chunks []domain.DocumentChunk) error
	LoadChunks(ctx context.Context, id string) ([]domain.DocumentChunk, error)
	Delete(ctx context.Context, id string) error
}

// Embedder vectorizes chunk and query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
	BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}
