package targeting

import (
	"context"

	"github.com/alannreyes/uwia-sub001/internal/domain"
)

// Classifier is the model call used to classify sampled pages. Any
// adapter satisfying domain.Model works.
type Classifier interface {
	Extract(ctx context.Context, in domain.ModelInput) (domain.ModelOutput, error)
	ID() string
}
