package ports

import (
	"context"

	"github.com/kirillkom/collision-estimator/internal/core/domain"
)

// EstimateService is the inbound contract for repair cost estimation.
type EstimateService interface {
	Estimate(ctx context.Context, req domain.EstimateRequest) (*domain.EstimateResult, error)
}

// ManualSearcher is the inbound contract for raw technical-context retrieval.
type ManualSearcher interface {
	Search(ctx context.Context, query string, k int) (domain.RetrievalResult, error)
}

// CorpusIndexer is the inbound contract for index lifecycle management.
type CorpusIndexer interface {
	Rebuild(ctx context.Context) (domain.IndexStatus, error)
	Status() domain.IndexStatus
}

// EstimateReader is the read model over journaled estimates.
type EstimateReader interface {
	GetEstimate(ctx context.Context, id string) (*domain.EstimateResult, error)
}
