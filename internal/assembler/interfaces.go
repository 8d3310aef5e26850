package assembler

import (
	"context"

	"inclusiveai-offline/pkg/models"
)

// ResourceOptimizer defines the optimization operation used during assembly
type ResourceOptimizer interface {
	Optimize(ctx context.Context, url string) (*models.OfflineResource, error)
}
