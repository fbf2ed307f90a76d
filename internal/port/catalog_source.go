package port

import (
	"context"

	"github.com/rl1809/cart-store/internal/core/domain"
)

type CatalogSource interface {
	// ListProducts returns the full catalog in display order
	ListProducts(ctx context.Context) ([]domain.Product, error)
}
