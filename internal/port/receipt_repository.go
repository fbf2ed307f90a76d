package port

import (
	"context"

	"github.com/rl1809/cart-store/internal/core/domain"
)

type ReceiptRepository interface {
	// SaveReceipt archives a checked-out cart with its line items
	SaveReceipt(ctx context.Context, receipt domain.Receipt) error
}
