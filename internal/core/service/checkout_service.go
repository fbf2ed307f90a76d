package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/rl1809/cart-store/internal/core/domain"
	"github.com/rl1809/cart-store/internal/port"
)

var (
	ErrDuplicateRequest = errors.New("duplicate request")
	ErrEmptyCart        = errors.New("cart is empty")
	ErrCartNotCleared   = errors.New("cart could not be cleared")
)

// CheckoutService turns a cart into a pending receipt and queues it for
// archival. Payment is out of scope: checkout always succeeds once the
// request is accepted.
type CheckoutService struct {
	guard        port.IdempotencyGuard
	receiptQueue chan domain.Receipt
	now          func() time.Time
}

func NewCheckoutService(guard port.IdempotencyGuard, queueSize int) *CheckoutService {
	return &CheckoutService{
		guard:        guard,
		receiptQueue: make(chan domain.Receipt, queueSize),
		now:          time.Now,
	}
}

func (s *CheckoutService) Checkout(ctx context.Context, requestID string, store *CartStore) (domain.Receipt, error) {
	identity := store.Identity()
	if identity == "" {
		return domain.Receipt{}, ErrLoginRequired
	}
	if store.Len() == 0 {
		return domain.Receipt{}, ErrEmptyCart
	}

	idempotencyKey := fmt.Sprintf("checkout:%s:%s", identity, requestID)

	ok, err := s.guard.SetIdempotency(ctx, idempotencyKey)
	if err != nil {
		return domain.Receipt{}, errors.Wrap(err, "idempotency check failed")
	}
	if !ok {
		return domain.Receipt{}, ErrDuplicateRequest
	}

	receipt := domain.Receipt{
		ID:        uuid.NewString(),
		Identity:  identity,
		Items:     store.Items(),
		Subtotal:  domain.RoundCurrency(store.Subtotal()),
		Tax:       domain.RoundCurrency(store.Tax()),
		Total:     domain.RoundCurrency(store.Total()),
		Status:    domain.ReceiptStatusPending,
		CreatedAt: s.now(),
	}

	// The cleared cart must be durable before the receipt exists, or the
	// stored items could be checked out again under a new request id.
	store.ClearCart(ctx)
	if err := store.Err(); err != nil {
		store.MergeItems(ctx, receipt.Items)
		return domain.Receipt{}, errors.Join(ErrCartNotCleared, err)
	}

	select {
	case s.receiptQueue <- receipt:
	case <-ctx.Done():
		store.MergeItems(context.WithoutCancel(ctx), receipt.Items)
		return domain.Receipt{}, errors.Wrap(ctx.Err(), "queue receipt")
	}

	return receipt, nil
}

func (s *CheckoutService) Receipts() <-chan domain.Receipt {
	return s.receiptQueue
}

func (s *CheckoutService) Close() {
	close(s.receiptQueue)
}
