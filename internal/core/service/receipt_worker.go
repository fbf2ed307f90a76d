package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/cart-store/internal/core/domain"
	"github.com/rl1809/cart-store/internal/port"
)

const archiveTimeout = 5 * time.Second

// ReceiptWorker archives queued receipts. When archival fails the items are
// handed back to the owner's cart so the purchase is not silently lost.
type ReceiptWorker struct {
	Receipts port.ReceiptRepository
	Slots    port.SlotRepository
	Logger   *zap.Logger

	// Timeout bounds the archive write and, separately, the rollback.
	// Zero means five seconds.
	Timeout time.Duration
}

// Run consumes queue until it is closed.
func (w *ReceiptWorker) Run(id int, queue <-chan domain.Receipt) {
	logger := w.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.Int("worker", id))

	for receipt := range queue {
		w.handle(logger, receipt)
	}
}

func (w *ReceiptWorker) timeout() time.Duration {
	if w.Timeout > 0 {
		return w.Timeout
	}
	return archiveTimeout
}

func (w *ReceiptWorker) handle(logger *zap.Logger, receipt domain.Receipt) {
	logger = logger.With(zap.String("receipt_id", receipt.ID), zap.String("identity", receipt.Identity))

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout())
	receipt.Status = domain.ReceiptStatusArchived
	err := w.Receipts.SaveReceipt(ctx, receipt)
	cancel()
	if err == nil {
		logger.Info("archived receipt", zap.String("total", domain.FormatCurrency(receipt.Total)))
		return
	}
	logger.Error("failed to archive receipt", zap.Error(err))

	w.rollback(logger, receipt)
}

// rollback merges the receipt's items into the owner's current cart. The
// archive context may already be spent, so it runs on its own deadline.
func (w *ReceiptWorker) rollback(logger *zap.Logger, receipt domain.Receipt) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout())
	defer cancel()

	data, err := w.Slots.LoadSlot(ctx, domain.SlotKey(receipt.Identity))
	if err != nil {
		// Merging into an unread cart would overwrite it
		logger.Error("CRITICAL rollback failed: cart unreadable", zap.Error(err), zap.Int("items", receipt.ItemCount()))
		return
	}

	var current []domain.LineItem
	if data != nil {
		current, err = domain.DecodeCart(data)
		if err != nil {
			logger.Warn("discarding malformed cart record during rollback", zap.Error(err))
			current = nil
		}
	}

	store := restoreCartStore(w.Slots, receipt.Identity, current, WithLogger(logger))
	store.MergeItems(ctx, receipt.Items)
	if store.Err() != nil {
		logger.Error("CRITICAL rollback failed", zap.Error(store.Err()), zap.Int("items", receipt.ItemCount()))
		return
	}
	logger.Warn("restored receipt items to cart", zap.Int("items", receipt.ItemCount()))
}
