package service

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/cart-store/internal/core/domain"
	"github.com/rl1809/cart-store/internal/port"
)

// DefaultTaxRate is applied when no WithTaxRate option is given.
var DefaultTaxRate = decimal.RequireFromString("0.10")

type CartOption func(*CartStore)

func WithTaxRate(rate decimal.Decimal) CartOption {
	return func(s *CartStore) {
		s.taxRate = rate
	}
}

func WithLogger(logger *zap.Logger) CartOption {
	return func(s *CartStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

type listener struct {
	id int
	fn func()
}

// CartStore owns the line items of one identity for the lifetime of a
// session. Every mutation is persisted to the identity's slot before it
// returns, then listeners are notified. A CartStore is not safe for
// concurrent use.
type CartStore struct {
	slots    port.SlotRepository
	identity string
	taxRate  decimal.Decimal
	logger   *zap.Logger

	items     []domain.LineItem
	listeners []listener
	nextID    int
	err       error
}

// NewCartStore loads the cart persisted for identity. An empty identity
// yields an ephemeral cart that is never read from or written to slots.
// Missing or unreadable records start an empty cart.
func NewCartStore(ctx context.Context, slots port.SlotRepository, identity string, opts ...CartOption) *CartStore {
	s := newCartStore(slots, identity, opts)
	s.items = s.load(ctx)
	return s
}

// restoreCartStore wraps items already read from identity's slot.
func restoreCartStore(slots port.SlotRepository, identity string, items []domain.LineItem, opts ...CartOption) *CartStore {
	s := newCartStore(slots, identity, opts)
	if items != nil {
		s.items = items
	}
	return s
}

func newCartStore(slots port.SlotRepository, identity string, opts []CartOption) *CartStore {
	s := &CartStore{
		slots:    slots,
		identity: identity,
		taxRate:  DefaultTaxRate,
		logger:   zap.NewNop(),
		items:    []domain.LineItem{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("identity", identity))
	return s
}

func (s *CartStore) load(ctx context.Context) []domain.LineItem {
	if !s.persistent() {
		return []domain.LineItem{}
	}

	data, err := s.slots.LoadSlot(ctx, domain.SlotKey(s.identity))
	if err != nil {
		s.logger.Warn("cart slot unreadable, starting empty", zap.Error(err))
		return []domain.LineItem{}
	}
	if data == nil {
		return []domain.LineItem{}
	}

	items, err := domain.DecodeCart(data)
	if err != nil {
		s.logger.Warn("discarding malformed cart record", zap.Error(err))
		return []domain.LineItem{}
	}
	return items
}

func (s *CartStore) persistent() bool {
	return s.identity != "" && s.slots != nil
}

func (s *CartStore) Identity() string {
	return s.identity
}

func (s *CartStore) TaxRate() decimal.Decimal {
	return s.taxRate
}

// AddItem increments the quantity of the line item sharing p's ID, or
// appends a snapshot of p with quantity 1.
func (s *CartStore) AddItem(ctx context.Context, p domain.Product) {
	if i := s.indexOf(p.ID); i >= 0 {
		s.items[i].Quantity++
	} else {
		s.items = append(s.items, domain.NewLineItem(p, 1))
	}
	s.logger.Debug("item added", zap.Int64("product_id", p.ID))
	s.commit(ctx)
}

// RemoveItem drops the line item with id. Absent ids are not an error.
func (s *CartStore) RemoveItem(ctx context.Context, id int64) {
	if i := s.indexOf(id); i >= 0 {
		s.items = append(s.items[:i], s.items[i+1:]...)
	}
	s.logger.Debug("item removed", zap.Int64("product_id", id))
	s.commit(ctx)
}

// UpdateQuantity sets the quantity of an existing line item. A quantity of
// zero or less removes it. Unknown ids leave the cart untouched.
func (s *CartStore) UpdateQuantity(ctx context.Context, id int64, quantity int) {
	i := s.indexOf(id)
	if i < 0 {
		return
	}
	if quantity <= 0 {
		s.RemoveItem(ctx, id)
		return
	}
	s.items[i].Quantity = quantity
	s.logger.Debug("quantity updated", zap.Int64("product_id", id), zap.Int("quantity", quantity))
	s.commit(ctx)
}

// MergeItems adds each item's quantity into the cart, appending items not
// present yet. Non-positive quantities are skipped.
func (s *CartStore) MergeItems(ctx context.Context, items []domain.LineItem) {
	for _, item := range items {
		if item.Quantity < 1 {
			continue
		}
		if i := s.indexOf(item.ID); i >= 0 {
			s.items[i].Quantity += item.Quantity
		} else {
			s.items = append(s.items, item)
		}
	}
	s.commit(ctx)
}

func (s *CartStore) ClearCart(ctx context.Context) {
	s.items = []domain.LineItem{}
	s.commit(ctx)
}

// Items returns a copy of the line items in insertion order.
func (s *CartStore) Items() []domain.LineItem {
	out := make([]domain.LineItem, len(s.items))
	copy(out, s.items)
	return out
}

func (s *CartStore) Len() int {
	return len(s.items)
}

func (s *CartStore) TotalItemCount() int {
	n := 0
	for _, item := range s.items {
		n += item.Quantity
	}
	return n
}

func (s *CartStore) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range s.items {
		sum = sum.Add(item.LineTotal())
	}
	return sum
}

func (s *CartStore) Tax() decimal.Decimal {
	return s.Subtotal().Mul(s.taxRate)
}

func (s *CartStore) Total() decimal.Decimal {
	subtotal := s.Subtotal()
	return subtotal.Add(subtotal.Mul(s.taxRate))
}

// Subscribe registers fn to run after every mutation. Listeners run
// synchronously on the mutating call, in subscription order.
func (s *CartStore) Subscribe(fn func()) (unsubscribe func()) {
	id := s.nextID
	s.nextID++
	s.listeners = append(s.listeners, listener{id: id, fn: fn})

	return func() {
		for i, l := range s.listeners {
			if l.id == id {
				s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// Err reports the persistence failure of the most recent mutation, if any.
// The in-memory cart reflects the mutation regardless.
func (s *CartStore) Err() error {
	return s.err
}

func (s *CartStore) indexOf(id int64) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *CartStore) commit(ctx context.Context) {
	s.err = s.persist(ctx)
	if s.err != nil {
		s.logger.Error("failed to persist cart", zap.Error(s.err), zap.Int("items", len(s.items)))
	}
	s.notify()
}

func (s *CartStore) persist(ctx context.Context) error {
	if !s.persistent() {
		return nil
	}

	data, err := domain.EncodeCart(s.items)
	if err != nil {
		return err
	}
	return s.slots.SaveSlot(ctx, domain.SlotKey(s.identity), data)
}

func (s *CartStore) notify() {
	listeners := make([]listener, len(s.listeners))
	copy(listeners, s.listeners)
	for _, l := range listeners {
		l.fn()
	}
}
