package storage

import (
	"context"
	"slices"
	"sync"

	"github.com/rl1809/cart-store/internal/core/domain"
)

// MemoryAdapter is a process-local stand-in for every storage port. Data is
// lost on restart.
type MemoryAdapter struct {
	mu          sync.RWMutex
	slots       map[string][]byte
	idempotency map[string]struct{}
	receipts    []domain.Receipt
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		slots:       make(map[string][]byte),
		idempotency: make(map[string]struct{}),
	}
}

func (m *MemoryAdapter) LoadSlot(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.slots[key]
	if !ok {
		return nil, nil
	}
	return slices.Clone(data), nil
}

func (m *MemoryAdapter) SaveSlot(ctx context.Context, key string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.slots[key] = slices.Clone(payload)
	return nil
}

func (m *MemoryAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.idempotency[key]; ok {
		return false, nil
	}
	m.idempotency[key] = struct{}{}
	return true, nil
}

func (m *MemoryAdapter) SaveReceipt(ctx context.Context, receipt domain.Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.receipts = append(m.receipts, receipt)
	return nil
}

// Receipts returns the archived receipts in archival order.
func (m *MemoryAdapter) Receipts() []domain.Receipt {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Clone(m.receipts)
}

func (m *MemoryAdapter) Ping(ctx context.Context) error {
	return nil
}
