package port

import "context"

type SlotRepository interface {
	// LoadSlot returns the payload stored at key, or nil if the slot is empty
	LoadSlot(ctx context.Context, key string) ([]byte, error)

	// SaveSlot overwrites the slot at key. Last writer wins.
	SaveSlot(ctx context.Context, key string, payload []byte) error
}

type IdempotencyGuard interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)
}
