package domain

import (
	"bytes"
	"encoding/json"

	"github.com/go-faster/errors"
)

// CartRecordVersion is the schema version written into every persisted cart.
const CartRecordVersion = 1

const slotKeyPrefix = "cart_"

var ErrMalformedRecord = errors.New("malformed cart record")

type cartRecord struct {
	Version int        `json:"version"`
	Items   []LineItem `json:"items"`
}

// SlotKey returns the durable slot key holding identity's cart.
func SlotKey(identity string) string {
	return slotKeyPrefix + identity
}

// EncodeCart serializes items into a versioned cart record.
func EncodeCart(items []LineItem) ([]byte, error) {
	if items == nil {
		items = []LineItem{}
	}
	data, err := json.Marshal(cartRecord{Version: CartRecordVersion, Items: items})
	if err != nil {
		return nil, errors.Wrap(err, "encode cart")
	}
	return data, nil
}

// DecodeCart parses a persisted cart. Besides the versioned record it accepts
// the bare item array written before records carried a version.
func DecodeCart(data []byte) ([]LineItem, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.Wrap(ErrMalformedRecord, "empty payload")
	}

	var items []LineItem
	switch data[0] {
	case '[':
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, errors.Wrapf(ErrMalformedRecord, "legacy array: %v", err)
		}
	case '{':
		var rec cartRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, errors.Wrapf(ErrMalformedRecord, "record: %v", err)
		}
		if rec.Version < 1 || rec.Version > CartRecordVersion {
			return nil, errors.Wrapf(ErrMalformedRecord, "unsupported version %d", rec.Version)
		}
		items = rec.Items
	default:
		return nil, errors.Wrap(ErrMalformedRecord, "unexpected payload")
	}

	seen := make(map[int64]struct{}, len(items))
	for _, item := range items {
		if item.Quantity < 1 {
			return nil, errors.Wrapf(ErrMalformedRecord, "item %d has quantity %d", item.ID, item.Quantity)
		}
		if _, dup := seen[item.ID]; dup {
			return nil, errors.Wrapf(ErrMalformedRecord, "duplicate item %d", item.ID)
		}
		seen[item.ID] = struct{}{}
	}
	if items == nil {
		items = []LineItem{}
	}
	return items, nil
}
