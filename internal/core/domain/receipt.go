package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ReceiptStatus string

const (
	ReceiptStatusPending  ReceiptStatus = "pending"
	ReceiptStatusArchived ReceiptStatus = "archived"
)

// Receipt is the record of a checked-out cart.
type Receipt struct {
	ID        string
	Identity  string
	Items     []LineItem
	Subtotal  decimal.Decimal
	Tax       decimal.Decimal
	Total     decimal.Decimal
	Status    ReceiptStatus
	CreatedAt time.Time
}

func (r Receipt) ItemCount() int {
	n := 0
	for _, item := range r.Items {
		n += item.Quantity
	}
	return n
}
