package domain

import "github.com/shopspring/decimal"

// Product is a catalog entry. The cart treats it as immutable input.
type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Image       string          `json:"image"`
	Description string          `json:"description"`
}

// LineItem is a product snapshot taken when it entered the cart, plus a quantity.
type LineItem struct {
	Product
	Quantity int `json:"quantity"`
}

func NewLineItem(p Product, quantity int) LineItem {
	return LineItem{Product: p, Quantity: quantity}
}

func (li LineItem) LineTotal() decimal.Decimal {
	return li.Price.Mul(decimal.NewFromInt(int64(li.Quantity)))
}
