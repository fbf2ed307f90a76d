package domain

import (
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

func sampleItems() []LineItem {
	return []LineItem{
		NewLineItem(Product{ID: 1, Name: "Headphones", Price: decimal.RequireFromString("10.00"), Category: "audio"}, 2),
		NewLineItem(Product{ID: 7, Name: "Cable", Price: decimal.RequireFromString("5.00"), Category: "accessories"}, 1),
	}
}

func TestSlotKey(t *testing.T) {
	if got := SlotKey("alice"); got != "cart_alice" {
		t.Errorf("expected cart_alice, got %s", got)
	}
}

func TestEncodeDecodeCart(t *testing.T) {
	data, err := EncodeCart(sampleItems())
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	items, err := DecodeCart(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].ID != 1 || items[0].Quantity != 2 || !items[0].Price.Equal(decimal.NewFromInt(10)) {
		t.Errorf("unexpected first item: %+v", items[0])
	}
	if items[1].ID != 7 || items[1].Category != "accessories" {
		t.Errorf("unexpected second item: %+v", items[1])
	}
}

func TestEncodeCart_Empty(t *testing.T) {
	data, err := EncodeCart(nil)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if string(data) != `{"version":1,"items":[]}` {
		t.Errorf("unexpected payload %s", data)
	}
}

func TestDecodeCart_LegacyArray(t *testing.T) {
	legacy := `[{"id":3,"name":"Lamp","price":19.99,"category":"home","image":"lamp.jpg","description":"desk lamp","quantity":4}]`

	items, err := DecodeCart([]byte(legacy))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if !items[0].Price.Equal(decimal.RequireFromString("19.99")) {
		t.Errorf("expected price 19.99, got %s", items[0].Price)
	}
	if items[0].Quantity != 4 || items[0].Image != "lamp.jpg" {
		t.Errorf("unexpected item: %+v", items[0])
	}
}

func TestDecodeCart_Malformed(t *testing.T) {
	cases := map[string]string{
		"garbage":        "not json at all",
		"empty":          "   ",
		"null":           "null",
		"truncated":      `{"version":1,"items":[{"id":1`,
		"future version": `{"version":9,"items":[]}`,
		"zero version":   `{"items":[]}`,
		"zero quantity":  `{"version":1,"items":[{"id":1,"price":"1","quantity":0}]}`,
		"duplicate id":   `[{"id":1,"price":1,"quantity":1},{"id":1,"price":1,"quantity":2}]`,
		"wrong shape":    `{"version":1,"items":{"id":1}}`,
	}

	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeCart([]byte(payload))
			if !errors.Is(err, ErrMalformedRecord) {
				t.Errorf("expected ErrMalformedRecord, got %v", err)
			}
		})
	}
}

func TestLineTotalAndRounding(t *testing.T) {
	item := NewLineItem(Product{ID: 1, Price: decimal.RequireFromString("0.335")}, 3)

	if !item.LineTotal().Equal(decimal.RequireFromString("1.005")) {
		t.Errorf("expected 1.005, got %s", item.LineTotal())
	}
	if got := FormatCurrency(RoundCurrency(item.LineTotal())); got != "1.01" {
		t.Errorf("expected 1.01, got %s", got)
	}
}

func TestReceiptItemCount(t *testing.T) {
	r := Receipt{Items: sampleItems()}
	if r.ItemCount() != 3 {
		t.Errorf("expected 3, got %d", r.ItemCount())
	}
}
