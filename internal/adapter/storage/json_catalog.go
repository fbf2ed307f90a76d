package storage

import (
	"context"
	"encoding/json"
	"os"

	"github.com/go-faster/errors"

	"github.com/rl1809/cart-store/internal/core/domain"
)

// JSONCatalog reads the catalog from a products.json file: an array of
// products in display order.
type JSONCatalog struct {
	path string
}

func NewJSONCatalog(path string) *JSONCatalog {
	return &JSONCatalog{path: path}
}

func (c *JSONCatalog) ListProducts(ctx context.Context) ([]domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, errors.Wrap(err, "read catalog")
	}

	var products []domain.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, errors.Wrapf(err, "parse catalog %s", c.path)
	}
	for _, p := range products {
		if p.Price.IsNegative() {
			return nil, errors.Errorf("product %d has negative price %s", p.ID, p.Price)
		}
	}
	return products, nil
}
