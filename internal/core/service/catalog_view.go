package service

import (
	"context"
	"slices"
	"strings"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/rl1809/cart-store/internal/core/domain"
	"github.com/rl1809/cart-store/internal/port"
)

var (
	ErrLoginRequired   = errors.New("login required")
	ErrProductNotFound = errors.New("product not found")
	ErrCatalogNotReady = errors.New("catalog not loaded")
)

// CategoryAll disables the category filter.
const CategoryAll = "all"

type SortKey string

const (
	SortDefault   SortKey = "default"
	SortPriceLow  SortKey = "price-low"
	SortPriceHigh SortKey = "price-high"
	SortName      SortKey = "name"
)

// Query narrows the catalog by category, then by free text, then sorts.
type Query struct {
	Category string
	Text     string
	Sort     SortKey
}

type CatalogOption func(*CatalogView)

func WithCatalogLogger(logger *zap.Logger) CatalogOption {
	return func(v *CatalogView) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithCollationTag selects the language used to order names.
func WithCollationTag(tag language.Tag) CatalogOption {
	return func(v *CatalogView) {
		v.tag = tag
	}
}

// CatalogView holds the product catalog fetched once from its source and
// answers filter/sort queries over it. After Load it is read-only and safe
// for concurrent use.
type CatalogView struct {
	source   port.CatalogSource
	logger   *zap.Logger
	tag      language.Tag
	products []domain.Product
	byID     map[int64]int
	loaded   bool
}

func NewCatalogView(source port.CatalogSource, opts ...CatalogOption) *CatalogView {
	v := &CatalogView{
		source: source,
		logger: zap.NewNop(),
		tag:    language.English,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *CatalogView) Load(ctx context.Context) error {
	products, err := v.source.ListProducts(ctx)
	if err != nil {
		return errors.Wrap(err, "load catalog")
	}

	v.products = products
	v.byID = make(map[int64]int, len(products))
	for i, p := range products {
		if _, dup := v.byID[p.ID]; !dup {
			v.byID[p.ID] = i
		}
	}
	v.loaded = true
	v.logger.Info("catalog loaded", zap.Int("products", len(products)))
	return nil
}

func (v *CatalogView) Loaded() bool {
	return v.loaded
}

func (v *CatalogView) Products() []domain.Product {
	return slices.Clone(v.products)
}

// Categories lists distinct categories in first-seen order.
func (v *CatalogView) Categories() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range v.products {
		if _, ok := seen[p.Category]; ok {
			continue
		}
		seen[p.Category] = struct{}{}
		out = append(out, p.Category)
	}
	return out
}

func (v *CatalogView) Find(id int64) (domain.Product, bool) {
	i, ok := v.byID[id]
	if !ok {
		return domain.Product{}, false
	}
	return v.products[i], true
}

func (v *CatalogView) Apply(q Query) []domain.Product {
	filtered := make([]domain.Product, 0, len(v.products))

	term := strings.ToLower(strings.TrimSpace(q.Text))
	for _, p := range v.products {
		if q.Category != "" && q.Category != CategoryAll && p.Category != q.Category {
			continue
		}
		if term != "" && !matches(p, term) {
			continue
		}
		filtered = append(filtered, p)
	}

	switch q.Sort {
	case SortPriceLow:
		slices.SortStableFunc(filtered, func(a, b domain.Product) int {
			return a.Price.Cmp(b.Price)
		})
	case SortPriceHigh:
		slices.SortStableFunc(filtered, func(a, b domain.Product) int {
			return b.Price.Cmp(a.Price)
		})
	case SortName:
		// Collators keep internal buffers, so each query gets its own.
		c := collate.New(v.tag)
		slices.SortStableFunc(filtered, func(a, b domain.Product) int {
			return c.CompareString(a.Name, b.Name)
		})
	}

	return filtered
}

// AddToCart resolves id against the catalog and adds it to store. Anonymous
// sessions must log in first.
func (v *CatalogView) AddToCart(ctx context.Context, store *CartStore, id int64) (domain.Product, error) {
	if store.Identity() == "" {
		return domain.Product{}, ErrLoginRequired
	}
	if !v.loaded {
		return domain.Product{}, ErrCatalogNotReady
	}

	p, ok := v.Find(id)
	if !ok {
		return domain.Product{}, errors.Wrapf(ErrProductNotFound, "id %d", id)
	}

	store.AddItem(ctx, p)
	return p, nil
}

func matches(p domain.Product, term string) bool {
	return strings.Contains(strings.ToLower(p.Name), term) ||
		strings.Contains(strings.ToLower(p.Category), term) ||
		strings.Contains(strings.ToLower(p.Description), term)
}
