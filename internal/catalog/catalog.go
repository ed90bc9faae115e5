// Package catalog holds the immutable product list served by the storefront.
package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Laurent-Felicien/LesBonnesPieces/internal/domain"
)

// ErrInvalidSeed indicates the catalog seed data failed validation.
var ErrInvalidSeed = errors.New("catalog: invalid seed")

// Stats summarises the catalog for the page header.
type Stats struct {
	Total      int
	InStock    int
	Affordable int
}

// Catalog is an immutable, ordered product list.
type Catalog struct {
	products   []domain.Product
	index      map[int]int
	categories []string
}

// New validates the products and builds a Catalog preserving their order.
func New(products []domain.Product) (*Catalog, error) {
	c := &Catalog{
		products: make([]domain.Product, 0, len(products)),
		index:    make(map[int]int, len(products)),
	}
	seen := make(map[string]struct{})
	for i, p := range products {
		p.Name = strings.TrimSpace(p.Name)
		p.Category = strings.TrimSpace(p.Category)
		if p.ID <= 0 {
			return nil, fmt.Errorf("%w: product #%d has non-positive id %d", ErrInvalidSeed, i, p.ID)
		}
		if _, dup := c.index[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate product id %d", ErrInvalidSeed, p.ID)
		}
		if p.Name == "" {
			return nil, fmt.Errorf("%w: product %d has no name", ErrInvalidSeed, p.ID)
		}
		if p.Price.IsNegative() {
			return nil, fmt.Errorf("%w: product %d has negative price", ErrInvalidSeed, p.ID)
		}
		c.index[p.ID] = len(c.products)
		c.products = append(c.products, p)
		if p.Category != "" {
			if _, ok := seen[p.Category]; !ok {
				seen[p.Category] = struct{}{}
				c.categories = append(c.categories, p.Category)
			}
		}
	}
	return c, nil
}

// MustNew is New for static data; it panics on invalid input.
func MustNew(products []domain.Product) *Catalog {
	c, err := New(products)
	if err != nil {
		panic(err)
	}
	return c
}

// Products returns a copy of the catalog in its original order.
func (c *Catalog) Products() []domain.Product {
	out := make([]domain.Product, len(c.products))
	copy(out, c.products)
	return out
}

// Len returns the number of products.
func (c *Catalog) Len() int { return len(c.products) }

// Find looks up a product by identifier.
func (c *Catalog) Find(id int) (domain.Product, bool) {
	i, ok := c.index[id]
	if !ok {
		return domain.Product{}, false
	}
	return c.products[i], true
}

// Has reports whether id belongs to the catalog.
func (c *Catalog) Has(id int) bool {
	_, ok := c.index[id]
	return ok
}

// IDs returns every product identifier in catalog order.
func (c *Catalog) IDs() []int {
	ids := make([]int, len(c.products))
	for i, p := range c.products {
		ids[i] = p.ID
	}
	return ids
}

// Categories returns the distinct non-empty categories in first-seen order.
func (c *Catalog) Categories() []string {
	out := make([]string, len(c.categories))
	copy(out, c.categories)
	return out
}

// MaxPrice returns the highest product price, or zero for an empty catalog.
func (c *Catalog) MaxPrice() decimal.Decimal {
	max := decimal.Zero
	for _, p := range c.products {
		if p.Price.GreaterThan(max) {
			max = p.Price
		}
	}
	return max
}

// Stats counts total, available and affordable products.
func (c *Catalog) Stats() Stats {
	s := Stats{Total: len(c.products)}
	for _, p := range c.products {
		if p.InStock {
			s.InStock++
		}
		if p.Affordable() {
			s.Affordable++
		}
	}
	return s
}
