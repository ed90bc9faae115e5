package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// MinRating is the lowest star rating a review may carry.
	MinRating = 1
	// MaxRating is the highest star rating a review may carry.
	MaxRating = 5
)

// AffordableThreshold is the inclusive price bound used by the "abordable" quick filter
// and the header statistics.
var AffordableThreshold = decimal.NewFromInt(35)

// Product describes a single catalog item. Products are immutable after load.
type Product struct {
	ID          int             `json:"id"`
	Name        string          `json:"nom"`
	Price       decimal.Decimal `json:"prix"`
	Category    string          `json:"categorie,omitempty"`
	Image       string          `json:"image"`
	Emoji       string          `json:"emoji,omitempty"`
	Description string          `json:"description,omitempty"`
	InStock     bool            `json:"disponibilite"`
}

// HasCategory reports whether the product is attached to a category.
func (p Product) HasCategory() bool {
	return strings.TrimSpace(p.Category) != ""
}

// HasDescription reports whether the product carries a description.
func (p Product) HasDescription() bool {
	return strings.TrimSpace(p.Description) != ""
}

// Affordable reports whether the product price is within AffordableThreshold.
func (p Product) Affordable() bool {
	return p.Price.LessThanOrEqual(AffordableThreshold)
}

// Review is a visitor comment attached to one product. Reviews have no identity of their own;
// the JSON names match the historical storage format.
type Review struct {
	Author  string `json:"utilisateur"`
	Comment string `json:"commentaire"`
	Rating  int    `json:"nbEtoiles"`
}

// SortMode selects how filtered products are ordered.
type SortMode string

const (
	// SortNone keeps catalog order.
	SortNone SortMode = "default"
	// SortPriceAsc orders by ascending price.
	SortPriceAsc SortMode = "asc"
	// SortPriceDesc orders by descending price.
	SortPriceDesc SortMode = "desc"
)

// ParseSortMode maps user input to a SortMode, defaulting to SortNone.
func ParseSortMode(raw string) SortMode {
	switch SortMode(strings.ToLower(strings.TrimSpace(raw))) {
	case SortPriceAsc:
		return SortPriceAsc
	case SortPriceDesc:
		return SortPriceDesc
	default:
		return SortNone
	}
}

// QuickFilter is a single-select auxiliary predicate layered on top of other filters.
type QuickFilter string

const (
	// QuickNone disables quick filtering.
	QuickNone QuickFilter = ""
	// QuickAffordable keeps products priced at or below AffordableThreshold.
	QuickAffordable QuickFilter = "abordable"
	// QuickInStock keeps products currently available.
	QuickInStock QuickFilter = "dispo"
	// QuickHasDescription keeps products with a description.
	QuickHasDescription QuickFilter = "desc-only"
)

// ParseQuickFilter maps user input to a QuickFilter, defaulting to QuickNone.
func ParseQuickFilter(raw string) QuickFilter {
	switch QuickFilter(strings.ToLower(strings.TrimSpace(raw))) {
	case QuickAffordable:
		return QuickAffordable
	case QuickInStock:
		return QuickInStock
	case QuickHasDescription:
		return QuickHasDescription
	default:
		return QuickNone
	}
}

// Match evaluates the quick filter predicate for the product.
func (q QuickFilter) Match(p Product) bool {
	switch q {
	case QuickAffordable:
		return p.Affordable()
	case QuickInStock:
		return p.InStock
	case QuickHasDescription:
		return p.HasDescription()
	default:
		return true
	}
}

// FilterState is the combination of search, price, category, sort and quick-filter selections.
type FilterState struct {
	Search   string
	MaxPrice decimal.Decimal
	Category string
	Sort     SortMode
	Quick    QuickFilter
}
