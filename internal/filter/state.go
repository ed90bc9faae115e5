package filter

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Laurent-Felicien/LesBonnesPieces/internal/domain"
)

// Query parameter names carrying the filter state.
const (
	ParamSearch   = "q"
	ParamMaxPrice = "prix_max"
	ParamCategory = "categorie"
	ParamSort     = "tri"
	ParamQuick    = "filtre"
	ParamReview   = "avis"
)

// PriceCeiling is implemented by the catalog.
type PriceCeiling interface {
	MaxPrice() decimal.Decimal
}

// State is the visitor's filter selection together with the price ceiling it resets to.
// Every transition returns a new value.
type State struct {
	domain.FilterState
	ceiling decimal.Decimal
}

// Default returns the initial state: no search, price bound at the catalog maximum rounded up
// to a whole euro, no category, catalog order, no quick filter.
func Default(c PriceCeiling) State {
	ceiling := decimal.Zero
	if c != nil {
		ceiling = c.MaxPrice().Ceil()
	}
	return State{
		FilterState: domain.FilterState{
			MaxPrice: ceiling,
			Sort:     domain.SortNone,
			Quick:    domain.QuickNone,
		},
		ceiling: ceiling,
	}
}

// ParseQuery reads a state from URL query values. Unknown or malformed values fall back to
// the defaults; the price bound is clamped to [0, ceiling].
func ParseQuery(values url.Values, defaults State) State {
	s := defaults
	s.Search = strings.TrimSpace(values.Get(ParamSearch))
	s.Category = strings.TrimSpace(values.Get(ParamCategory))
	s.Sort = domain.ParseSortMode(values.Get(ParamSort))
	s.Quick = domain.ParseQuickFilter(values.Get(ParamQuick))
	if raw := strings.TrimSpace(values.Get(ParamMaxPrice)); raw != "" {
		if price, err := decimal.NewFromString(raw); err == nil {
			s = s.WithMaxPrice(price)
		}
	}
	return s
}

// Ceiling is the upper bound of the price slider.
func (s State) Ceiling() decimal.Decimal {
	return s.ceiling
}

// Query encodes the state, omitting values equal to the defaults.
func (s State) Query() url.Values {
	values := url.Values{}
	if s.Search != "" {
		values.Set(ParamSearch, s.Search)
	}
	if !s.MaxPrice.Equal(s.ceiling) {
		values.Set(ParamMaxPrice, s.MaxPrice.String())
	}
	if s.Category != "" {
		values.Set(ParamCategory, s.Category)
	}
	if s.Sort != domain.SortNone && s.Sort != "" {
		values.Set(ParamSort, string(s.Sort))
	}
	if s.Quick != domain.QuickNone {
		values.Set(ParamQuick, string(s.Quick))
	}
	return values
}

// Href returns the listing URL for the state.
func (s State) Href() string {
	return href(s.Query())
}

// ReviewHref returns the listing URL for the state with the reviews of productID open.
func (s State) ReviewHref(productID int) string {
	values := s.Query()
	values.Set(ParamReview, strconv.Itoa(productID))
	return href(values)
}

func href(values url.Values) string {
	if len(values) == 0 {
		return "/"
	}
	return "/?" + values.Encode()
}

// WithSearch replaces the search text.
func (s State) WithSearch(search string) State {
	s.Search = strings.TrimSpace(search)
	return s
}

// WithMaxPrice replaces the price bound, clamped to [0, ceiling].
func (s State) WithMaxPrice(price decimal.Decimal) State {
	switch {
	case price.IsNegative():
		price = decimal.Zero
	case price.GreaterThan(s.ceiling):
		price = s.ceiling
	}
	s.MaxPrice = price
	return s
}

// WithSort replaces the sort mode.
func (s State) WithSort(mode domain.SortMode) State {
	s.Sort = domain.ParseSortMode(string(mode))
	return s
}

// WithCategory selects a category; the empty string selects all categories.
func (s State) WithCategory(category string) State {
	s.Category = strings.TrimSpace(category)
	return s
}

// ToggleQuick activates quick, or clears it when it is already the active filter.
func (s State) ToggleQuick(quick domain.QuickFilter) State {
	if s.Quick == quick {
		s.Quick = domain.QuickNone
		return s
	}
	s.Quick = quick
	return s
}

// Reset returns the default state for the same ceiling.
func (s State) Reset() State {
	return State{
		FilterState: domain.FilterState{
			MaxPrice: s.ceiling,
			Sort:     domain.SortNone,
			Quick:    domain.QuickNone,
		},
		ceiling: s.ceiling,
	}
}

// Apply filters products with the current selection.
func (s State) Apply(products []domain.Product) []domain.Product {
	return Apply(products, s.FilterState)
}
