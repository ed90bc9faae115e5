// Package filter derives the visible product list from the catalog and the visitor's selections.
package filter

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"github.com/Laurent-Felicien/LesBonnesPieces/internal/domain"
)

// Apply returns the products matching state, in catalog order unless a price sort is selected.
// The input slice is never modified and the result is never nil.
func Apply(products []domain.Product, state domain.FilterState) []domain.Product {
	fold := cases.Fold()
	needle := fold.String(strings.TrimSpace(state.Search))
	category := strings.TrimSpace(state.Category)

	out := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if needle != "" && !strings.Contains(fold.String(p.Name), needle) {
			continue
		}
		if p.Price.GreaterThan(state.MaxPrice) {
			continue
		}
		if category != "" && p.Category != category {
			continue
		}
		if !state.Quick.Match(p) {
			continue
		}
		out = append(out, p)
	}

	switch state.Sort {
	case domain.SortPriceAsc:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Price.LessThan(out[j].Price) })
	case domain.SortPriceDesc:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Price.GreaterThan(out[j].Price) })
	}
	return out
}
