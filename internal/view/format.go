package view

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Laurent-Felicien/LesBonnesPieces/internal/domain"
)

// FormatPrice renders a price with two decimals and the euro sign, e.g. "60.00 €".
func FormatPrice(price decimal.Decimal) string {
	return price.StringFixed(2) + " €"
}

// SliderLabel renders the price bound shown next to the slider, e.g. "60€".
func SliderLabel(price decimal.Decimal) string {
	return price.String() + "€"
}

// Stars renders a rating as filled then empty stars, five in total.
func Stars(rating int) string {
	if rating < 0 {
		rating = 0
	}
	if rating > domain.MaxRating {
		rating = domain.MaxRating
	}
	return strings.Repeat("★", rating) + strings.Repeat("☆", domain.MaxRating-rating)
}

// ResultCountLabel renders "N pièce trouvée" or, above one, "N pièces trouvées".
func ResultCountLabel(n int) string {
	// Plural only for counts above one: zero results read "0 pièce trouvée".
	if n > 1 {
		return fmt.Sprintf("%d pièces trouvées", n)
	}
	return fmt.Sprintf("%d pièce trouvée", n)
}

// ReviewButtonLabel renders the review button caption for a product.
func ReviewButtonLabel(count int) string {
	if count > 0 {
		return fmt.Sprintf("💬 %d avis", count)
	}
	return "💬 Avis"
}

// StockLabel renders the availability badge.
func StockLabel(inStock bool) string {
	if inStock {
		return "En stock"
	}
	return "Rupture"
}

// ModalTitle renders the review dialog heading.
func ModalTitle(name string) string {
	return "Avis — " + name
}

// SuccessMessage is the notice shown after a review is stored.
func SuccessMessage(productName string) string {
	return "✅ Avis ajouté pour \"" + productName + "\" !"
}
