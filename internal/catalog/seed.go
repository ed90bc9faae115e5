package catalog

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/Laurent-Felicien/LesBonnesPieces/internal/domain"
)

// Default returns the built-in automotive parts catalog.
func Default() *Catalog {
	return MustNew(defaultProducts())
}

func defaultProducts() []domain.Product {
	return []domain.Product{
		{
			ID:          1,
			Name:        "Ampoule LED",
			Price:       decimal.NewFromInt(60),
			Category:    "Optiques",
			Image:       "images/ampoule-led.png",
			Emoji:       "💡",
			Description: "Distance d'éclairage : 100 mètres !",
			InStock:     true,
		},
		{
			ID:          2,
			Name:        "Plaquettes de frein (x4)",
			Price:       decimal.NewFromInt(40),
			Category:    "Freinage",
			Image:       "images/plaquettes-frein.png",
			Emoji:       "🛑",
			Description: "Une qualité de freinage optimale, par tous les temps.",
			InStock:     true,
		},
		{
			ID:          3,
			Name:        "Ampoule boîte à gants",
			Price:       decimal.RequireFromString("5.49"),
			Category:    "Optiques",
			Image:       "images/ampoule-boite-a-gants.png",
			Emoji:       "🔆",
			Description: "Pour y voir clair dans l'habitacle.",
			InStock:     false,
		},
		{
			ID:          4,
			Name:        "Liquide de frein",
			Price:       decimal.RequireFromString("9.60"),
			Category:    "Freinage",
			Image:       "images/liquide-frein.png",
			Emoji:       "🧴",
			Description: "Liquide de frein haute performance, compatible tous véhicules.",
			InStock:     true,
		},
		{
			ID:          5,
			Name:        "Balai d'essuie-glace",
			Price:       decimal.RequireFromString("29.10"),
			Category:    "Carrosserie",
			Image:       "images/balai-essuie-glace.png",
			Emoji:       "🌧️",
			Description: "Performances d'essuyage au top ! Longueur : 550 mm.",
			InStock:     true,
		},
	}
}

// seedProduct mirrors domain.Product with a textual price so seeds can carry either
// numbers or quoted decimals without float rounding.
type seedProduct struct {
	ID          int    `yaml:"id"`
	Name        string `yaml:"nom"`
	Price       string `yaml:"prix"`
	Category    string `yaml:"categorie"`
	Image       string `yaml:"image"`
	Emoji       string `yaml:"emoji"`
	Description string `yaml:"description"`
	InStock     bool   `yaml:"disponibilite"`
}

// LoadFile reads a catalog from a YAML or JSON seed file. An empty path yields the
// built-in catalog.
func LoadFile(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes seed bytes. JSON documents are valid YAML, so both formats share the decoder.
func Parse(raw []byte) (*Catalog, error) {
	var seeds []seedProduct
	if err := yaml.Unmarshal(raw, &seeds); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}

	products := make([]domain.Product, 0, len(seeds))
	for _, s := range seeds {
		price, err := decimal.NewFromString(strings.TrimSpace(s.Price))
		if err != nil {
			return nil, fmt.Errorf("%w: product %d price %q: %v", ErrInvalidSeed, s.ID, s.Price, err)
		}
		products = append(products, domain.Product{
			ID:          s.ID,
			Name:        s.Name,
			Price:       price,
			Category:    s.Category,
			Image:       s.Image,
			Emoji:       s.Emoji,
			Description: s.Description,
			InStock:     s.InStock,
		})
	}
	return New(products)
}
