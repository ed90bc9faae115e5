package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Laurent-Felicien/LesBonnesPieces/internal/domain"
)

// StorageKey is where the catalog is published for the statistics endpoint.
const StorageKey = "pieces"

// WireProduct is the JSON shape of a product shared with browsers and the statistics charts.
// Prices are emitted as JSON numbers.
type WireProduct struct {
	ID            int         `json:"id"`
	Nom           string      `json:"nom"`
	Prix          json.Number `json:"prix"`
	Categorie     string      `json:"categorie,omitempty"`
	Image         string      `json:"image"`
	Emoji         string      `json:"emoji,omitempty"`
	Description   string      `json:"description,omitempty"`
	Disponibilite bool        `json:"disponibilite"`
}

// ToWire converts a product to its JSON shape.
func ToWire(p domain.Product) WireProduct {
	return WireProduct{
		ID:            p.ID,
		Nom:           p.Name,
		Prix:          json.Number(p.Price.String()),
		Categorie:     p.Category,
		Image:         p.Image,
		Emoji:         p.Emoji,
		Description:   p.Description,
		Disponibilite: p.InStock,
	}
}

// Wire returns every product in catalog order in its JSON shape.
func (c *Catalog) Wire() []WireProduct {
	out := make([]WireProduct, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, ToWire(p))
	}
	return out
}

type kvWriter interface {
	Set(ctx context.Context, key, value string) error
}

type kvReader interface {
	Get(ctx context.Context, key string) (string, bool, error)
}

// Publish stores the catalog JSON under StorageKey.
func Publish(ctx context.Context, kv kvWriter, c *Catalog) error {
	payload, err := json.Marshal(c.Wire())
	if err != nil {
		return fmt.Errorf("catalog: encode: %w", err)
	}
	if err := kv.Set(ctx, StorageKey, string(payload)); err != nil {
		return fmt.Errorf("catalog: publish: %w", err)
	}
	return nil
}

// ReadPublished loads the catalog JSON stored by Publish. The boolean is false when nothing
// was published.
func ReadPublished(ctx context.Context, kv kvReader) ([]WireProduct, bool, error) {
	raw, ok, err := kv.Get(ctx, StorageKey)
	if err != nil || !ok {
		return nil, false, err
	}
	var out []WireProduct
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, false, fmt.Errorf("%w: published catalog: %v", ErrInvalidSeed, err)
	}
	return out, true, nil
}
