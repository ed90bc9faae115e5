// Package reviews keeps visitor reviews per product on top of a key-value backend.
package reviews

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"

	"github.com/Laurent-Felicien/LesBonnesPieces/internal/domain"
	"github.com/Laurent-Felicien/LesBonnesPieces/internal/storage"
)

// ErrInvalidInput is wrapped by every validation failure returned from Append.
var ErrInvalidInput = errors.New("reviews: invalid input")

// Validation reasons reported by ValidationError.
const (
	ReasonMissingSelection = "missing_selection"
	ReasonMissingFields    = "missing_fields"
	ReasonInvalidRating    = "invalid_rating"
	ReasonUnknownProduct   = "unknown_product"
)

var reasonMessages = map[string]string{
	ReasonMissingSelection: "⚠️ Veuillez sélectionner une pièce.",
	ReasonMissingFields:    "⚠️ Veuillez remplir tous les champs.",
	ReasonInvalidRating:    "⚠️ Veuillez choisir une note entre 1 et 5.",
	ReasonUnknownProduct:   "⚠️ Aucune pièce avec cet identifiant.",
}

// ValidationError describes why a review was rejected. Message is safe to show to visitors.
type ValidationError struct {
	Reason  string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidInput, e.Reason)
}

// Unwrap exposes ErrInvalidInput to errors.Is.
func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

func invalid(reason string) *ValidationError {
	return &ValidationError{Reason: reason, Message: reasonMessages[reason]}
}

// Key returns the storage key holding the reviews of a product.
func Key(productID int) string {
	return fmt.Sprintf("avis-piece-%d", productID)
}

// Catalog is the subset of the catalog the store needs.
type Catalog interface {
	IDs() []int
	Has(id int) bool
}

// Option customises a Store.
type Option func(*Store)

// WithLogger reports unreadable keys and persistence failures.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSanitizer overrides author and comment normalisation.
func WithSanitizer(fn func(string) string) Option {
	return func(s *Store) {
		if fn != nil {
			s.sanitize = fn
		}
	}
}

// Store maps product ids to their reviews and mirrors every change to the backend.
type Store struct {
	kv       storage.KV
	catalog  Catalog
	logger   *zap.Logger
	sanitize func(string) string

	mu      sync.RWMutex
	reviews map[int][]domain.Review
}

// New constructs an empty store. Call Load to hydrate it from the backend.
func New(kv storage.KV, catalog Catalog, opts ...Option) *Store {
	s := &Store{
		kv:       kv,
		catalog:  catalog,
		logger:   zap.NewNop(),
		sanitize: sanitizeReviewText,
		reviews:  make(map[int][]domain.Review),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Load reads the reviews of every catalog product. A missing, unreadable or malformed key
// yields an empty list for that product only; Load itself never fails.
func (s *Store) Load(ctx context.Context) {
	loaded := make(map[int][]domain.Review)
	for _, id := range s.catalog.IDs() {
		list := s.read(ctx, id)
		if len(list) > 0 {
			loaded[id] = list
		}
	}

	s.mu.Lock()
	s.reviews = loaded
	s.mu.Unlock()
}

func (s *Store) read(ctx context.Context, id int) []domain.Review {
	key := Key(id)
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		s.logger.Warn("reviews: read failed", zap.String("key", key), zap.Error(err))
		return nil
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	var list []domain.Review
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		s.logger.Warn("reviews: discarding malformed value", zap.String("key", key), zap.Error(err))
		return nil
	}
	return list
}

// Append validates and stores a new review, then persists the product's full list. On a
// persistence failure the in-memory list is left as it was.
func (s *Store) Append(ctx context.Context, productID int, author, comment string, rating int) (domain.Review, error) {
	review, err := s.validate(productID, author, comment, rating)
	if err != nil {
		return domain.Review{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.reviews[productID]
	next := make([]domain.Review, len(previous), len(previous)+1)
	copy(next, previous)
	next = append(next, review)

	if err := s.persist(ctx, productID, next); err != nil {
		return domain.Review{}, err
	}
	s.reviews[productID] = next
	return review, nil
}

func (s *Store) validate(productID int, author, comment string, rating int) (domain.Review, error) {
	if productID <= 0 {
		return domain.Review{}, invalid(ReasonMissingSelection)
	}
	author = s.sanitize(author)
	comment = s.sanitize(comment)
	if author == "" || comment == "" {
		return domain.Review{}, invalid(ReasonMissingFields)
	}
	if rating < domain.MinRating || rating > domain.MaxRating {
		return domain.Review{}, invalid(ReasonInvalidRating)
	}
	if !s.catalog.Has(productID) {
		return domain.Review{}, invalid(ReasonUnknownProduct)
	}
	return domain.Review{Author: author, Comment: comment, Rating: rating}, nil
}

// Save replaces the reviews of a product and persists them.
func (s *Store) Save(ctx context.Context, productID int, list []domain.Review) error {
	next := append([]domain.Review(nil), list...)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persist(ctx, productID, next); err != nil {
		return err
	}
	if len(next) == 0 {
		delete(s.reviews, productID)
	} else {
		s.reviews[productID] = next
	}
	return nil
}

func (s *Store) persist(ctx context.Context, productID int, list []domain.Review) error {
	if list == nil {
		list = []domain.Review{}
	}
	payload, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("reviews: encode product %d: %w", productID, err)
	}
	if err := s.kv.Set(ctx, Key(productID), string(payload)); err != nil {
		s.logger.Error("reviews: persist failed", zap.Int("product_id", productID), zap.Error(err))
		return fmt.Errorf("reviews: persist product %d: %w", productID, err)
	}
	return nil
}

// Count returns the number of reviews for a product, zero when it has none.
func (s *Store) Count(productID int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.reviews[productID])
}

// List returns a copy of the product's reviews in insertion order.
func (s *Store) List(productID int) []domain.Review {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Review{}, s.reviews[productID]...)
}

// sanitizeReviewText trims whitespace, strips control characters and collapses spacing while
// keeping intentional newlines.
func sanitizeReviewText(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ""
	}
	normalized := strings.NewReplacer("\r\n", "\n", "\r", "\n").Replace(trimmed)
	lines := strings.Split(normalized, "\n")
	for i, line := range lines {
		line = strings.Map(func(r rune) rune {
			if unicode.IsControl(r) {
				return -1
			}
			return r
		}, line)
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
