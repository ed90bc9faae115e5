package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Laurent-Felicien/LesBonnesPieces/internal/catalog"
	"github.com/Laurent-Felicien/LesBonnesPieces/internal/domain"
	"github.com/Laurent-Felicien/LesBonnesPieces/internal/platform/httpx"
	"github.com/Laurent-Felicien/LesBonnesPieces/internal/platform/requestctx"
	"github.com/Laurent-Felicien/LesBonnesPieces/internal/reviews"
	"github.com/Laurent-Felicien/LesBonnesPieces/internal/storage"
)

const maxReviewBodySize = 16 * 1024

// APIHandlers exposes the catalog and the visitor's reviews as JSON.
type APIHandlers struct {
	catalog *catalog.Catalog
	stores  ReviewStores
	kv      storage.KV
}

// NewAPIHandlers constructs the JSON handlers. kv is the unscoped store holding the published
// catalog.
func NewAPIHandlers(c *catalog.Catalog, stores ReviewStores, kv storage.KV) *APIHandlers {
	return &APIHandlers{catalog: c, stores: stores, kv: kv}
}

// Routes registers the /api endpoints.
func (h *APIHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/pieces", h.listPieces)
	r.Get("/pieces/{id}/avis", h.listReviews)
	r.Post("/avis", h.createReview)
	r.Get("/stats", h.stats)
}

func (h *APIHandlers) listPieces(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, h.catalog.Wire())
}

func (h *APIHandlers) listReviews(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := atoi(chi.URLParam(r, "id"))
	if !h.catalog.Has(id) {
		httpx.WriteError(ctx, w, httpx.NotFound("piece_not_found", "piece not found").
			WithDetails(map[string]any{"pieceId": id}))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.storeFor(r).List(id))
}

type createReviewRequest struct {
	PieceID     int             `json:"pieceId"`
	Utilisateur string          `json:"utilisateur"`
	Commentaire string          `json:"commentaire"`
	NbEtoiles   json.RawMessage `json:"nbEtoiles"`
}

// rating returns the star rating when nbEtoiles is a JSON integer and 0 otherwise, so that
// fractional, quoted or missing ratings are rejected by the store as invalid_rating.
func (req createReviewRequest) rating() int {
	n, err := strconv.Atoi(strings.TrimSpace(string(req.NbEtoiles)))
	if err != nil {
		return 0
	}
	return n
}

type createReviewResponse struct {
	PieceID int `json:"pieceId"`
	domain.Review
}

func (h *APIHandlers) createReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createReviewRequest
	if err := httpx.DecodeJSON(r, maxReviewBodySize, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.DecodeError(err))
		return
	}

	review, err := h.storeFor(r).Append(ctx, req.PieceID, req.Utilisateur, req.Commentaire, req.rating())
	if err != nil {
		writeReviewError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, createReviewResponse{PieceID: req.PieceID, Review: review})
}

type statsResponse struct {
	Total          int    `json:"total"`
	Disponibles    int    `json:"disponibles"`
	NonDisponibles int    `json:"nonDisponibles"`
	Etoiles        [5]int `json:"etoiles"`
}

// stats reports availability from the published catalog key and counts the visitor's reviews
// per star rating.
func (h *APIHandlers) stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pieces := h.catalog.Wire()
	if h.kv != nil {
		published, ok, err := catalog.ReadPublished(ctx, h.kv)
		switch {
		case err != nil:
			requestctx.Logger(ctx).Warn("published catalog unreadable", zap.Error(err))
		case ok:
			pieces = published
		}
	}

	var resp statsResponse
	for _, p := range pieces {
		resp.Total++
		if p.Disponibilite {
			resp.Disponibles++
		} else {
			resp.NonDisponibles++
		}
	}

	store := h.storeFor(r)
	for _, id := range h.catalog.IDs() {
		for _, rv := range store.List(id) {
			if rv.Rating >= domain.MinRating && rv.Rating <= domain.MaxRating {
				resp.Etoiles[rv.Rating-1]++
			}
		}
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *APIHandlers) storeFor(r *http.Request) *reviews.Store {
	return sessionStore(r, h.stores)
}

func writeReviewError(ctx context.Context, w http.ResponseWriter, err error) {
	var vErr *reviews.ValidationError
	if errors.As(err, &vErr) {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_review", vErr.Message, http.StatusUnprocessableEntity).
			WithDetails(map[string]any{"reason": vErr.Reason}))
		return
	}
	requestctx.Logger(ctx).Error("review persistence failed", zap.Error(err))
	httpx.WriteError(ctx, w, httpx.NewError("review_storage_failed", "unable to store review", http.StatusInternalServerError))
}
