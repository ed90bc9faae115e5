package handlers

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Laurent-Felicien/LesBonnesPieces/internal/catalog"
	"github.com/Laurent-Felicien/LesBonnesPieces/internal/filter"
	"github.com/Laurent-Felicien/LesBonnesPieces/internal/middleware"
	"github.com/Laurent-Felicien/LesBonnesPieces/internal/platform/requestctx"
	"github.com/Laurent-Felicien/LesBonnesPieces/internal/reviews"
	"github.com/Laurent-Felicien/LesBonnesPieces/internal/view"
)

// MaxFormBodySize bounds page form submissions; pass it to middleware.LimitBody ahead of CSRF.
const MaxFormBodySize = 16 * 1024

const (
	defaultFlashTTL = 3 * time.Second

	formFieldProduct = "piece-id"
	formFieldAuthor  = "utilisateur"
	formFieldComment = "commentaire"
	formFieldRating  = "nbEtoiles"

)

// ReviewStores resolves the review store visible to a visitor session.
type ReviewStores interface {
	ForSession(ctx context.Context, sessionID string) *reviews.Store
}

// PageHandlers serves the server-rendered catalog.
type PageHandlers struct {
	catalog  *catalog.Catalog
	stores   ReviewStores
	renderer *view.Renderer
	flashTTL time.Duration
	now      func() time.Time
}

// PageOption customises PageHandlers.
type PageOption func(*PageHandlers)

// WithFlashTTL sets how long the confirmation notice stays visible.
func WithFlashTTL(ttl time.Duration) PageOption {
	return func(h *PageHandlers) {
		if ttl > 0 {
			h.flashTTL = ttl
		}
	}
}

// WithPageClock overrides time.Now.
func WithPageClock(now func() time.Time) PageOption {
	return func(h *PageHandlers) {
		if now != nil {
			h.now = now
		}
	}
}

// NewPageHandlers constructs the HTML handlers.
func NewPageHandlers(c *catalog.Catalog, stores ReviewStores, renderer *view.Renderer, opts ...PageOption) *PageHandlers {
	h := &PageHandlers{
		catalog:  c,
		stores:   stores,
		renderer: renderer,
		flashTTL: defaultFlashTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the page endpoints. Session and CSRF middleware must be applied by the caller.
func (h *PageHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.index)
	r.Get("/pieces/{id}/avis", h.reviewsDialog)
	r.Post("/avis", h.submitReview)
}

func (h *PageHandlers) index(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := middleware.SessionFromContext(ctx)
	state := h.state(r)

	in := view.PageInput{
		State:      state,
		OpenReview: atoi(r.URL.Query().Get(filter.ParamReview)),
		CSRFToken:  csrfToken(sess),
	}
	// htmx refreshes (live search) leave the flash for the next full render.
	if sess != nil && !middleware.IsHTMX(ctx) {
		now := h.now()
		if flash, ok := sess.TakeFlash(now); ok {
			in.Notice = &view.Notice{
				Message:    flash.Message,
				Kind:       flash.Kind,
				ClearAfter: flash.ExpiresAt.Sub(now).Milliseconds(),
			}
		}
	}

	h.renderPage(w, r, http.StatusOK, in, h.storeFor(r))
}

func (h *PageHandlers) reviewsDialog(w http.ResponseWriter, r *http.Request) {
	id := atoi(chi.URLParam(r, "id"))
	if !h.catalog.Has(id) {
		http.Error(w, "Pièce introuvable", http.StatusNotFound)
		return
	}
	state := h.state(r)
	store := h.storeFor(r)

	if !middleware.IsHTMX(r.Context()) {
		in := view.PageInput{
			State:      state,
			OpenReview: id,
			CSRFToken:  csrfToken(middleware.SessionFromContext(r.Context())),
		}
		h.renderPage(w, r, http.StatusOK, in, store)
		return
	}

	modal, _ := h.renderer.BuildModal(id, state, store)
	var buf bytes.Buffer
	if err := h.renderer.RenderModal(&buf, modal); err != nil {
		h.renderFailure(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (h *PageHandlers) submitReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Formulaire invalide", middleware.FormStatus(err))
		return
	}

	sess := middleware.SessionFromContext(ctx)
	state := h.state(r)
	store := h.storeFor(r)

	values := view.FormValues{
		ProductID: atoi(r.PostFormValue(formFieldProduct)),
		Author:    r.PostFormValue(formFieldAuthor),
		Comment:   r.PostFormValue(formFieldComment),
		Rating:    atoi(r.PostFormValue(formFieldRating)),
	}

	review, err := store.Append(ctx, values.ProductID, values.Author, values.Comment, values.Rating)
	if err != nil {
		var vErr *reviews.ValidationError
		if errors.As(err, &vErr) {
			values.Error = vErr.Message
			in := view.PageInput{State: state, FormValues: values, CSRFToken: csrfToken(sess)}
			h.renderPage(w, r, http.StatusUnprocessableEntity, in, store)
			return
		}
		requestctx.Logger(ctx).Error("review submission failed", zap.Int("piece_id", values.ProductID), zap.Error(err))
		values.Error = "Impossible d'enregistrer l'avis, réessayez plus tard."
		in := view.PageInput{State: state, FormValues: values, CSRFToken: csrfToken(sess)}
		h.renderPage(w, r, http.StatusInternalServerError, in, store)
		return
	}

	name := ""
	if p, ok := h.catalog.Find(values.ProductID); ok {
		name = p.Name
	}
	if sess != nil {
		sess.SetFlash("success", view.SuccessMessage(name), h.flashTTL, h.now())
	}
	requestctx.Logger(ctx).Info("review added", zap.Int("piece_id", values.ProductID), zap.Int("rating", review.Rating))
	http.Redirect(w, r, state.Href(), http.StatusSeeOther)
}

func (h *PageHandlers) state(r *http.Request) filter.State {
	return filter.ParseQuery(r.URL.Query(), filter.Default(h.catalog))
}

func (h *PageHandlers) storeFor(r *http.Request) *reviews.Store {
	return sessionStore(r, h.stores)
}

func sessionStore(r *http.Request, stores ReviewStores) *reviews.Store {
	id := ""
	if sess := middleware.SessionFromContext(r.Context()); sess != nil {
		id = sess.ID
	}
	return stores.ForSession(r.Context(), id)
}

func (h *PageHandlers) renderPage(w http.ResponseWriter, r *http.Request, status int, in view.PageInput, store *reviews.Store) {
	page := h.renderer.BuildPage(in, store)
	var buf bytes.Buffer
	if err := h.renderer.RenderPage(&buf, page); err != nil {
		h.renderFailure(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (h *PageHandlers) renderFailure(w http.ResponseWriter, r *http.Request, err error) {
	requestctx.Logger(r.Context()).Error("render failed", zap.Error(err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func csrfToken(sess *middleware.SessionData) string {
	if sess == nil {
		return ""
	}
	return sess.CSRFToken
}

// atoi parses a form or path integer; anything unparsable is 0, which no product uses.
func atoi(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return n
}
