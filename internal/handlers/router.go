package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Laurent-Felicien/LesBonnesPieces/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

type routerConfig struct {
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers
	assets      http.Handler

	pages RouteRegistrar
	api   RouteRegistrar

	pageMiddlewares []func(http.Handler) http.Handler
	apiMiddlewares  []func(http.Handler) http.Handler
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

const (
	apiPrefix         = "/api"
	defaultTimeout    = 30 * time.Second
	errorNotFoundCode = "route_not_found"
)

// NewRouter constructs the chi router with shared middleware, health probes, static assets,
// the HTML pages and the JSON API.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Timeout(defaultTimeout),
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		if strings.HasPrefix(req.URL.Path, apiPrefix+"/") {
			httpx.WriteError(req.Context(), w, httpx.NotFound(errorNotFoundCode, fmt.Sprintf("no route for %s", req.URL.Path)))
			return
		}
		http.Error(w, "Page introuvable", http.StatusNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	if cfg.assets != nil {
		r.Handle("/assets/*", http.StripPrefix("/assets", cfg.assets))
	}

	if cfg.api != nil {
		r.Route(apiPrefix, func(api chi.Router) {
			for _, mw := range cfg.apiMiddlewares {
				if mw != nil {
					api.Use(mw)
				}
			}
			cfg.api(api)
		})
	}

	if cfg.pages != nil {
		r.Group(func(pages chi.Router) {
			for _, mw := range cfg.pageMiddlewares {
				if mw != nil {
					pages.Use(mw)
				}
			}
			cfg.pages(pages)
		})
	}

	return r
}

// WithMiddlewares appends additional global middleware to the router.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealthHandlers overrides the handlers used for /healthz and /readyz.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithAssets serves static files under /assets/.
func WithAssets(h http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.assets = h
	}
}

// WithPageRoutes configures the HTML routes and the middleware applied only to them.
func WithPageRoutes(reg RouteRegistrar, mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.pages = reg
		cfg.pageMiddlewares = append(cfg.pageMiddlewares, mw...)
	}
}

// WithAPIRoutes configures the JSON routes mounted under /api.
func WithAPIRoutes(reg RouteRegistrar, mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.api = reg
		cfg.apiMiddlewares = append(cfg.apiMiddlewares, mw...)
	}
}
