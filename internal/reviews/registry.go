package reviews

import (
	"context"
	"strings"

	"github.com/Laurent-Felicien/LesBonnesPieces/internal/storage"
)

// Review visibility scopes.
const (
	ScopeSession = "session"
	ScopeShared  = "shared"
)

// Registry hands out the review store a request should use. In session scope every visitor
// session reads and writes its own namespace; in shared scope a single store serves everyone.
type Registry struct {
	kv      storage.KV
	catalog Catalog
	scope   string
	opts    []Option
	shared  *Store
}

// NewRegistry prepares a registry. The shared store, when used, is loaded immediately.
func NewRegistry(ctx context.Context, kv storage.KV, catalog Catalog, scope string, opts ...Option) *Registry {
	r := &Registry{
		kv:      kv,
		catalog: catalog,
		scope:   strings.ToLower(strings.TrimSpace(scope)),
		opts:    opts,
	}
	if r.scope != ScopeShared {
		r.scope = ScopeSession
		return r
	}
	r.shared = New(storage.Scope(kv, "shared:"), catalog, opts...)
	r.shared.Load(ctx)
	return r
}

// Scope returns the effective scope.
func (r *Registry) Scope() string {
	return r.scope
}

// ForSession returns the loaded store for a visitor session.
func (r *Registry) ForSession(ctx context.Context, sessionID string) *Store {
	if r.shared != nil {
		return r.shared
	}
	store := New(storage.Scope(r.kv, SessionNamespace(sessionID)), r.catalog, r.opts...)
	store.Load(ctx)
	return store
}

// SessionNamespace is the key prefix holding one session's reviews.
func SessionNamespace(sessionID string) string {
	if sessionID == "" {
		sessionID = "anonymous"
	}
	return "session:" + sessionID + ":"
}
