package middleware

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/Laurent-Felicien/LesBonnesPieces/internal/platform/requestctx"
)

const (
	sessionCookieName = "LBP_SESSION"
	sessionLifetime   = 30 * 24 * time.Hour
)

// Flash is a one-shot notice shown on the next rendered page.
type Flash struct {
	Message   string    `json:"msg"`
	Kind      string    `json:"kind,omitempty"`
	ExpiresAt time.Time `json:"exp"`
}

// SessionData is persisted inside the signed session cookie.
type SessionData struct {
	ID        string    `json:"id"`
	CSRFToken string    `json:"csrf,omitempty"`
	Flash     *Flash    `json:"flash,omitempty"`
	CreatedAt time.Time `json:"createdAt"`

	dirty bool
}

// MarkDirty flags the session for writing before the response.
func (s *SessionData) MarkDirty() { s.dirty = true }

// SetFlash queues a notice that expires after ttl.
func (s *SessionData) SetFlash(kind, message string, ttl time.Duration, now time.Time) {
	s.Flash = &Flash{Message: message, Kind: kind, ExpiresAt: now.Add(ttl)}
	s.MarkDirty()
}

// TakeFlash returns the pending notice and clears it. Expired notices are dropped.
func (s *SessionData) TakeFlash(now time.Time) (Flash, bool) {
	if s == nil || s.Flash == nil {
		return Flash{}, false
	}
	flash := *s.Flash
	s.Flash = nil
	s.MarkDirty()
	if !now.Before(flash.ExpiresAt) {
		return Flash{}, false
	}
	return flash, true
}

// SessionOption customises Sessions.
type SessionOption func(*Sessions)

// WithSecureCookies marks the cookie Secure.
func WithSecureCookies(secure bool) SessionOption {
	return func(s *Sessions) { s.secure = secure }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Sessions) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSessionLogger reports signing key fallbacks.
func WithSessionLogger(logger *zap.Logger) SessionOption {
	return func(s *Sessions) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Sessions issues and verifies HMAC-signed session cookies.
type Sessions struct {
	key    []byte
	secure bool
	now    func() time.Time
	logger *zap.Logger
}

// NewSessions builds the session manager. An empty key generates a process-ephemeral one,
// which invalidates sessions on restart.
func NewSessions(signingKey string, opts ...SessionOption) *Sessions {
	s := &Sessions{
		secure: false,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if signingKey == "" {
		s.key = make([]byte, 32)
		if _, err := rand.Read(s.key); err != nil {
			s.key = []byte("insecure-dev-key-set-CATALOG_SESSION_SIGNING_KEY")
		}
		s.logger.Warn("session: using ephemeral signing key; set CATALOG_SESSION_SIGNING_KEY to keep sessions across restarts")
	} else {
		s.key = []byte(signingKey)
	}
	return s
}

// Now returns the manager's clock reading.
func (s *Sessions) Now() time.Time {
	return s.now()
}

// Middleware loads or initialises the session and stores it in the request context. The
// cookie is rewritten before the first response write whenever the session changed.
func (s *Sessions) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sd, fromCookie := s.read(r)
		if sd.ID == "" {
			now := s.now().UTC()
			sd = &SessionData{
				ID:        ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
				CSRFToken: newCSRFToken(),
				CreatedAt: now,
				dirty:     true,
			}
		}

		hw := &hookWriter{ResponseWriter: w}
		hw.before = func(w http.ResponseWriter) {
			if sd.dirty || !fromCookie {
				s.write(w, sd)
			}
		}
		ctx := requestctx.With(WithSession(r.Context(), sd), zap.String("session_id", sd.ID))
		next.ServeHTTP(hw, r.WithContext(ctx))
		if !hw.wrote && (sd.dirty || !fromCookie) {
			s.write(w, sd)
		}
	})
}

func (s *Sessions) read(r *http.Request) (*SessionData, bool) {
	c, err := r.Cookie(sessionCookieName)
	if err != nil || c.Value == "" {
		return &SessionData{}, false
	}
	payloadPart, sigPart, ok := strings.Cut(c.Value, ".")
	if !ok {
		return &SessionData{}, false
	}
	payload, err := base64.RawURLEncoding.DecodeString(payloadPart)
	if err != nil {
		return &SessionData{}, false
	}
	sig, err := base64.RawURLEncoding.DecodeString(sigPart)
	if err != nil {
		return &SessionData{}, false
	}
	if !hmac.Equal(sig, s.sign(payload)) {
		return &SessionData{}, false
	}
	var sd SessionData
	if err := json.Unmarshal(payload, &sd); err != nil {
		return &SessionData{}, false
	}
	if _, err := ulid.ParseStrict(sd.ID); err != nil {
		return &SessionData{}, false
	}
	return &sd, true
}

func (s *Sessions) write(w http.ResponseWriter, sd *SessionData) {
	payload, _ := json.Marshal(sd)
	value := base64.RawURLEncoding.EncodeToString(payload) + "." + base64.RawURLEncoding.EncodeToString(s.sign(payload))
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  s.now().Add(sessionLifetime),
	})
	sd.dirty = false
}

func (s *Sessions) sign(payload []byte) []byte {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(payload)
	return mac.Sum(nil)
}

func newCSRFToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
