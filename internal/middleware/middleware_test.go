package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"
)

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName {
			return c
		}
	}
	return nil
}

func TestSessionIssuesSignedULIDCookie(t *testing.T) {
	sessions := NewSessions("test-key")
	var seen *SessionData
	h := sessions.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SessionFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotNil(t, seen)
	_, err := ulid.ParseStrict(seen.ID)
	require.NoError(t, err)
	require.NotEmpty(t, seen.CSRFToken)

	cookie := sessionCookie(t, rec)
	require.NotNil(t, cookie)
	require.True(t, cookie.HttpOnly)

	// the same cookie resolves to the same session and is not rewritten
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	first := seen.ID
	h.ServeHTTP(rec, req)
	require.Equal(t, first, seen.ID)
	require.Nil(t, sessionCookie(t, rec))
}

func TestSessionRejectsTamperedCookie(t *testing.T) {
	sessions := NewSessions("test-key")
	var id string
	h := sessions.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id = SessionFromContext(r.Context()).ID
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	original := id
	cookie := sessionCookie(t, rec)

	forged := NewSessions("other-key")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	var forgedID string
	forged.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		forgedID = SessionFromContext(r.Context()).ID
	})).ServeHTTP(httptest.NewRecorder(), req)
	require.NotEqual(t, original, forgedID)
}

func TestFlashSurvivesRedirectAndExpires(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	sessions := NewSessions("test-key", WithClock(func() time.Time { return now }))

	set := sessions.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		SessionFromContext(r.Context()).SetFlash("success", "✅ ok", 3*time.Second, sessions.Now())
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}))
	rec := httptest.NewRecorder()
	set.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/avis", nil))
	cookie := sessionCookie(t, rec)
	require.NotNil(t, cookie)

	var got Flash
	var ok bool
	take := sessions.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = SessionFromContext(r.Context()).TakeFlash(sessions.Now())
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	take.ServeHTTP(rec, req)
	require.True(t, ok)
	require.Equal(t, "✅ ok", got.Message)
	require.NotNil(t, sessionCookie(t, rec), "taking the flash rewrites the cookie")

	// replaying the old cookie after the deadline drops the flash
	now = now.Add(5 * time.Second)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	take.ServeHTTP(httptest.NewRecorder(), req)
	require.False(t, ok)
}

func TestCSRF(t *testing.T) {
	sessions := NewSessions("test-key")
	var token string
	h := sessions.Middleware(CSRF(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token = SessionFromContext(r.Context()).CSRFToken
		w.WriteHeader(http.StatusOK)
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := sessionCookie(t, rec)

	post := func(form url.Values) int {
		req := httptest.NewRequest(http.MethodPost, "/avis", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.AddCookie(cookie)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	require.Equal(t, http.StatusForbidden, post(url.Values{}))
	require.Equal(t, http.StatusForbidden, post(url.Values{CSRFFormField: {"nope"}}))
	require.Equal(t, http.StatusOK, post(url.Values{CSRFFormField: {token}}))
}

func TestLimitBodyAppliesBeforeCSRF(t *testing.T) {
	sessions := NewSessions("test-key")
	reached := false
	var token string
	h := sessions.Middleware(LimitBody(1024)(CSRF(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		token = SessionFromContext(r.Context()).CSRFToken
	}))))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	cookie := sessionCookie(t, rec)
	reached = false

	post := func(form url.Values) int {
		req := httptest.NewRequest(http.MethodPost, "/avis", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.AddCookie(cookie)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	big := url.Values{"commentaire": {strings.Repeat("a", 4096)}, CSRFFormField: {token}}
	require.Equal(t, http.StatusRequestEntityTooLarge, post(big))
	require.False(t, reached)

	require.Equal(t, http.StatusOK, post(url.Values{"commentaire": {"ok"}, CSRFFormField: {token}}))
	require.True(t, reached)
}

func TestHTMX(t *testing.T) {
	var is bool
	h := HTMX(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		is = IsHTMX(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/pieces/1/avis", nil)
	req.Header.Set("HX-Request", "true")
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.True(t, is)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.False(t, is)
}

func TestAssetsETag(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "images"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "images", "led.png"), []byte("png"), 0o644))

	assets := NewAssets(dir)
	require.True(t, assets.Has("images/led.png"))
	require.False(t, assets.Has("images/missing.png"))

	rec := httptest.NewRecorder()
	assets.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/images/led.png", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	req := httptest.NewRequest(http.MethodGet, "/images/led.png", nil)
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	assets.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotModified, rec.Code)
}

func TestMatchesETag(t *testing.T) {
	etag := `"abc"`
	cases := []struct {
		header string
		want   bool
	}{
		{header: "", want: false},
		{header: `"abc"`, want: true},
		{header: `"zzz", "abc"`, want: true},
		{header: `W/"abc"`, want: true},
		{header: "*", want: true},
		{header: `"zzz"`, want: false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, matchesETag(tc.header, etag), tc.header)
	}
}
