package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Laurent-Felicien/LesBonnesPieces/internal/catalog"
	"github.com/Laurent-Felicien/LesBonnesPieces/internal/middleware"
	"github.com/Laurent-Felicien/LesBonnesPieces/internal/reviews"
	"github.com/Laurent-Felicien/LesBonnesPieces/internal/storage"
	"github.com/Laurent-Felicien/LesBonnesPieces/internal/testutil"
	"github.com/Laurent-Felicien/LesBonnesPieces/internal/view"
)

type testApp struct {
	server *httptest.Server
	client *http.Client
	kv     *storage.Memory
}

func newTestApp(t *testing.T, scope string) *testApp {
	t.Helper()
	return newTestAppWith(t, scope)
}

func newTestAppWith(t *testing.T, scope string, opts ...PageOption) *testApp {
	t.Helper()

	ctx := context.Background()
	cat := catalog.Default()
	kv := storage.NewMemory()
	require.NoError(t, catalog.Publish(ctx, kv, cat))

	registry := reviews.NewRegistry(ctx, kv, cat, scope)
	renderer, err := view.New(cat, nil)
	require.NoError(t, err)
	sessions := middleware.NewSessions("test-signing-key")

	pages := NewPageHandlers(cat, registry, renderer, append([]PageOption{WithFlashTTL(3 * time.Second)}, opts...)...)
	api := NewAPIHandlers(cat, registry, kv)

	router := NewRouter(
		WithPageRoutes(pages.Routes, sessions.Middleware, middleware.HTMX, middleware.LimitBody(MaxFormBodySize), middleware.CSRF),
		WithAPIRoutes(api.Routes, sessions.Middleware),
	)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &testApp{server: srv, client: client, kv: kv}
}

func (a *testApp) get(t *testing.T, path string, header http.Header) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, a.server.URL+path, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	return a.do(t, req)
}

func (a *testApp) postForm(t *testing.T, path string, form url.Values) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, a.server.URL+path, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return a.do(t, req)
}

func (a *testApp) postJSON(t *testing.T, path, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, a.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	return a.do(t, req)
}

func (a *testApp) do(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := a.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func (a *testApp) csrfToken(t *testing.T) string {
	t.Helper()
	resp, body := a.get(t, "/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token, ok := testutil.ParseHTML(t, body).Find(`input[name="csrf_token"]`).Attr("value")
	require.True(t, ok)
	require.NotEmpty(t, token)
	return token
}

func TestListingAppliesQueryState(t *testing.T) {
	app := newTestApp(t, reviews.ScopeSession)

	resp, body := app.get(t, "/?categorie=Freinage&tri=desc", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	doc := testutil.ParseHTML(t, body)
	require.Equal(t, []string{"Plaquettes de frein (x4)", "Liquide de frein"}, testutil.Texts(doc, "#fiches .card-nom"))
	require.Equal(t, "2 pièces trouvées", strings.TrimSpace(doc.Find("#results-count").Text()))
	require.Equal(t, 0, doc.Find("#modal-overlay").Length())
}

func TestSubmitReviewRedirectsWithFlash(t *testing.T) {
	app := newTestApp(t, reviews.ScopeSession)
	token := app.csrfToken(t)

	form := url.Values{
		"piece-id":               {"2"},
		"utilisateur":            {"Alice"},
		"commentaire":            {"Great"},
		"nbEtoiles":              {"5"},
		middleware.CSRFFormField: {token},
	}
	resp, _ := app.postForm(t, "/avis?categorie=Freinage", form)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/?categorie=Freinage", resp.Header.Get("Location"))

	resp, body := app.get(t, resp.Header.Get("Location"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	doc := testutil.ParseHTML(t, body)

	msg := doc.Find("#form-message")
	require.Equal(t, `✅ Avis ajouté pour "Plaquettes de frein (x4)" !`, strings.TrimSpace(msg.Text()))
	clearAfter, ok := msg.Attr("data-clear-after")
	require.True(t, ok)
	require.NotEqual(t, "0", clearAfter)
	require.Equal(t, "💬 1 avis", strings.TrimSpace(doc.Find(`.card[data-id="2"] .btn-avis`).Text()))

	keys := app.kv.Keys("session:")
	require.Len(t, keys, 1)
	require.True(t, strings.HasSuffix(keys[0], ":avis-piece-2"))
	raw, _, err := app.kv.Get(context.Background(), keys[0])
	require.NoError(t, err)
	require.JSONEq(t, `[{"utilisateur":"Alice","commentaire":"Great","nbEtoiles":5}]`, raw)

	// The flash is consumed by the first render.
	_, body = app.get(t, "/", nil)
	require.Equal(t, "", strings.TrimSpace(testutil.ParseHTML(t, body).Find("#form-message").Text()))
}

func TestSubmitReviewValidationRerendersForm(t *testing.T) {
	app := newTestApp(t, reviews.ScopeSession)
	token := app.csrfToken(t)

	form := url.Values{
		"piece-id":               {"4"},
		"utilisateur":            {"Bob"},
		"commentaire":            {"   "},
		"nbEtoiles":              {"3"},
		middleware.CSRFFormField: {token},
	}
	resp, body := app.postForm(t, "/avis", form)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	doc := testutil.ParseHTML(t, body)
	msg := doc.Find("#form-message")
	require.Equal(t, "⚠️ Veuillez remplir tous les champs.", strings.TrimSpace(msg.Text()))
	require.True(t, msg.HasClass("error"))
	author, _ := doc.Find("#utilisateur").Attr("value")
	require.Equal(t, "Bob", author)
	selected, _ := doc.Find("#piece-id option[selected]").Attr("value")
	require.Equal(t, "4", selected)
	require.Empty(t, app.kv.Keys("session:"))

	form.Set("piece-id", "")
	form.Set("commentaire", "ok")
	resp, body = app.postForm(t, "/avis", form)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	require.Equal(t, "⚠️ Veuillez sélectionner une pièce.", strings.TrimSpace(testutil.ParseHTML(t, body).Find("#form-message").Text()))
}

func TestSubmitReviewRequiresCSRFToken(t *testing.T) {
	app := newTestApp(t, reviews.ScopeSession)
	app.csrfToken(t)

	form := url.Values{"piece-id": {"1"}, "utilisateur": {"Eve"}, "commentaire": {"x"}, "nbEtoiles": {"1"}}
	resp, _ := app.postForm(t, "/avis", form)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Empty(t, app.kv.Keys("session:"))
}

func TestSubmitReviewRejectsOversizedForm(t *testing.T) {
	app := newTestApp(t, reviews.ScopeSession)
	token := app.csrfToken(t)

	form := url.Values{
		"piece-id":               {"1"},
		"utilisateur":            {"Mallory"},
		"commentaire":            {strings.Repeat("x", 20*1024)},
		"nbEtoiles":              {"4"},
		middleware.CSRFFormField: {token},
	}
	resp, _ := app.postForm(t, "/avis", form)
	require.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	require.Empty(t, app.kv.Keys("session:"))
}

func TestFlashExpiresWithPageClock(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	app := newTestAppWith(t, reviews.ScopeSession, WithPageClock(func() time.Time { return now }))
	token := app.csrfToken(t)

	form := url.Values{
		"piece-id":               {"1"},
		"utilisateur":            {"Alice"},
		"commentaire":            {"Top"},
		"nbEtoiles":              {"4"},
		middleware.CSRFFormField: {token},
	}
	resp, _ := app.postForm(t, "/avis", form)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	now = now.Add(5 * time.Second)
	_, body := app.get(t, "/", nil)
	doc := testutil.ParseHTML(t, body)
	require.Equal(t, "", strings.TrimSpace(doc.Find("#form-message").Text()))
	require.Equal(t, "💬 1 avis", strings.TrimSpace(doc.Find(`.card[data-id="1"] .btn-avis`).Text()))
}

func TestLiveSearchKeepsFlashForFullRender(t *testing.T) {
	app := newTestApp(t, reviews.ScopeSession)
	token := app.csrfToken(t)

	form := url.Values{
		"piece-id":               {"2"},
		"utilisateur":            {"Alice"},
		"commentaire":            {"Great"},
		"nbEtoiles":              {"5"},
		middleware.CSRFFormField: {token},
	}
	resp, _ := app.postForm(t, "/avis", form)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	resp, body := app.get(t, "/?q=frein", http.Header{"Hx-Request": {"true"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	doc := testutil.ParseHTML(t, body)
	require.Equal(t, []string{"Plaquettes de frein (x4)", "Liquide de frein"}, testutil.Texts(doc, "#results .card-nom"))
	require.Equal(t, "", strings.TrimSpace(doc.Find("#form-message").Text()))

	_, body = app.get(t, "/", nil)
	msg := testutil.ParseHTML(t, body).Find("#form-message")
	require.Equal(t, `✅ Avis ajouté pour "Plaquettes de frein (x4)" !`, strings.TrimSpace(msg.Text()))
}

func TestReviewsDialog(t *testing.T) {
	app := newTestApp(t, reviews.ScopeSession)

	resp, body := app.get(t, "/pieces/3/avis?tri=asc", http.Header{"Hx-Request": {"true"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	fragment := string(body)
	require.NotContains(t, fragment, "<html")
	doc := testutil.ParseHTML(t, body)
	require.Equal(t, "Avis — Ampoule boîte à gants", strings.TrimSpace(doc.Find("#modal-title").Text()))
	require.Equal(t, 1, doc.Find(".no-avis").Length())
	closeHref, _ := doc.Find("#modal-overlay").Attr("data-close-href")
	require.Equal(t, "/?tri=asc", closeHref)

	resp, body = app.get(t, "/pieces/3/avis", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	doc = testutil.ParseHTML(t, body)
	require.Equal(t, 1, doc.Find("#fiches").Length())
	require.Equal(t, 1, doc.Find("#modal-overlay").Length())

	resp, _ = app.get(t, "/pieces/42/avis", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListingOpensDialogFromQuery(t *testing.T) {
	app := newTestApp(t, reviews.ScopeSession)

	_, body := app.get(t, "/?avis=1", nil)
	doc := testutil.ParseHTML(t, body)
	require.Equal(t, "Avis — Ampoule LED", strings.TrimSpace(doc.Find("#modal-title").Text()))

	_, body = app.get(t, "/?avis=77", nil)
	require.Equal(t, 0, testutil.ParseHTML(t, body).Find("#modal-overlay").Length())
}

func TestSessionScopeIsolatesVisitors(t *testing.T) {
	app := newTestApp(t, reviews.ScopeSession)
	resp, _ := app.postJSON(t, "/api/avis", `{"pieceId":1,"utilisateur":"Alice","commentaire":"Bright","nbEtoiles":4}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	other, err := http.Get(app.server.URL + "/api/pieces/1/avis")
	require.NoError(t, err)
	defer other.Body.Close()
	var list []map[string]any
	require.NoError(t, json.NewDecoder(other.Body).Decode(&list))
	require.Empty(t, list)
}

func TestSharedScopeIsVisibleToEveryone(t *testing.T) {
	app := newTestApp(t, reviews.ScopeShared)
	resp, _ := app.postJSON(t, "/api/avis", `{"pieceId":1,"utilisateur":"Alice","commentaire":"Bright","nbEtoiles":4}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	other, err := http.Get(app.server.URL + "/api/pieces/1/avis")
	require.NoError(t, err)
	defer other.Body.Close()
	var list []map[string]any
	require.NoError(t, json.NewDecoder(other.Body).Decode(&list))
	require.Len(t, list, 1)
}

func TestAPIReviews(t *testing.T) {
	app := newTestApp(t, reviews.ScopeSession)

	resp, body := app.postJSON(t, "/api/avis", `{"pieceId":2,"utilisateur":"Alice","commentaire":"Great","nbEtoiles":5}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.JSONEq(t, `{"pieceId":2,"utilisateur":"Alice","commentaire":"Great","nbEtoiles":5}`, string(body))

	resp, body = app.get(t, "/api/pieces/2/avis", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `[{"utilisateur":"Alice","commentaire":"Great","nbEtoiles":5}]`, string(body))

	resp, body = app.get(t, "/api/pieces/5/avis", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `[]`, string(body))

	resp, body = app.get(t, "/api/pieces/99/avis", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	var envelope map[string]any
	require.NoError(t, json.Unmarshal(body, &envelope))
	require.Equal(t, "piece_not_found", envelope["error"])
}

func TestAPICreateReviewErrors(t *testing.T) {
	app := newTestApp(t, reviews.ScopeSession)

	cases := []struct {
		name   string
		body   string
		status int
		code   string
		reason string
	}{
		{name: "malformed", body: `{"pieceId":`, status: http.StatusBadRequest, code: "invalid_request"},
		{name: "empty", body: ``, status: http.StatusBadRequest, code: "invalid_request"},
		{name: "rating", body: `{"pieceId":1,"utilisateur":"a","commentaire":"b","nbEtoiles":9}`, status: http.StatusUnprocessableEntity, code: "invalid_review", reason: reviews.ReasonInvalidRating},
		{name: "fractional rating", body: `{"pieceId":1,"utilisateur":"a","commentaire":"b","nbEtoiles":4.5}`, status: http.StatusUnprocessableEntity, code: "invalid_review", reason: reviews.ReasonInvalidRating},
		{name: "quoted rating", body: `{"pieceId":1,"utilisateur":"a","commentaire":"b","nbEtoiles":"5"}`, status: http.StatusUnprocessableEntity, code: "invalid_review", reason: reviews.ReasonInvalidRating},
		{name: "missing rating", body: `{"pieceId":1,"utilisateur":"a","commentaire":"b"}`, status: http.StatusUnprocessableEntity, code: "invalid_review", reason: reviews.ReasonInvalidRating},
		{name: "unknown piece", body: `{"pieceId":12,"utilisateur":"a","commentaire":"b","nbEtoiles":2}`, status: http.StatusUnprocessableEntity, code: "invalid_review", reason: reviews.ReasonUnknownProduct},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := app.postJSON(t, "/api/avis", tc.body)
			require.Equal(t, tc.status, resp.StatusCode)
			var envelope map[string]any
			require.NoError(t, json.Unmarshal(body, &envelope))
			require.Equal(t, tc.code, envelope["error"])
			if tc.reason != "" {
				require.Equal(t, tc.reason, envelope["reason"])
			}
		})
	}
	require.Empty(t, app.kv.Keys("session:"))
}

func TestAPIPiecesAndStats(t *testing.T) {
	app := newTestApp(t, reviews.ScopeSession)

	resp, body := app.get(t, "/api/pieces", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pieces []map[string]any
	require.NoError(t, json.Unmarshal(body, &pieces))
	require.Len(t, pieces, 5)
	require.Equal(t, "Ampoule LED", pieces[0]["nom"])

	for _, rating := range []string{"5", "5", "2"} {
		resp, _ = app.postJSON(t, "/api/avis", `{"pieceId":1,"utilisateur":"a","commentaire":"b","nbEtoiles":`+rating+`}`)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp, body = app.get(t, "/api/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"total":5,"disponibles":4,"nonDisponibles":1,"etoiles":[0,1,0,0,2]}`, string(body))

	// Statistics follow the published key rather than the in-process catalog.
	require.NoError(t, app.kv.Set(context.Background(), catalog.StorageKey, `[{"id":1,"nom":"x","prix":1,"image":"","disponibilite":false}]`))
	_, body = app.get(t, "/api/stats", nil)
	var stats map[string]any
	require.NoError(t, json.Unmarshal(body, &stats))
	require.EqualValues(t, 1, stats["total"])
	require.EqualValues(t, 0, stats["disponibles"])
}

func TestNotFoundResponses(t *testing.T) {
	app := newTestApp(t, reviews.ScopeSession)

	resp, body := app.get(t, "/api/nope", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	var envelope map[string]any
	require.NoError(t, json.Unmarshal(body, &envelope))
	require.Equal(t, "route_not_found", envelope["error"])

	resp, body = app.get(t, "/nope", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Contains(t, string(body), "Page introuvable")
}

func TestHealthHandlers(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(90 * time.Second)
	healthy := NewHealthHandlers(
		WithHealthBuildInfo(BuildInfo{Version: "1.2.0", CommitSHA: "abc123", Environment: "prod", StartedAt: start}),
		WithHealthClock(func() time.Time { return now }),
		WithReadinessCheck("storage", storage.NewMemory().Ping),
	)

	rr := httptest.NewRecorder()
	healthy.Healthz(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])
	require.Equal(t, "abc123", body["commitSha"])
	require.Equal(t, "1m30s", body["uptime"])

	rr = httptest.NewRecorder()
	healthy.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	closed := storage.NewMemory()
	require.NoError(t, closed.Close())
	degraded := NewHealthHandlers(
		WithReadinessCheck("storage", closed.Ping),
		WithReadinessCheck("catalog", func(context.Context) error { return errors.New("catalog not published") }),
	)
	rr = httptest.NewRecorder()
	degraded.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	var ready struct {
		Status  string                       `json:"status"`
		Checks  map[string]healthCheckResult `json:"checks"`
		Details []string                     `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &ready))
	require.Equal(t, "degraded", ready.Status)
	require.Equal(t, "degraded", ready.Checks["storage"].Status)
	require.Len(t, ready.Details, 2)
}
