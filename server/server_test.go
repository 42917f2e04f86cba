package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ByLCY/adsmith/config"
	"github.com/ByLCY/adsmith/feed"
	"github.com/ByLCY/adsmith/fonts"
	"github.com/ByLCY/adsmith/layout"
	"github.com/ByLCY/adsmith/persistence"
	"github.com/ByLCY/adsmith/renderer"
	"github.com/ByLCY/adsmith/storage"
)

type stubRenderer struct{}

func (stubRenderer) Render(_ context.Context, _ *layout.Template, record renderer.Record) ([]byte, error) {
	title, _ := record["title"].(string)
	return []byte("\x89PNG" + title), nil
}

type testEnv struct {
	router   *gin.Engine
	listings *persistence.ListingRepository
	org      uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	l := zaptest.NewLogger(t)
	db, err := persistence.Open(config.DatabaseConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "api.db")}, "silent", l)
	require.NoError(t, err)
	t.Cleanup(func() { _ = persistence.Close(db) })

	fontDir := t.TempDir()
	_, err = fonts.InstallBuiltin(fontDir)
	require.NoError(t, err)

	listings := persistence.NewListingRepository(db)
	o := feed.NewOrchestrator(stubRenderer{}, storage.NewMemoryStorage(), feed.WithLogger(l))
	svc := feed.NewService(persistence.NewTemplateRepository(db), listings, persistence.NewFeedRepository(db), o, l)
	return &testEnv{
		router:   NewRouter(Options{Service: svc, Fonts: fonts.NewStore(fontDir), Logger: l, MaxBodyBytes: 1 << 20}),
		listings: listings,
		org:      uuid.New(),
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(OrganizationHeader, e.org.String())
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *ErrorInfo      `json:"error"`
	Meta    *Meta           `json:"meta"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

const document = `{"designSize":"1:1","layers":[{"type":"text","variable":"title","properties":{"left":0,"top":0,"width":500,"height":100}}]}`

func (e *testEnv) createTemplate(t *testing.T) string {
	w := e.do(t, http.MethodPost, "/api/templates", map[string]any{"name": "cars", "document": json.RawMessage(document)})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var tpl struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &tpl))
	return tpl.ID
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestOrganizationHeaderRequired(t *testing.T) {
	e := newTestEnv(t)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/feeds", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ErrCodeOrganization, decode(t, w).Error.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/feeds", nil)
	req.Header.Set(OrganizationHeader, "not-a-uuid")
	w = httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateFeed(t *testing.T) {
	e := newTestEnv(t)
	tplID := e.createTemplate(t)
	for _, title := range []string{"Golf", "Polo"} {
		require.NoError(t, e.listings.Create(context.Background(), &persistence.ListingModel{OrganizationID: e.org, Title: title}))
	}

	w := e.do(t, http.MethodPost, "/api/feeds", map[string]any{
		"name": "weekly", "platform": "facebook", "template": tplID,
		"filters": map[string]any{"limit": 10, "sort": "title"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	env := decode(t, w)
	require.True(t, env.Success)

	var created struct {
		ID        string        `json:"id"`
		Inventory []feed.Result `json:"inventory"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	require.Len(t, created.Inventory, 2)
	for _, item := range created.Inventory {
		assert.True(t, item.Success)
		require.NotNil(t, item.URL)
	}

	w = e.do(t, http.MethodGet, "/api/feeds/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodGet, "/api/feeds?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	env = decode(t, w)
	require.NotNil(t, env.Meta)
	assert.EqualValues(t, 1, env.Meta.Total)
}

func TestCreateFeedErrors(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodPost, "/api/feeds", map[string]any{"platform": "facebook"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ErrCodeValidation, decode(t, w).Error.Code)

	w = e.do(t, http.MethodPost, "/api/feeds", map[string]any{"name": "x", "platform": "facebook", "template": "nope"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPost, "/api/feeds", map[string]any{"name": "x", "platform": "facebook", "template": uuid.NewString()})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, ErrCodeNotFound, decode(t, w).Error.Code)

	w = e.do(t, http.MethodPost, "/api/feeds", map[string]any{"name": "x", "platform": "facebook", "filters": map[string]any{"sort": "secret"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodGet, "/api/feeds/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodGet, "/api/feeds?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTemplates(t *testing.T) {
	e := newTestEnv(t)
	id := e.createTemplate(t)

	w := e.do(t, http.MethodGet, "/api/templates/"+id, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodPost, "/api/templates", map[string]any{"name": "bad", "document": map[string]any{"designSize": "2:1", "layers": []any{}}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodGet, "/api/templates/bad-id", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPreview(t *testing.T) {
	e := newTestEnv(t)
	id := e.createTemplate(t)

	w := e.do(t, http.MethodPost, "/api/templates/"+id+"/preview", map[string]any{"record": map[string]any{"title": "Golf"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "\x89PNGGolf", w.Body.String())

	listing := &persistence.ListingModel{OrganizationID: e.org, Title: "Polo"}
	require.NoError(t, e.listings.Create(context.Background(), listing))
	w = e.do(t, http.MethodPost, "/api/templates/"+id+"/preview", map[string]any{"listing_id": listing.ID.String()})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "\x89PNGPolo", w.Body.String())

	w = e.do(t, http.MethodPost, "/api/templates/"+id+"/preview", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListFonts(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodGet, "/api/fonts", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var families []fontFamily
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &families))
	require.Len(t, families, 1)
	assert.Equal(t, "Go", families[0].Name)
	assert.Equal(t, []string{"bold", "bolditalic", "italic", "regular"}, families[0].Variants)
}
