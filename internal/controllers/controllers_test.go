package controllers

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/drstein77/groceryweb/internal/auth"
	"github.com/drstein77/groceryweb/internal/logger"
	"github.com/drstein77/groceryweb/internal/models"
	"github.com/drstein77/groceryweb/internal/storage"
	"github.com/drstein77/groceryweb/internal/theme"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const groceries = "name,category,price,quantity\n" +
	"Granny Smith Apples,Fruit,1.50,10\n" +
	"Whole Milk,Dairy,0.99,4\n" +
	"Sourdough Bread,Bakery,3.20,2\n"

type fixture struct {
	store  *storage.Storage
	auth   *auth.Service
	themes *theme.Store
	api    http.Handler
	pages  http.Handler
	token  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	svc, err := auth.NewService(auth.Config{Username: "admin", Password: "secret", Secret: "test-secret"})
	require.NoError(t, err)
	token, err := svc.Login("admin", "secret")
	require.NoError(t, err)

	themes, err := theme.NewStore(theme.Default(), "")
	require.NoError(t, err)

	store := storage.NewStorage(storage.NewMemoryKeeper(), logger.Nop())
	pages, err := NewPageController(store, svc, themes, logger.Nop())
	require.NoError(t, err)

	return &fixture{
		store:  store,
		auth:   svc,
		themes: themes,
		api:    NewBaseController(store, svc, logger.Nop()).Route(),
		pages:  pages.Route(),
		token:  token,
	}
}

func (f *fixture) seed(t *testing.T) {
	t.Helper()
	_, err := f.store.ImportCSV(context.Background(), storage.Upload{Body: strings.NewReader(groceries)})
	require.NoError(t, err)
}

func (f *fixture) asAdmin(r *http.Request) *http.Request {
	r.AddCookie(&http.Cookie{Name: auth.CookieName, Value: f.token})
	return r
}

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func postForm(target string, values url.Values) *http.Request {
	r := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

func postFile(t *testing.T, target, fileName, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = io.WriteString(fw, content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	r := httptest.NewRequest(http.MethodPost, target, &body)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	return r
}

func TestAPI_SearchProducts(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	rec := serve(f.api, httptest.NewRequest(http.MethodGet, "/products?q=milk", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Products []models.Product `json:"products"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Products, 1)
	assert.Equal(t, "Whole Milk", body.Products[0].Name)

	rec = serve(f.api, httptest.NewRequest(http.MethodGet, "/products?q=dragonfruit", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"products":[]}`, rec.Body.String())

	rec = serve(f.api, httptest.NewRequest(http.MethodGet, "/products?q=", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"please enter a search term"}`, rec.Body.String())
}

func TestAPI_PostProducts(t *testing.T) {
	f := newFixture(t)

	rec := serve(f.api, httptest.NewRequest(http.MethodPost, "/products", strings.NewReader(groceries)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := f.asAdmin(httptest.NewRequest(http.MethodPost, "/products?archiveType=csv", strings.NewReader(groceries+"Broken,Misc,abc,1\n")))
	rec = serve(f.api, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.ProcessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Imported)
	assert.Equal(t, 1, resp.Failed)
	assert.Equal(t, []string{`line 5: price "abc" is not a number`}, resp.Errors)
	assert.Equal(t, 3, resp.TotalItems)

	req = f.asAdmin(httptest.NewRequest(http.MethodPost, "/products", strings.NewReader("name,category\nx,y\n")))
	rec = serve(f.api, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_ExportProducts(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	rec := serve(f.api, httptest.NewRequest(http.MethodGet, "/products/export", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))

	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Equal(t, "data.csv", zr.File[0].Name)

	rc, err := zr.File[0].Open()
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 4)
	assert.Equal(t, "id,name,category,price,quantity,create_date", lines[0])
	assert.True(t, strings.HasPrefix(lines[2], "2,Whole Milk,Dairy,0.99,4,"))

	rec = serve(f.api, httptest.NewRequest(http.MethodGet, "/products/export?archiveType=tar", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-tar", rec.Header().Get("Content-Type"))

	rec = serve(f.api, httptest.NewRequest(http.MethodGet, "/products/export?archiveType=rar", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_Health(t *testing.T) {
	f := newFixture(t)
	base := NewBaseController(f.store, f.auth, logger.Nop())

	rec := serve(http.HandlerFunc(base.Health), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestPages_Index(t *testing.T) {
	f := newFixture(t)

	rec := serve(f.pages, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Grocery Store")
	assert.Contains(t, rec.Body.String(), "Admin login")
	assert.Contains(t, rec.Body.String(), theme.Default().Bg)
}

func TestPages_Search(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	rec := serve(f.pages, postForm("/search", url.Values{"query": {"bread"}}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Sourdough Bread")
	assert.NotContains(t, rec.Body.String(), "Whole Milk")

	rec = serve(f.pages, postForm("/search", url.Values{"query": {"dragonfruit"}}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No products found")

	rec = serve(f.pages, postForm("/search", url.Values{"query": {"  "}}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "please enter a search term")

	rec = serve(f.pages, httptest.NewRequest(http.MethodGet, "/search?query=fruit", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Granny Smith Apples")

	rec = serve(f.pages, httptest.NewRequest(http.MethodGet, "/search", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "No products found")
}

func TestPages_AdminPagesRequireLogin(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"/import", "/import-file", "/change-theme"} {
		rec := serve(f.pages, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusSeeOther, rec.Code, path)
		assert.Equal(t, "/login", rec.Header().Get("Location"), path)

		rec = serve(f.pages, f.asAdmin(httptest.NewRequest(http.MethodGet, path, nil)))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestPages_Login(t *testing.T) {
	f := newFixture(t)

	rec := serve(f.pages, postForm("/login", url.Values{"username": {"admin"}, "password": {"wrong"}}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid credentials")

	rec = serve(f.pages, postForm("/login", url.Values{"username": {"admin"}, "password": {"secret"}}))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, auth.CookieName, cookies[0].Name)

	req := httptest.NewRequest(http.MethodGet, "/import", nil)
	req.AddCookie(cookies[0])
	rec = serve(f.pages, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Log out (admin)")

	rec = serve(f.pages, httptest.NewRequest(http.MethodGet, "/logout", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestPages_ImportProduct(t *testing.T) {
	f := newFixture(t)

	form := url.Values{"name": {"Eggs"}, "category": {"Dairy"}, "price": {"3.10"}, "quantity": {"12"}}
	rec := serve(f.pages, f.asAdmin(postForm("/import", form)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Product added: Eggs (#1)")

	form.Set("price", "-2")
	rec = serve(f.pages, f.asAdmin(postForm("/import", form)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "price must be &gt;= 0")

	form.Set("price", "1")
	form.Set("quantity", "3000000000")
	rec = serve(f.pages, f.asAdmin(postForm("/import", form)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "quantity must be &lt;= 2147483647")

	found, err := f.store.Search(context.Background(), "eggs")
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestPages_ImportFile(t *testing.T) {
	f := newFixture(t)

	rec := serve(f.pages, f.asAdmin(postFile(t, "/import-file", "groceries.csv", groceries)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Imported: 3 successful, 0 failed.")

	all, err := f.store.Products(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 3)

	rec = serve(f.pages, f.asAdmin(postFile(t, "/import-file", "", "")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "No file selected")

	rec = serve(f.pages, f.asAdmin(postFile(t, "/import-file", "bad.csv", "name,category\nx,y\n")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid import file")
}

func TestPages_ChangeTheme(t *testing.T) {
	f := newFixture(t)

	rec := serve(f.pages, f.asAdmin(postFile(t, "/change-theme", "dark.yaml", "bg: \"#101010\"\ntext: \"#eeeeee\"\n")))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Theme updated!")
	assert.Contains(t, rec.Body.String(), "#101010")
	assert.Equal(t, "#101010", f.themes.Current().Bg)
	assert.Equal(t, theme.Default().Accent, f.themes.Current().Accent)

	rec = serve(f.pages, f.asAdmin(postFile(t, "/change-theme", "evil.yaml", "bg: \"red;}</style>\"\n")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "#101010", f.themes.Current().Bg)
}
