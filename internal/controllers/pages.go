package controllers

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"

	"github.com/drstein77/groceryweb/internal/auth"
	"github.com/drstein77/groceryweb/internal/compress"
	"github.com/drstein77/groceryweb/internal/middleware"
	"github.com/drstein77/groceryweb/internal/models"
	"github.com/drstein77/groceryweb/internal/storage"
	"github.com/drstein77/groceryweb/internal/theme"
	"github.com/go-chi/chi"
	"go.uber.org/zap"
)

//go:embed templates/*.gohtml
var templateFS embed.FS

// maxThemeBytes caps an uploaded theme file.
const maxThemeBytes = 64 << 10

// multipartMemory is how much of a multipart form is kept in memory
// before spilling to temporary files.
const multipartMemory = 8 << 20

var pageNames = []string{"index", "login", "search", "import", "import_file", "change_theme"}

// funcs marks theme values as trusted CSS; theme.Validate restricts
// them to a safe character set before they reach a page.
var funcs = template.FuncMap{
	"css": func(s string) template.CSS { return template.CSS(s) },
}

// Auth interface for admin sessions
type Auth interface {
	middleware.Sessions
	Enabled() bool
	Login(username, password string) (string, error)
	SetCookie(w http.ResponseWriter, r *http.Request, token string)
	ClearCookie(w http.ResponseWriter)
}

// Themes interface for the active colour scheme
type Themes interface {
	Current() theme.Theme
	Apply([]byte) (theme.Theme, error)
}

// PageController serves the browser pages.
type PageController struct {
	storage Storage
	auth    Auth
	themes  Themes
	log     Log
	pages   map[string]*template.Template
}

type pageData struct {
	Title        string
	Theme        theme.Theme
	Admin        string
	LoginEnabled bool
	Message      string
	Error        string
	Query        string
	Searched     bool
	Products     []models.Product
	Result       *models.ProcessResponse
	Form         models.ProductInput
}

// NewPageController parses the embedded templates, one set per page.
func NewPageController(storage Storage, auth Auth, themes Themes, log Log) (*PageController, error) {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/layout.gohtml", "templates/"+name+".gohtml")
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s template: %w", name, err)
		}
		pages[name] = t
	}

	return &PageController{
		storage: storage,
		auth:    auth,
		themes:  themes,
		log:     log,
		pages:   pages,
	}, nil
}

// Route sets up the routes for the PageController
func (h *PageController) Route() *chi.Mux {
	r := chi.NewRouter()

	r.Get("/", h.index)
	r.Get("/login", h.loginForm)
	r.Post("/login", h.login)
	r.Get("/logout", h.logout)
	r.Get("/search", h.searchForm)
	r.Post("/search", h.search)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAdmin(h.auth, middleware.RedirectToLogin))
		r.Get("/import", h.importForm)
		r.Post("/import", h.importProduct)
		r.Get("/import-file", h.importFileForm)
		r.Post("/import-file", h.importFile)
		r.Get("/change-theme", h.themeForm)
		r.Post("/change-theme", h.changeTheme)
	})

	return r
}

func (h *PageController) index(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "index", pageData{Title: "Grocery Store"})
}

func (h *PageController) loginForm(w http.ResponseWriter, r *http.Request) {
	data := pageData{Title: "Admin Login"}
	if !h.auth.Enabled() {
		data.Error = auth.ErrLoginDisabled.Error()
	}
	h.render(w, r, http.StatusOK, "login", data)
}

func (h *PageController) login(w http.ResponseWriter, r *http.Request) {
	token, err := h.auth.Login(r.PostFormValue("username"), r.PostFormValue("password"))
	if err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, auth.ErrLoginDisabled) {
			status = http.StatusServiceUnavailable
		}
		h.log.Info("Admin login refused", zap.Error(err))
		h.render(w, r, status, "login", pageData{Title: "Admin Login", Error: err.Error()})
		return
	}

	h.auth.SetCookie(w, r, token)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *PageController) logout(w http.ResponseWriter, r *http.Request) {
	h.auth.ClearCookie(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// searchForm also runs the search when the query is in the URL, so
// result pages can be bookmarked.
func (h *PageController) searchForm(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Has("query") {
		h.runSearch(w, r, r.URL.Query().Get("query"))
		return
	}
	h.render(w, r, http.StatusOK, "search", pageData{Title: "Search Products"})
}

func (h *PageController) search(w http.ResponseWriter, r *http.Request) {
	h.runSearch(w, r, r.PostFormValue("query"))
}

func (h *PageController) runSearch(w http.ResponseWriter, r *http.Request, query string) {
	data := pageData{Title: "Search Products", Query: query}

	products, err := h.storage.Search(r.Context(), query)
	if err != nil {
		if storage.IsUserError(err) {
			data.Error = err.Error()
			h.render(w, r, http.StatusBadRequest, "search", data)
			return
		}
		h.log.Error("Failed to search products", zap.Error(err))
		data.Error = "Search is unavailable, please try again later"
		h.render(w, r, http.StatusInternalServerError, "search", data)
		return
	}

	data.Searched = true
	data.Products = products
	h.render(w, r, http.StatusOK, "search", data)
}

func (h *PageController) importForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "import", pageData{Title: "Add Product"})
}

func (h *PageController) importProduct(w http.ResponseWriter, r *http.Request) {
	in := models.ProductInput{
		Name:     r.PostFormValue("name"),
		Category: r.PostFormValue("category"),
		Price:    r.PostFormValue("price"),
		Quantity: r.PostFormValue("quantity"),
	}
	data := pageData{Title: "Add Product"}

	product, err := h.storage.AddProduct(r.Context(), in)
	if err != nil {
		data.Form = in
		if storage.IsUserError(err) {
			data.Error = err.Error()
			h.render(w, r, http.StatusBadRequest, "import", data)
			return
		}
		h.log.Error("Failed to add product", zap.Error(err))
		data.Error = "Failed to save the product"
		h.render(w, r, http.StatusInternalServerError, "import", data)
		return
	}

	data.Message = fmt.Sprintf("Product added: %s (#%d)", product.Name, product.ID)
	h.render(w, r, http.StatusOK, "import", data)
}

func (h *PageController) importFileForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "import_file", pageData{Title: "Import Products"})
}

func (h *PageController) importFile(w http.ResponseWriter, r *http.Request) {
	data := pageData{Title: "Import Products"}

	file, name, status, msg := h.formFile(r)
	if file == nil {
		data.Error = msg
		h.render(w, r, status, "import_file", data)
		return
	}
	defer file.Close()

	result, err := h.storage.ImportCSV(r.Context(), storage.Upload{
		FileName: name,
		Type:     compress.TypeFromName(name),
		Body:     file,
	})
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || errors.Is(err, storage.ErrFileTooLarge) {
			data.Error = "File is too large"
			h.render(w, r, http.StatusRequestEntityTooLarge, "import_file", data)
			return
		}
		if storage.IsUserError(err) {
			data.Error = err.Error()
			h.render(w, r, http.StatusBadRequest, "import_file", data)
			return
		}
		h.log.Error("Failed to import file", zap.String("file", name), zap.Error(err))
		data.Error = "Failed to import the file"
		h.render(w, r, http.StatusInternalServerError, "import_file", data)
		return
	}

	data.Result = result
	summary := fmt.Sprintf("Imported: %d successful, %d failed.", result.Imported, result.Failed)
	if result.Imported > 0 {
		data.Message = summary
	} else {
		data.Error = summary
	}
	h.render(w, r, http.StatusOK, "import_file", data)
}

func (h *PageController) themeForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "change_theme", pageData{Title: "Change Theme"})
}

func (h *PageController) changeTheme(w http.ResponseWriter, r *http.Request) {
	data := pageData{Title: "Change Theme"}

	file, _, status, msg := h.formFile(r)
	if file == nil {
		data.Error = msg
		h.render(w, r, status, "change_theme", data)
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(io.LimitReader(file, maxThemeBytes+1))
	if err != nil || len(raw) > maxThemeBytes {
		data.Error = "Theme file is too large"
		h.render(w, r, http.StatusRequestEntityTooLarge, "change_theme", data)
		return
	}

	if _, err := h.themes.Apply(raw); err != nil {
		h.log.Info("Theme upload rejected", zap.Error(err))
		data.Error = err.Error()
		h.render(w, r, http.StatusBadRequest, "change_theme", data)
		return
	}

	data.Message = "Theme updated!"
	h.render(w, r, http.StatusOK, "change_theme", data)
}

// formFile returns the uploaded "file" field. When there is none the
// file is nil and status and msg describe the problem.
func (h *PageController) formFile(r *http.Request) (io.ReadCloser, string, int, string) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", http.StatusRequestEntityTooLarge, "File is too large"
		}
		return nil, "", http.StatusBadRequest, "No file selected"
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", http.StatusBadRequest, "No file selected"
	}
	if header.Filename == "" {
		file.Close()
		return nil, "", http.StatusBadRequest, "No file selected"
	}
	return file, header.Filename, http.StatusOK, ""
}

func (h *PageController) render(w http.ResponseWriter, r *http.Request, status int, page string, data pageData) {
	data.Theme = h.themes.Current()
	data.LoginEnabled = h.auth.Enabled()
	if name, ok := h.auth.FromRequest(r); ok {
		data.Admin = name
	}

	var buf bytes.Buffer
	if err := h.pages[page].ExecuteTemplate(&buf, "layout", data); err != nil {
		h.log.Error("Failed to render page", zap.String("page", page), zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
