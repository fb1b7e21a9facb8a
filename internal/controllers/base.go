package controllers

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/drstein77/groceryweb/internal/compress"
	"github.com/drstein77/groceryweb/internal/middleware"
	"github.com/drstein77/groceryweb/internal/models"
	"github.com/drstein77/groceryweb/internal/storage"
	"github.com/go-chi/chi"
	"go.uber.org/zap"
)

// Storage interface for catalogue operations
type Storage interface {
	ImportCSV(context.Context, storage.Upload) (*models.ProcessResponse, error)
	AddProduct(context.Context, models.ProductInput) (models.Product, error)
	Search(context.Context, string) ([]models.Product, error)
	Products(context.Context) ([]models.Product, error)
	Ping(context.Context) bool
}

// Log interface for logging
type Log interface {
	Info(string, ...zap.Field)
	Error(string, ...zap.Field)
}

// BaseController serves the JSON API.
type BaseController struct {
	storage  Storage
	sessions middleware.Sessions
	log      Log
}

// NewBaseController creates a new BaseController instance
func NewBaseController(storage Storage, sessions middleware.Sessions, log Log) *BaseController {
	return &BaseController{
		storage:  storage,
		sessions: sessions,
		log:      log,
	}
}

// Route sets up the routes for the BaseController
func (h *BaseController) Route() *chi.Mux {
	r := chi.NewRouter()

	r.Get("/products", h.searchProducts)
	r.Get("/products/export", h.exportProducts)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAdmin(h.sessions, middleware.Unauthorized))
		r.Use(middleware.ArchiveTypeMiddleware)
		r.Post("/products", h.postProducts)
	})

	return r
}

// Health answers 200 while the store is reachable.
func (h *BaseController) Health(w http.ResponseWriter, r *http.Request) {
	if !h.storage.Ping(r.Context()) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *BaseController) postProducts(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	response, err := h.storage.ImportCSV(r.Context(), storage.Upload{
		FileName: "api-upload.csv",
		Type:     compress.TypeCSV,
		Body:     r.Body,
	})
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge), errors.Is(err, storage.ErrFileTooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "upload is too large")
		case storage.IsUserError(err):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.log.Error("Failed to import products", zap.Error(err))
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to process products: %v", err))
		}
		return
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *BaseController) searchProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.storage.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		if storage.IsUserError(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error("Failed to search products", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to search products")
		return
	}

	writeJSON(w, http.StatusOK, map[string][]models.Product{"products": products})
}

// exportProducts packs every product into data.csv inside a zip (the
// default) or tar archive, or sends the bare CSV for archiveType=csv.
func (h *BaseController) exportProducts(w http.ResponseWriter, r *http.Request) {
	archiveType := r.URL.Query().Get("archiveType")
	if archiveType == "" {
		archiveType = compress.TypeZip
	}
	if archiveType != compress.TypeZip && archiveType != compress.TypeTar && archiveType != compress.TypeCSV {
		writeError(w, http.StatusBadRequest, "archiveType must be zip, tar or csv")
		return
	}

	products, err := h.storage.Products(r.Context())
	if err != nil {
		h.log.Error("Failed to retrieve products", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to retrieve products")
		return
	}

	data, err := encodeCSV(products)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode products")
		return
	}

	var body bytes.Buffer
	switch archiveType {
	case compress.TypeZip:
		zw, err := compress.NewZipWriter(&body, "data.csv")
		if err == nil {
			_, err = zw.Write(data)
		}
		if err == nil {
			err = zw.Close()
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to build archive")
			return
		}
		w.Header().Set("Content-Type", "application/zip")
	case compress.TypeTar:
		if err := compress.WriteTar(&body, "data.csv", data); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to build archive")
			return
		}
		w.Header().Set("Content-Type", "application/x-tar")
	default:
		body.Write(data)
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	}

	filename := "products." + archiveType
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body.Bytes())
}

func encodeCSV(products []models.Product) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)

	if err := cw.Write([]string{"id", "name", "category", "price", "quantity", "create_date"}); err != nil {
		return nil, err
	}
	for _, p := range products {
		record := []string{
			strconv.FormatInt(p.ID, 10),
			p.Name,
			p.Category,
			strconv.FormatFloat(p.Price, 'f', -1, 64),
			strconv.Itoa(p.Quantity),
			p.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(record); err != nil {
			return nil, err
		}
	}
	cw.Flush()
	return buf.Bytes(), cw.Error()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
