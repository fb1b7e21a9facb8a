package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/drstein77/groceryweb/internal/compress"
)

// ArchiveType resolves the archive type of an upload body. The
// archiveType query parameter wins over the Content-Type header; plain
// CSV is assumed otherwise.
func ArchiveType(r *http.Request) string {
	switch t := r.URL.Query().Get("archiveType"); t {
	case compress.TypeZip, compress.TypeTar, compress.TypeCSV:
		return t
	}

	contentType := r.Header.Get("Content-Type")
	switch {
	case strings.HasPrefix(contentType, "application/zip"):
		return compress.TypeZip
	case strings.HasPrefix(contentType, "application/x-tar"):
		return compress.TypeTar
	default:
		return compress.TypeCSV
	}
}

// ArchiveTypeMiddleware replaces a zip or tar request body with the CSV
// file found inside it, so handlers only ever see CSV.
func ArchiveTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		archiveType := ArchiveType(r)
		if archiveType == compress.TypeCSV {
			next.ServeHTTP(w, r)
			return
		}

		cr, err := compress.OpenCSV(archiveType, r.Body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "upload is too large")
				return
			}
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		defer cr.Close()

		r.Body = cr
		next.ServeHTTP(w, r)
	})
}

// MaxBodySize caps request bodies at n bytes.
func MaxBodySize(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if n > 0 {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
