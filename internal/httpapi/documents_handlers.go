package httpapi

import (
	"database/sql"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"tecky-admin/internal/store"
)

type DocumentsHandler struct {
	DB *sql.DB
}

// Get serves a stored PDF. Keys are content hashes so responses never change.
func (h DocumentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if len(key) != 64 {
		WriteError(w, r, http.StatusNotFound, "not_found", "document not found")
		return
	}

	ct, b, err := store.GetDocument(r.Context(), h.DB, key)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("ETag", `"`+key+`"`)
	_, _ = w.Write(b)
}
