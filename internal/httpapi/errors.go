package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"tecky-admin/internal/logger"
	"tecky-admin/internal/store"
)

type APIError struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id,omitempty"`
	} `json:"error"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	var e APIError
	e.Error.Code = code
	e.Error.Message = message
	e.Error.RequestID = RequestIDFrom(r.Context())
	WriteJSON(w, status, e)
}

// writeStoreError maps store errors onto the API error envelope.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		WriteError(w, r, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, store.ErrConflict):
		WriteError(w, r, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, store.ErrInvalid):
		WriteError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		logger.From(r.Context()).Error("store failure", logger.Path(r.URL.Path), logger.Err(err))
		WriteError(w, r, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
