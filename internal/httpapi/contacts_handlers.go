package httpapi

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tecky-admin/internal/domain"
	"tecky-admin/internal/events"
	"tecky-admin/internal/store"
)

type ContactsHandler struct {
	DB  *sql.DB
	Hub *events.Hub
}

func (h ContactsHandler) List(w http.ResponseWriter, r *http.Request) {
	cs, err := store.ListContacts(r.Context(), h.DB)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, cs)
}

// Submit is the public contact form.
func (h ContactsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    string `json:"name"`
		Email   string `json:"email"`
		Phone   string `json:"phone"`
		Message string `json:"message"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	c, err := store.CreateContact(r.Context(), h.DB, store.ContactInput{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Message: req.Message,
	})
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	publish(h.Hub, r, domain.EventContactCreated, c)
	WriteJSON(w, http.StatusCreated, c)
}

func (h ContactsHandler) SetRead(w http.ResponseWriter, r *http.Request) {
	req := struct {
		Read *bool `json:"read"`
	}{}
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			WriteError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
	}
	read := true
	if req.Read != nil {
		read = *req.Read
	}

	c, err := store.SetContactRead(r.Context(), h.DB, chi.URLParam(r, "id"), read)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	publish(h.Hub, r, domain.EventContactUpdated, c)
	writeJSON(w, c)
}

func (h ContactsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	v, err := store.DeleteContact(r.Context(), h.DB, id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	ts := domain.Tombstone{ID: id, Version: v}
	publish(h.Hub, r, domain.EventContactDeleted, ts)
	writeJSON(w, ts)
}
