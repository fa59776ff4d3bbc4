package httpapi

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tecky-admin/internal/domain"
	"tecky-admin/internal/events"
	"tecky-admin/internal/store"
)

type ApplicationsHandler struct {
	DB  *sql.DB
	Hub *events.Hub
}

func (h ApplicationsHandler) List(w http.ResponseWriter, r *http.Request) {
	apps, err := store.ListApplications(r.Context(), h.DB, r.URL.Query().Get("jobId"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, apps)
}

// Create takes the candidate form: jobId, name, email, phone and an
// optional "resume" PDF.
func (h ApplicationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in store.ApplicationInput
	var resume []byte

	if isMultipart(r) {
		r.Body = http.MaxBytesReader(w, r.Body, store.MaxDocumentBytes+maxJSONBody)
		if err := r.ParseMultipartForm(store.MaxDocumentBytes); err != nil {
			WriteError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		in.JobID = r.FormValue("jobId")
		in.Name = r.FormValue("name")
		in.Email = r.FormValue("email")
		in.Phone = r.FormValue("phone")
		b, err := readUpload(r, "resume", store.MaxDocumentBytes)
		if err != nil {
			WriteError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		resume = b
	} else {
		var req struct {
			JobID string `json:"jobId"`
			Name  string `json:"name"`
			Email string `json:"email"`
			Phone string `json:"phone"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			WriteError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		in = store.ApplicationInput{JobID: req.JobID, Name: req.Name, Email: req.Email, Phone: req.Phone}
	}

	key, err := store.PutDocument(r.Context(), h.DB, resume)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	in.ResumeKey = key

	app, err := store.CreateApplication(r.Context(), h.DB, in)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	publish(h.Hub, r, domain.EventApplicationCreated, app)
	WriteJSON(w, http.StatusCreated, app)
}

func (h ApplicationsHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	st, ok := domain.ParseApplicationStatus(req.Status)
	if !ok {
		WriteError(w, r, http.StatusBadRequest, "invalid_request", "status must be applied, shortlisted or rejected")
		return
	}

	app, err := store.UpdateApplicationStatus(r.Context(), h.DB, chi.URLParam(r, "id"), st)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	publish(h.Hub, r, domain.EventApplicationUpdated, app)
	writeJSON(w, app)
}
