package httpapi

import (
	"database/sql"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"tecky-admin/internal/domain"
	"tecky-admin/internal/events"
	"tecky-admin/internal/store"
)

type JobsHandler struct {
	DB  *sql.DB
	Hub *events.Hub
}

type jobRequest struct {
	JobID      string `json:"jobId"`
	Position   string `json:"position"`
	Location   string `json:"location"`
	Experience string `json:"experience"`
}

// readJob accepts either a JSON body or a multipart form with an optional
// "pdf" file part.
func readJob(w http.ResponseWriter, r *http.Request) (jobRequest, []byte, error) {
	var req jobRequest
	if !isMultipart(r) {
		return req, nil, decodeJSON(w, r, &req)
	}

	r.Body = http.MaxBytesReader(w, r.Body, store.MaxDocumentBytes+maxJSONBody)
	if err := r.ParseMultipartForm(store.MaxDocumentBytes); err != nil {
		return req, nil, err
	}
	req.JobID = r.FormValue("jobId")
	req.Position = r.FormValue("position")
	req.Location = r.FormValue("location")
	req.Experience = r.FormValue("experience")

	pdf, err := readUpload(r, "pdf", store.MaxDocumentBytes)
	return req, pdf, err
}

func (h JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	jobs, err := store.ListJobs(r.Context(), h.DB)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, jobs)
}

func (h JobsHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, pdf, err := readJob(w, r)
	if err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	key, err := store.PutDocument(r.Context(), h.DB, pdf)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	job, err := store.CreateJob(r.Context(), h.DB, store.JobInput{
		JobID:      req.JobID,
		Position:   req.Position,
		Location:   req.Location,
		Experience: req.Experience,
		PDFKey:     key,
	})
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	publish(h.Hub, r, domain.EventJobCreated, job)
	WriteJSON(w, http.StatusCreated, job)
}

func (h JobsHandler) Update(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimSpace(chi.URLParam(r, "jobId"))
	req, pdf, err := readJob(w, r)
	if err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.JobID != "" && req.JobID != jobID {
		WriteError(w, r, http.StatusBadRequest, "invalid_request", "jobId cannot be changed")
		return
	}
	key, err := store.PutDocument(r.Context(), h.DB, pdf)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	job, err := store.UpdateJob(r.Context(), h.DB, jobID, store.JobInput{
		Position:   req.Position,
		Location:   req.Location,
		Experience: req.Experience,
		PDFKey:     key,
	})
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	publish(h.Hub, r, domain.EventJobUpdated, job)
	writeJSON(w, job)
}

func (h JobsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimSpace(chi.URLParam(r, "jobId"))
	job, apps, err := store.DeleteJob(r.Context(), h.DB, jobID)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	for _, a := range apps {
		publish(h.Hub, r, domain.EventApplicationDeleted, a)
	}
	publish(h.Hub, r, domain.EventJobDeleted, job)
	writeJSON(w, job)
}
