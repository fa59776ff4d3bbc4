package httpapi

import (
	"database/sql"
	"net/http"

	"tecky-admin/internal/events"
	"tecky-admin/internal/mailin"
)

type HealthHandler struct {
	DB         *sql.DB
	Hub        *events.Hub
	MailStatus func() mailin.Status
}

func (h HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.DB.PingContext(r.Context()); err != nil {
		WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "db": err.Error()})
		return
	}
	clients := 0
	if h.Hub != nil {
		clients = h.Hub.Clients()
	}
	out := map[string]any{
		"ok":           true,
		"push_clients": clients,
	}
	if h.MailStatus != nil {
		out["mail"] = h.MailStatus()
	}
	writeJSON(w, out)
}
