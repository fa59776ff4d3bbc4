package httpapi

import (
	"crypto/subtle"
	"net/http"
)

// ShutdownHandler lets a local supervisor stop the engine. Requests must
// carry the token the engine wrote to its data dir at startup.
type ShutdownHandler struct {
	Token string
	Stop  func()
}

func (h ShutdownHandler) Shutdown(w http.ResponseWriter, r *http.Request) {
	got := r.Header.Get("X-Shutdown-Token")
	if h.Token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.Token)) != 1 {
		WriteError(w, r, http.StatusUnauthorized, "unauthorized", "missing or wrong shutdown token")
		return
	}
	writeJSON(w, map[string]any{"ok": true})
	// respond first; the server drains this request during shutdown
	go h.Stop()
}
