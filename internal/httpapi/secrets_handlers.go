package httpapi

import (
	"net/http"
	"strings"
	"sync/atomic"

	"tecky-admin/internal/logger"
	"tecky-admin/internal/secrets"
)

// SecretsHandler manages the mail ingest password. The keychain entry is
// keyed by the configured IMAP user and host, so the mail section must be
// filled in first.
type SecretsHandler struct {
	CfgVal *atomic.Value // config.Config
}

type imapSecretStatus struct {
	Account    string `json:"account"`
	Configured bool   `json:"configured"`
}

func (h SecretsHandler) account(w http.ResponseWriter, r *http.Request) (string, bool) {
	cfg := currentConfig(h.CfgVal)
	if strings.TrimSpace(cfg.Mail.Username) == "" || strings.TrimSpace(cfg.Mail.IMAPHost) == "" {
		WriteError(w, r, http.StatusConflict, "mail_not_configured", "set mail.username and mail.imap_host first")
		return "", false
	}
	return secrets.IMAPKeyringAccount(cfg), true
}

func (h SecretsHandler) IMAPStatus(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.account(w, r)
	if !ok {
		return
	}
	_, err := secrets.GetIMAPPassword(acct)
	writeJSON(w, imapSecretStatus{Account: acct, Configured: err == nil})
}

func (h SecretsHandler) SetIMAPPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(body.Password) == "" {
		WriteError(w, r, http.StatusBadRequest, "invalid_request", "password is required")
		return
	}
	acct, ok := h.account(w, r)
	if !ok {
		return
	}
	if err := secrets.SetIMAPPassword(acct, body.Password); err != nil {
		WriteError(w, r, http.StatusInternalServerError, "keyring_failed", err.Error())
		return
	}
	logger.From(r.Context()).Info("imap password stored", logger.Component("secrets"))
	w.WriteHeader(http.StatusNoContent)
}

func (h SecretsHandler) DeleteIMAPPassword(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.account(w, r)
	if !ok {
		return
	}
	if err := secrets.DeleteIMAPPassword(acct); err != nil {
		WriteError(w, r, http.StatusInternalServerError, "keyring_failed", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
