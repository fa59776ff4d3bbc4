package httpapi

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"

	"go.uber.org/zap"

	"tecky-admin/internal/config"
	"tecky-admin/internal/logger"
)

// ConfigHandler serves the user config file. Readers of CfgVal see a PUT
// on their next load; the listen port and data dir are read once at start.
type ConfigHandler struct {
	CfgVal      *atomic.Value // config.Config
	UserCfgPath string
	LoadCfg     func() (config.Config, error)
}

type configSaved struct {
	Config          config.Config `json:"config"`
	Warnings        []string      `json:"warnings"`
	RestartRequired bool          `json:"restart_required"`
}

func (h ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, currentConfig(h.CfgVal))
}

func (h ConfigHandler) Put(w http.ResponseWriter, r *http.Request) {
	var next config.Config
	if err := decodeJSON(w, r, &next); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	next, vr := config.NormalizeAndValidate(next)
	if !vr.OK() {
		WriteJSON(w, http.StatusBadRequest, vr)
		return
	}
	if err := config.SaveAtomic(h.UserCfgPath, next); err != nil {
		WriteError(w, r, http.StatusInternalServerError, "save_failed", err.Error())
		return
	}

	// reload so env overlays still win over the file
	loaded, err := h.LoadCfg()
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "reload_failed", err.Error())
		return
	}
	prev := currentConfig(h.CfgVal)
	h.CfgVal.Store(loaded)

	restart := prev.App.Port != loaded.App.Port || prev.App.DataDir != loaded.App.DataDir
	logger.From(r.Context()).Info("config updated",
		logger.Component("config"),
		zap.Int("warnings", len(vr.Warnings)),
		zap.Bool("restart_required", restart),
	)
	writeJSON(w, configSaved{Config: loaded, Warnings: vr.Warnings, RestartRequired: restart})
}

func (h ConfigHandler) Path(w http.ResponseWriter, r *http.Request) {
	abs, err := filepath.Abs(h.UserCfgPath)
	if err != nil {
		abs = h.UserCfgPath
	}
	_, statErr := os.Stat(abs)
	writeJSON(w, map[string]any{"path": abs, "exists": !errors.Is(statErr, fs.ErrNotExist)})
}

func (h ConfigHandler) Validate(w http.ResponseWriter, r *http.Request) {
	_, vr := config.NormalizeAndValidate(currentConfig(h.CfgVal))
	writeJSON(w, vr)
}
