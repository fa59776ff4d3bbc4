package httpapi

import (
	"database/sql"
	"sync/atomic"

	"go.uber.org/zap"

	"tecky-admin/internal/config"
	"tecky-admin/internal/events"
	"tecky-admin/internal/mailin"
	"tecky-admin/internal/metrics"
)

type Deps struct {
	DB *sql.DB

	Hub *events.Hub

	Log     *zap.Logger
	Metrics *metrics.Metrics // optional

	MailStatus func() mailin.Status // optional

	// Shutdown is mounted at POST /shutdown when set.
	ShutdownToken string
	Shutdown      func()

	// Atomic stores
	CfgVal *atomic.Value // stores config.Config

	// Config persistence
	UserCfgPath string
	LoadCfg     func() (config.Config, error)
}

func currentConfig(v *atomic.Value) config.Config {
	if v == nil {
		return config.Default()
	}
	if c, ok := v.Load().(config.Config); ok {
		return c
	}
	return config.Default()
}
