package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"tecky-admin/internal/config"
)

// NewRouter wires the admin API, the push endpoints and the ops routes.
func NewRouter(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(RequestID, Recover(d.Log), AccessLog(d.Log))
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware)
	}
	r.Use(CORS(func() []string { return currentConfig(d.CfgVal).Server.CORSAllowedOrigins }))

	jh := JobsHandler{DB: d.DB, Hub: d.Hub}
	ah := ApplicationsHandler{DB: d.DB, Hub: d.Hub}
	cth := ContactsHandler{DB: d.DB, Hub: d.Hub}
	perMin := currentConfig(d.CfgVal).Server.ContactRatePerMin
	if perMin <= 0 {
		perMin = config.Default().Server.ContactRatePerMin
	}
	contactLimit := NewClientLimiter(float64(perMin)/60, perMin)

	r.Route("/api", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", jh.List)
			r.Post("/", jh.Create)
			r.Put("/{jobId}", jh.Update)
			r.Delete("/{jobId}", jh.Delete)
		})
		r.Route("/job-applications", func(r chi.Router) {
			r.Get("/", ah.List)
			r.Post("/", ah.Create)
			r.Patch("/applications/{id}/status", ah.SetStatus)
		})
		r.Route("/contacts", func(r chi.Router) {
			r.Get("/", cth.List)
			r.Patch("/{id}/read", cth.SetRead)
			r.Delete("/{id}", cth.Delete)
		})
		r.With(contactLimit.Middleware).Post("/contact", cth.Submit)

		sh := SecretsHandler{CfgVal: d.CfgVal}
		r.Route("/secrets/imap", func(r chi.Router) {
			r.Use(LocalOnly)
			r.Get("/", sh.IMAPStatus)
			r.Post("/", sh.SetIMAPPassword)
			r.Delete("/", sh.DeleteIMAPPassword)
		})
	})

	r.Get("/documents/{key}", DocumentsHandler{DB: d.DB}.Get)

	// Push
	eh := EventsHandler{
		Hub:            d.Hub,
		Log:            d.Log,
		Ping:           25 * time.Second,
		AllowedOrigins: func() []string { return currentConfig(d.CfgVal).Server.CORSAllowedOrigins },
	}
	r.Get("/events", eh.ServeSSE)
	r.Get("/ws", eh.ServeWS)

	// Ops
	r.Get("/health", HealthHandler{DB: d.DB, Hub: d.Hub, MailStatus: d.MailStatus}.Health)
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler())
	}
	ch := ConfigHandler{
		CfgVal:      d.CfgVal,
		UserCfgPath: d.UserCfgPath,
		LoadCfg:     d.LoadCfg,
	}
	r.Route("/config", func(r chi.Router) {
		r.Use(LocalOnly)
		r.Get("/", ch.Get)
		r.Put("/", ch.Put)
		r.Get("/path", ch.Path)
		r.Get("/validate", ch.Validate)
	})
	r.With(LocalOnly).Post("/db/checkpoint", DBHandler{DB: d.DB}.Checkpoint)
	if d.Shutdown != nil {
		r.With(LocalOnly).Post("/shutdown", ShutdownHandler{Token: d.ShutdownToken, Stop: d.Shutdown}.Shutdown)
	}

	return r
}
