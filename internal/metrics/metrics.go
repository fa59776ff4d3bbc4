package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tecky-admin/internal/entitycache"
)

const namespace = "tecky"

// Metrics owns a private registry so tests and the two binaries never
// collide on the global one.
type Metrics struct {
	reg *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpInflight prometheus.Gauge

	syncEvents     *prometheus.CounterVec
	syncMutations  *prometheus.CounterVec
	snapshotSize   *prometheus.GaugeVec
	snapshotReplay *prometheus.CounterVec

	mailIngested *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{reg: prometheus.NewRegistry()}

	m.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests processed.",
	}, []string{"method", "route", "status"})
	m.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
	m.httpInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "http_inflight_requests",
		Help:      "Requests being served.",
	})

	m.syncEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "events_total",
		Help:      "Push events applied to a cached collection, by outcome.",
	}, []string{"collection", "kind", "outcome"})
	m.syncMutations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "mutations_total",
		Help:      "Optimistic mutations resolved, by outcome.",
	}, []string{"collection", "outcome"})
	m.snapshotSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "collection_size",
		Help:      "Entities held after the last snapshot load.",
	}, []string{"collection"})
	m.snapshotReplay = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "snapshot_replayed_events_total",
		Help:      "Events that raced a snapshot fetch and were replayed on top of it.",
	}, []string{"collection"})

	m.mailIngested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "mail",
		Name:      "messages_total",
		Help:      "Contact emails seen by the IMAP poller, by result.",
	}, []string{"result"})

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests, m.httpDuration, m.httpInflight,
		m.syncEvents, m.syncMutations, m.snapshotSize, m.snapshotReplay,
		m.mailIngested,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// WatchHub exports the push hub's connected clients and dropped messages.
func (m *Metrics) WatchHub(clients func() int, dropped func() uint64) {
	m.reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "push",
			Name:      "clients",
			Help:      "Connected SSE and WebSocket clients.",
		}, func() float64 { return float64(clients()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "push",
			Name:      "dropped_total",
			Help:      "Messages dropped for slow clients.",
		}, func() float64 { return float64(dropped()) }),
	)
}

// Middleware instruments requests. The route label is the chi route
// pattern so path parameters never explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.httpInflight.Inc()
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			m.httpInflight.Dec()
			route := routePattern(r)
			method := strings.ToUpper(r.Method)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
		}()

		next.ServeHTTP(ww, r)
	})
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// MailIngested counts one poll result: created, duplicate, skipped or failed.
func (m *Metrics) MailIngested(result string, n int) {
	if n > 0 {
		m.mailIngested.WithLabelValues(result).Add(float64(n))
	}
}

// SyncObserver reports cache synchronization outcomes into m.
func (m *Metrics) SyncObserver() entitycache.Observer { return syncObserver{m} }

type syncObserver struct{ m *Metrics }

func (o syncObserver) EventApplied(collection string, kind entitycache.Kind, outcome entitycache.Outcome) {
	o.m.syncEvents.WithLabelValues(collection, kind.String(), string(outcome)).Inc()
}

func (o syncObserver) MutationResolved(collection string, outcome entitycache.Outcome) {
	o.m.syncMutations.WithLabelValues(collection, string(outcome)).Inc()
}

func (o syncObserver) SnapshotLoaded(collection string, size, replayed int) {
	o.m.snapshotSize.WithLabelValues(collection).Set(float64(size))
	if replayed > 0 {
		o.m.snapshotReplay.WithLabelValues(collection).Add(float64(replayed))
	}
}
