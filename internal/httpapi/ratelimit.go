package httpapi

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ClientLimiter rate-limits per client address.
type ClientLimiter struct {
	mu sync.Mutex
	m  map[string]*clientEntry
	r  rate.Limit
	b  int

	now func() time.Time
}

type clientEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

// idle limiters are forgotten after this long
const clientIdleTTL = 10 * time.Minute

func NewClientLimiter(reqPerSec float64, burst int) *ClientLimiter {
	return &ClientLimiter{
		m:   make(map[string]*clientEntry),
		r:   rate.Limit(reqPerSec),
		b:   burst,
		now: time.Now,
	}
}

func (cl *ClientLimiter) limiterFor(key string) *rate.Limiter {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	now := cl.now()
	if e, ok := cl.m[key]; ok {
		e.seen = now
		return e.lim
	}
	for k, e := range cl.m {
		if now.Sub(e.seen) > clientIdleTTL {
			delete(cl.m, k)
		}
	}
	lim := rate.NewLimiter(cl.r, cl.b)
	cl.m[key] = &clientEntry{lim: lim, seen: now}
	return lim
}

func (cl *ClientLimiter) Allow(r *http.Request) (bool, time.Duration) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || host == "" {
		host = r.RemoteAddr
	}
	res := cl.limiterFor(host).ReserveN(cl.now(), 1)
	if !res.OK() {
		return false, time.Minute
	}
	if d := res.DelayFrom(cl.now()); d > 0 {
		res.CancelAt(cl.now())
		return false, d
	}
	return true, 0
}

func (cl *ClientLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ok, wait := cl.Allow(r); !ok {
			secs := int(wait.Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			WriteError(w, r, http.StatusTooManyRequests, "rate_limited", "too many submissions, try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}
