// Package ratelimit applies per-route token buckets keyed by caller. The caller is the
// resolved user when present, otherwise the client IP.
package ratelimit

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"praxis-pilot/backend/internal/platform/httpx"
	"praxis-pilot/backend/internal/tenancy"
)

// Per-minute limits for the API routes.
const (
	ChatCreate      = 50
	ChatRead        = 100
	ChatPatch       = 50
	ChatDelete      = 30
	ChatSend        = 30
	ChatExport      = 30
	ChatFinalize    = 30
	AIResponseWrite = 30
	AIResponseRead  = 100
	AIAction        = 50
	CaseSummary     = 20
	Folders         = 50
	DocumentWrite   = 30
	Interventions   = 100
	AdminKPIs       = 60
	AdminAuditLogs  = 100
	PromptRead      = 100
	PromptPatch     = 30
)

const (
	idleTTL       = 10 * time.Minute
	sweepInterval = time.Minute
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter holds the buckets of every route. The zero value is not usable; use New.
type Limiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	now       func() time.Time
	lastSweep time.Time
	disabled  bool
}

// New returns a Limiter.
func New() *Limiter {
	return &Limiter{buckets: make(map[string]*bucket), now: time.Now}
}

// Disabled returns a Limiter that allows everything. Used by tests that exercise handlers.
func Disabled() *Limiter {
	l := New()
	l.disabled = true
	return l
}

// Allow reports whether caller may make one more request on route, with burst equal to
// the per-minute limit.
func (l *Limiter) Allow(route, caller string, perMinute int) bool {
	if l.disabled || perMinute <= 0 {
		return true
	}
	key := route + "|" + caller
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep(now)
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

func (l *Limiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < sweepInterval {
		return
	}
	l.lastSweep = now
	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) > idleTTL {
			delete(l.buckets, k)
		}
	}
}

// Limit returns middleware enforcing perMinute requests for route. Rejections are a 429
// written before the handler runs.
func (l *Limiter) Limit(route string, perMinute int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(route, CallerKey(r), perMinute) {
				httpx.WriteError(w, http.StatusTooManyRequests, "Rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CallerKey identifies the caller of r: "user:<id>" when authenticated, else "ip:<addr>".
func CallerKey(r *http.Request) string {
	if tc, ok := tenancy.From(r.Context()); ok && tc.UserID != "" {
		return "user:" + tc.UserID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
