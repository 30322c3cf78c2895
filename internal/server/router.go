// Package server assembles the HTTP API: shared middleware, public health checks and the
// authenticated feature routes.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	healthhandler "praxis-pilot/backend/internal/health/handler"
	"praxis-pilot/backend/internal/platform/ratelimit"
	"praxis-pilot/backend/internal/server/middleware"
	"praxis-pilot/backend/internal/telemetry"
)

// Registrar mounts one feature's routes on the authenticated router.
type Registrar interface {
	Register(r chi.Router, rl *ratelimit.Limiter)
}

// Deps holds dependencies for the HTTP router.
type Deps struct {
	// Tokens and Users resolve the caller. Ignored when AuthBypass is set.
	Tokens     middleware.TokenValidator
	Users      middleware.Resolver
	AuthBypass bool

	CORSOrigins []string
	Limiter     *ratelimit.Limiter
	// Telemetry receives http_request events. May be nil.
	Telemetry telemetry.EventEmitter
	// Metrics is served on /metrics when set.
	Metrics *middleware.Metrics

	Health *healthhandler.Handler
	// Routes are mounted behind authentication in order. Nil entries are skipped.
	Routes []Registrar
}

// publicRoutes are not traced or emitted as request telemetry.
var publicRoutes = map[string]bool{"/health": true, "/ready": true, "/metrics": true}

// NewRouter returns the API handler. Health checks and /metrics are public; everything in
// d.Routes requires a resolved tenant context.
func NewRouter(d Deps) http.Handler {
	limiter := d.Limiter
	if limiter == nil {
		limiter = ratelimit.New()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.RequestIDHeader)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.SpanRoute)
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           int((10 * time.Minute).Seconds()),
	}))

	if d.Health != nil {
		d.Health.Register(r, limiter)
	}
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		if d.AuthBypass {
			r.Use(middleware.DevBypass())
		} else {
			r.Use(middleware.Auth(d.Tokens, d.Users))
		}
		r.Use(middleware.Telemetry(d.Telemetry, publicRoutes))
		for _, reg := range d.Routes {
			if reg != nil {
				reg.Register(r, limiter)
			}
		}
	})

	return otelhttp.NewHandler(r, "praxis-pilot-api",
		otelhttp.WithFilter(func(req *http.Request) bool { return !publicRoutes[req.URL.Path] }),
		otelhttp.WithSpanNameFormatter(func(_ string, req *http.Request) string { return req.Method }),
	)
}
