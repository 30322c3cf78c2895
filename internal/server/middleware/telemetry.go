package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"praxis-pilot/backend/internal/audit"
	"praxis-pilot/backend/internal/telemetry"
	"praxis-pilot/backend/internal/telemetry/domain"
	"praxis-pilot/backend/internal/tenancy"
)

// TelemetrySource is the source recorded on request telemetry events.
const TelemetrySource = "http_middleware"

// Telemetry returns middleware that emits an http_request event after each request.
// Best-effort: emit failures are logged and never affect the response. If emitter is
// nil, the middleware only calls next. skipRoutes lists route patterns not to emit.
// The event carries ids, the route pattern, status and duration, never request content.
func Telemetry(emitter telemetry.EventEmitter, skipRoutes map[string]bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if emitter == nil {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := RoutePattern(r)
			if skipRoutes[route] {
				return
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			ar := audit.ParseRoute(r.Method, route)
			event := &domain.Event{
				EventType: domain.EventHTTPRequest,
				Source:    TelemetrySource,
				Attributes: map[string]string{
					"method":      r.Method,
					"route":       route,
					"action":      ar.Action,
					"resource":    ar.Resource,
					"status_code": strconv.Itoa(status),
					"duration_ms": strconv.FormatInt(time.Since(start).Milliseconds(), 10),
					"client_ip":   ClientIP(r),
				},
			}
			if id := chimw.GetReqID(r.Context()); id != "" {
				event.Attributes["request_id"] = id
			}
			if tc, ok := tenancy.From(r.Context()); ok {
				event.TenantID = tc.TenantID
				event.UserID = tc.UserID
			}
			telemetry.EmitAsync(emitter, event)
		})
	}
}

// RoutePattern returns the matched chi route pattern of r, or "unmatched".
func RoutePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// RequestIDHeader echoes the request id assigned by chi's RequestID middleware as
// X-Request-ID so clients can correlate audit rows with their calls.
func RequestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := chimw.GetReqID(r.Context()); id != "" {
			w.Header().Set(chimw.RequestIDHeader, id)
		}
		next.ServeHTTP(w, r)
	})
}

// SpanRoute names the active span after the matched route pattern once routing is done,
// so span names never carry ids.
func SpanRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		span := trace.SpanFromContext(r.Context())
		if !span.IsRecording() {
			return
		}
		route := RoutePattern(r)
		span.SetName(r.Method + " " + route)
		span.SetAttributes(attribute.String("http.route", route))
	})
}
