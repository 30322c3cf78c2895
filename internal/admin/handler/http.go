package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"praxis-pilot/backend/internal/admin/service"
	auditdomain "praxis-pilot/backend/internal/audit/domain"
	"praxis-pilot/backend/internal/platform/httpx"
	"praxis-pilot/backend/internal/platform/ratelimit"
	"praxis-pilot/backend/internal/platform/rbac"
	"praxis-pilot/backend/internal/policy/engine"
	"praxis-pilot/backend/internal/tenancy"
)

// Handler serves KPIs and audit logs under /admin. Tenant scope needs the policy's approval.
type Handler struct {
	svc    *service.Service
	policy engine.Evaluator
}

// NewHandler returns an admin Handler.
func NewHandler(svc *service.Service, policy engine.Evaluator) *Handler {
	return &Handler{svc: svc, policy: policy}
}

// Register mounts the routes on r.
func (h *Handler) Register(r chi.Router, rl *ratelimit.Limiter) {
	r.Route("/admin", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(rl.Limit("admin_kpis", ratelimit.AdminKPIs))
			r.Get("/kpis/summary", h.summary)
			r.Get("/kpis/tokens", h.tokens)
			r.Get("/kpis/chats-created", h.chatsCreated)
			r.Get("/kpis/assist-modes", h.assistModes)
			r.Get("/kpis/models", h.models)
			r.Get("/kpis/activity", h.activity)
		})
		r.Group(func(r chi.Router) {
			r.Use(rl.Limit("admin_audit_logs", ratelimit.AdminAuditLogs))
			r.Get("/audit-logs", h.auditLogs)
			r.Get("/events", h.entityEvents)
		})
	})
}

// authorize checks the policy for action at the requested scope. Anything but "tenant"
// is the caller's own scope.
func (h *Handler) authorize(r *http.Request, action string) (tenancy.Context, bool, error) {
	scope := engine.ScopeMe
	if r.URL.Query().Get("scope") == engine.ScopeTenant {
		scope = engine.ScopeTenant
	}
	tc, err := rbac.Authorize(r.Context(), h.policy, action, scope)
	return tc, scope == engine.ScopeTenant, err
}

// kpi runs fn after authorizing a KPI read and writes its result.
func (h *Handler) kpi(w http.ResponseWriter, r *http.Request, fn func(tc tenancy.Context, tenant bool, rangeVal, granularity string) (any, error)) {
	tc, tenant, err := h.authorize(r, engine.ActionKPIRead)
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	q := r.URL.Query()
	out, err := fn(tc, tenant, q.Get("range"), q.Get("granularity"))
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	h.kpi(w, r, func(tc tenancy.Context, tenant bool, rangeVal, _ string) (any, error) {
		return h.svc.Summary(r.Context(), tc, tenant, rangeVal)
	})
}

func (h *Handler) tokens(w http.ResponseWriter, r *http.Request) {
	h.kpi(w, r, func(tc tenancy.Context, tenant bool, rangeVal, granularity string) (any, error) {
		return h.svc.Tokens(r.Context(), tc, tenant, rangeVal, granularity)
	})
}

func (h *Handler) chatsCreated(w http.ResponseWriter, r *http.Request) {
	h.kpi(w, r, func(tc tenancy.Context, tenant bool, rangeVal, granularity string) (any, error) {
		return h.svc.ChatsCreated(r.Context(), tc, tenant, rangeVal, granularity)
	})
}

func (h *Handler) assistModes(w http.ResponseWriter, r *http.Request) {
	h.kpi(w, r, func(tc tenancy.Context, tenant bool, rangeVal, _ string) (any, error) {
		return h.svc.AssistModes(r.Context(), tc, tenant, rangeVal)
	})
}

func (h *Handler) models(w http.ResponseWriter, r *http.Request) {
	h.kpi(w, r, func(tc tenancy.Context, tenant bool, rangeVal, _ string) (any, error) {
		return h.svc.Models(r.Context(), tc, tenant, rangeVal)
	})
}

func (h *Handler) activity(w http.ResponseWriter, r *http.Request) {
	h.kpi(w, r, func(tc tenancy.Context, tenant bool, rangeVal, _ string) (any, error) {
		return h.svc.Activity(r.Context(), tc, tenant, rangeVal)
	})
}

type auditLogRow struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	TenantID     string    `json:"tenant_id"`
	Timestamp    time.Time `json:"timestamp"`
	Action       string    `json:"action"`
	AssistMode   *string   `json:"assist_mode"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	TotalTokens  int       `json:"total_tokens"`
	ModelName    *string   `json:"model_name"`
	ModelVersion *string   `json:"model_version"`
	EntityType   *string   `json:"entity_type"`
	EntityID     *string   `json:"entity_id"`
}

type auditLogsResponse struct {
	Items      []auditLogRow `json:"items"`
	NextCursor *string       `json:"next_cursor"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func toRow(a *auditdomain.AuditLog) auditLogRow {
	return auditLogRow{
		ID:           a.ID,
		UserID:       a.ActorID,
		TenantID:     a.TenantID,
		Timestamp:    a.Timestamp,
		Action:       a.Action,
		AssistMode:   optional(a.AssistMode),
		InputTokens:  a.InputTokens,
		OutputTokens: a.OutputTokens,
		TotalTokens:  a.InputTokens + a.OutputTokens,
		ModelName:    optional(a.ModelName),
		ModelVersion: optional(a.ModelVersion),
		EntityType:   optional(a.EntityType),
		EntityID:     optional(a.EntityID),
	}
}

func parseTime(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (h *Handler) auditLogs(w http.ResponseWriter, r *http.Request) {
	tc, tenant, err := h.authorize(r, engine.ActionAuditLogRead)
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	q := r.URL.Query()
	from, err := parseTime(q.Get("from_ts"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "from_ts must be an ISO 8601 timestamp")
		return
	}
	to, err := parseTime(q.Get("to_ts"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "to_ts must be an ISO 8601 timestamp")
		return
	}
	limit := 0
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit == 0 {
			httpx.WriteError(w, http.StatusBadRequest, "limit must be between 1 and 200")
			return
		}
	}
	page, err := h.svc.AuditLogs(r.Context(), tc, service.AuditQuery{
		TenantScope: tenant,
		From:        from,
		To:          to,
		AssistMode:  q.Get("assist_mode"),
		Action:      q.Get("action"),
		ModelName:   q.Get("model_name"),
		UserID:      q.Get("user_id"),
		Search:      q.Get("q"),
		Cursor:      q.Get("cursor"),
		Limit:       limit,
	})
	if err != nil {
		httpx.WriteErr(w, mapError(err))
		return
	}
	out := auditLogsResponse{Items: make([]auditLogRow, 0, len(page.Items)), NextCursor: optional(page.NextCursor)}
	for _, a := range page.Items {
		out.Items = append(out.Items, toRow(a))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

type eventRow struct {
	EventID       string    `json:"event_id"`
	Timestamp     time.Time `json:"timestamp"`
	Actor         string    `json:"actor"`
	EventType     string    `json:"event_type"`
	Source        string    `json:"source"`
	SchemaVersion string    `json:"schema_version"`
	DigestOK      bool      `json:"digest_ok"`
}

// entityEvents always reads at tenant scope: another user's entity is only visible to admins.
func (h *Handler) entityEvents(w http.ResponseWriter, r *http.Request) {
	tc, err := rbac.Authorize(r.Context(), h.policy, engine.ActionAuditLogRead, engine.ScopeTenant)
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	q := r.URL.Query()
	limit := 0
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit == 0 {
			httpx.WriteError(w, http.StatusBadRequest, "limit must be between 1 and 200")
			return
		}
	}
	recs, err := h.svc.EntityEvents(r.Context(), tc, q.Get("entity_type"), q.Get("entity_id"), limit)
	if err != nil {
		httpx.WriteErr(w, mapError(err))
		return
	}
	out := make([]eventRow, 0, len(recs))
	for _, e := range recs {
		out = append(out, eventRow(e))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": out})
}

func mapError(err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidLimit):
		return httpx.NewError(http.StatusBadRequest, "limit must be between 1 and 200")
	case errors.Is(err, service.ErrInvalidCursor):
		return httpx.NewError(http.StatusBadRequest, "Invalid cursor")
	case errors.Is(err, service.ErrEntityRequired):
		return httpx.NewError(http.StatusBadRequest, "entity_type and entity_id are required")
	}
	return err
}
