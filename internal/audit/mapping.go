package audit

import (
	"net/http"
	"strings"
)

// ActionResource holds action and resource derived from an HTTP route.
type ActionResource struct {
	Action   string
	Resource string
}

// ParseRoute returns action and resource for an HTTP method and chi route pattern
// (e.g. GET /chats/{chat_id} -> get chat). A trailing literal segment names the action
// (POST /chats/{chat_id}/finalize -> finalize chat); otherwise the method decides.
func ParseRoute(method, pattern string) ActionResource {
	segments := strings.FieldsFunc(pattern, func(r rune) bool { return r == '/' })
	if len(segments) == 0 {
		return ActionResource{Action: "unknown", Resource: "unknown"}
	}
	resource := toResource(segments[0])
	last := segments[len(segments)-1]
	if len(segments) > 1 && !isParam(last) {
		if i := strings.IndexByte(last, '.'); i > 0 {
			last = last[:i]
		}
		// Sub-collections such as /chats/{id}/messages or /admin/kpis/tokens.
		if resource == "admin" {
			return ActionResource{Action: methodToAction(method, false), Resource: strings.ReplaceAll(strings.Join(segments[1:], "_"), "-", "_")}
		}
		return ActionResource{Action: strings.ReplaceAll(last, "-", "_"), Resource: resource}
	}
	return ActionResource{Action: methodToAction(method, isParam(last)), Resource: resource}
}

func isParam(seg string) bool {
	return strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}")
}

func toResource(seg string) string {
	s := strings.ReplaceAll(seg, "-", "_")
	switch {
	case s == "admin" || s == "health" || s == "ready" || s == "metrics":
		return s
	case strings.HasSuffix(s, "s"):
		return strings.TrimSuffix(s, "s")
	}
	return s
}

func methodToAction(method string, item bool) string {
	switch method {
	case http.MethodGet:
		if item {
			return "get"
		}
		return "list"
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return strings.ToLower(method)
	}
}
