package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"staffdesk/core/approvals"
	"staffdesk/core/attendance"
	"staffdesk/core/chat"
	"staffdesk/core/contacts"
	"staffdesk/core/portal"
	"staffdesk/core/rbac"
	"staffdesk/core/utils"
)

// routePermissions gates mounting a screen on the actor's portal roles.
var routePermissions = map[string]rbac.Permission{
	approvals.Route:  rbac.PermApprovalsView,
	chat.Route:       rbac.PermChatUse,
	contacts.Route:   rbac.PermContactsView,
	attendance.Route: rbac.PermAttendanceView,
}

type NavigationHandler struct {
	nav      *portal.Navigator
	badge    *approvals.Badge
	sessions SessionSource
	policy   *rbac.Policy
	logger   *utils.Logger
}

func NewNavigationHandler(nav *portal.Navigator, badge *approvals.Badge, sessions SessionSource, policy *rbac.Policy, logger *utils.Logger) *NavigationHandler {
	return &NavigationHandler{nav: nav, badge: badge, sessions: sessions, policy: policy, logger: logger}
}

type navigateRequest struct {
	Route string `json:"route"`
}

type mountPayload struct {
	Route     string    `json:"route"`
	ViewID    string    `json:"view_id"`
	MountedAt time.Time `json:"mounted_at"`
	Snapshot  any       `json:"snapshot,omitempty"`
}

func (h *NavigationHandler) Navigate(w http.ResponseWriter, r *http.Request) {
	var req navigateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return
	}
	route := strings.ToLower(strings.TrimSpace(req.Route))
	if route == "" {
		http.Error(w, "route required", http.StatusBadRequest)
		return
	}
	if perm, ok := routePermissions[route]; ok {
		sess := h.sessions.Current(r.Context())
		if sess == nil {
			http.Error(w, "session unavailable", http.StatusServiceUnavailable)
			return
		}
		if !sess.Actor.IsSystemAdmin && !h.policy.Allowed(sess.Roles, perm) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	}
	m, err := h.nav.Navigate(r.Context(), route)
	if err != nil {
		if errors.Is(err, portal.ErrUnknownRoute) {
			http.Error(w, "unknown route", http.StatusNotFound)
			return
		}
		h.logger.Errorf("navigate %s: %v", route, err)
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, mountPayload{Route: m.Route, ViewID: m.ViewID, MountedAt: m.MountedAt})
}

func (h *NavigationHandler) Shell(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"pending_count":    h.badge.Count(),
		"pending_revision": h.badge.Revision(),
		"pending_loaded":   h.badge.Loaded(),
		"routes":           h.nav.Routes(),
	}
	if m := h.nav.Current(); m != nil {
		payload["route"] = m.Route
	}
	if sess := h.sessions.Current(r.Context()); sess != nil {
		payload["username"] = sess.Username
		payload["is_system_admin"] = sess.Actor.IsSystemAdmin
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *NavigationHandler) View(w http.ResponseWriter, r *http.Request) {
	m := h.nav.Current()
	if m == nil {
		http.Error(w, "no view mounted", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, mountPayload{Route: m.Route, ViewID: m.ViewID, MountedAt: m.MountedAt, Snapshot: m.View.Snapshot()})
}

// Refresh is the user pressing reload: failures come back to the caller and
// the cached snapshot is returned unchanged alongside the error.
func (h *NavigationHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	m := h.nav.Current()
	if m == nil {
		http.Error(w, "no view mounted", http.StatusNotFound)
		return
	}
	if err := h.nav.Refresh(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err.Error(), map[string]any{"snapshot": m.View.Snapshot()})
		return
	}
	writeJSON(w, http.StatusOK, mountPayload{Route: m.Route, ViewID: m.ViewID, MountedAt: m.MountedAt, Snapshot: m.View.Snapshot()})
}
