package handlers

import (
	"net/http"

	"staffdesk/core/auth"
	"staffdesk/core/contacts"
	"staffdesk/core/portal"
	"staffdesk/core/portalapi"
)

type CapabilityHandler struct {
	prober   *auth.Prober
	sessions SessionSource
}

func NewCapabilityHandler(prober *auth.Prober, sessions SessionSource) *CapabilityHandler {
	return &CapabilityHandler{prober: prober, sessions: sessions}
}

// Group resolves capability freshly on every call; a missing session or
// unreachable portal yields all-false flags, not an error.
func (h *CapabilityHandler) Group(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(r, "id")
	if !ok {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return
	}
	c := h.prober.GroupCapability(r.Context(), h.sessions.Current(r.Context()), id)
	writeJSON(w, http.StatusOK, map[string]any{"group_id": id, "capability": c})
}

type ContactsHandler struct {
	nav *portal.Navigator
}

func NewContactsHandler(nav *portal.Navigator) *ContactsHandler {
	return &ContactsHandler{nav: nav}
}

func (h *ContactsHandler) Members(w http.ResponseWriter, r *http.Request) {
	v, ok := portal.As[*contacts.View](h.nav.Current())
	if !ok {
		http.Error(w, "contacts is not open", http.StatusConflict)
		return
	}
	id, ok := parseIDParam(r, "id")
	if !ok {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return
	}
	members, err := v.Members(r.Context(), id)
	if err != nil {
		writeError(w, upstreamStatus(err), err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": members})
}

// upstreamStatus maps a failed portal read to the status relayed to the
// caller. Transient failures are worth retrying, so they answer 503.
func upstreamStatus(err error) int {
	switch {
	case portalapi.IsNotFound(err):
		return http.StatusNotFound
	case portalapi.IsForbidden(err):
		return http.StatusForbidden
	case portalapi.IsTransient(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
