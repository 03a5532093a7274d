package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"staffdesk/core/alerts"
	"staffdesk/core/store"
	"staffdesk/core/utils"
)

type AlertsHandler struct {
	inbox *alerts.Inbox
}

func NewAlertsHandler(inbox *alerts.Inbox) *AlertsHandler {
	return &AlertsHandler{inbox: inbox}
}

// Drain hands over pending alerts; each one is returned once.
func (h *AlertsHandler) Drain(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": h.inbox.Drain()})
}

type JournalHandler struct {
	journal store.JournalStore
	logger  *utils.Logger
}

func NewJournalHandler(journal store.JournalStore, logger *utils.Logger) *JournalHandler {
	return &JournalHandler{journal: journal, logger: logger}
}

func (h *JournalHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		writeJSON(w, http.StatusOK, map[string]any{"items": []store.JournalEntry{}, "enabled": false})
		return
	}
	q := r.URL.Query()
	filter := store.JournalFilter{ViewID: strings.TrimSpace(q.Get("view_id"))}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, errBadRequest, http.StatusBadRequest)
			return
		}
		filter.Limit = n
	}
	items, err := h.journal.List(r.Context(), filter)
	if err != nil {
		h.logger.Errorf("journal list: %v", err)
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "enabled": true})
}
