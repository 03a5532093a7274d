package handlers

import (
	"errors"
	"net/http"

	"staffdesk/core/chat"
	"staffdesk/core/portal"
)

type ChatHandler struct {
	nav *portal.Navigator
}

func NewChatHandler(nav *portal.Navigator) *ChatHandler {
	return &ChatHandler{nav: nav}
}

func (h *ChatHandler) view(w http.ResponseWriter) (*chat.View, bool) {
	v, ok := portal.As[*chat.View](h.nav.Current())
	if !ok {
		http.Error(w, "chat is not open", http.StatusConflict)
		return nil, false
	}
	return v, true
}

type selectRoomRequest struct {
	RoomID int64 `json:"room_id"`
}

func (h *ChatHandler) Select(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w)
	if !ok {
		return
	}
	var req selectRoomRequest
	if err := decodeJSON(w, r, &req); err != nil || req.RoomID <= 0 {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return
	}
	if err := v.Select(r.Context(), req.RoomID); err != nil {
		writeError(w, http.StatusBadGateway, err.Error(), map[string]any{"snapshot": v.Snapshot()})
		return
	}
	writeJSON(w, http.StatusOK, v.Snapshot())
}

type draftRequest struct {
	Text string `json:"text"`
}

func (h *ChatHandler) SetDraft(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w)
	if !ok {
		return
	}
	var req draftRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return
	}
	v.Composer().SetDraft(req.Text)
	writeJSON(w, http.StatusOK, map[string]string{"draft": v.Composer().Draft()})
}

// Send never drops the draft on failure; it is echoed back so the input box
// can be restored.
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w)
	if !ok {
		return
	}
	msg, err := v.Send(r.Context())
	draft := v.Composer().Draft()
	switch {
	case errors.Is(err, chat.ErrEmptyDraft), errors.Is(err, chat.ErrNoRoom):
		writeError(w, http.StatusBadRequest, err.Error(), map[string]any{"draft": draft})
	case err != nil:
		writeError(w, http.StatusBadGateway, err.Error(), map[string]any{"draft": draft})
	default:
		writeJSON(w, http.StatusCreated, map[string]any{"message": msg, "draft": draft})
	}
}
