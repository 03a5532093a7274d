package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"staffdesk/core/auth"
)

const (
	errServerError = "internal server error"
	errBadRequest  = "bad request"

	maxBodyBytes = 64 * 1024
)

// SessionSource yields the session of the token holder, or nil when it could
// not be loaded.
type SessionSource interface {
	Current(ctx context.Context) *auth.Session
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, extra map[string]any) {
	payload := map[string]any{"error": msg}
	for k, v := range extra {
		payload[k] = v
	}
	writeJSON(w, status, payload)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer body.Close()
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil && err != io.EOF {
		return err
	}
	return nil
}
