package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// envelope wraps every body: {"data": ...} on success, {"error": "..."} on
// failure and {"message": "..."} for acknowledgements without a payload.
type envelope struct {
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func JSON(w http.ResponseWriter, status int, data any) {
	write(w, status, envelope{Data: data})
}

func Message(w http.ResponseWriter, status int, message string) {
	write(w, status, envelope{Message: message})
}

func errorJSON(w http.ResponseWriter, status int, message string) {
	write(w, status, envelope{Error: message})
}

// write never caches: responses carry per-user quota numbers and tokens.
func write(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("writing response body", "error", err)
	}
}
