package server

import (
	"encoding/json"
	"net/http"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeNotReady is the 503 shape for resources that exist but are not
// servable yet. The current status is echoed so clients can poll.
func writeNotReady(w http.ResponseWriter, message, current string) {
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{
		"error":  message,
		"status": current,
	})
}
