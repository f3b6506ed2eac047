// Package httpx holds the JSON response helpers shared by every handler.
// All API errors go through JSONError so clients see one envelope: a
// machine-readable code plus an optional details payload (field violations,
// offending ids).
package httpx

import (
	"encoding/json"
	"net/http"
)

type errorBody struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// JSON marshals payload before writing the status line so an encoding
// failure can still produce a clean 500 instead of truncated JSON.
func JSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, `{"error":"internal_error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// JSONError writes the uniform error envelope.
func JSONError(w http.ResponseWriter, status int, code string, details any) {
	JSON(w, status, errorBody{Error: code, Details: details})
}
