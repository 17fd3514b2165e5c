package middleware

import (
	"encoding/json"
	"net/http"
)

// reject ends the request with a JSON error body in the same shape the API
// handlers produce, so clients parse one error format everywhere.
func reject(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
