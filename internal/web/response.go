package web

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the standard error payload
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// RenderJSON writes a JSON response with the given status
func RenderJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

// RenderError writes a standard JSON error response
func RenderError(w http.ResponseWriter, statusCode int, err error) {
	RenderJSON(w, statusCode, &ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: err.Error(),
	})
}
