package middleware

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the JSON shape of every rejection written by this package.
type ErrorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Rejection codes written by this package in addition to the engine's.
const (
	CodePayloadTooLarge = "PAYLOAD_TOO_LARGE"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
)

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorBody{Message: message, Code: code})
}
