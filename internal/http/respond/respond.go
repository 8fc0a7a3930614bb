// Package respond writes the JSON envelope every endpoint answers with.
package respond

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// BearerChallenge is the WWW-Authenticate value sent with 401 responses.
const BearerChallenge = `Bearer realm="medicart"`

// Envelope is the standard API response wrapper used across handlers.
type Envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// JSON writes a success or informational response using the common envelope.
func JSON(w http.ResponseWriter, status int, message string, data any) {
	write(w, status, Envelope{Code: status, Message: message, Data: data})
}

// Error writes an envelope with no data.
func Error(w http.ResponseWriter, status int, message string) {
	write(w, status, Envelope{Code: status, Message: message})
}

// Unauthorized writes a 401 that challenges the client for a bearer token.
func Unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", BearerChallenge)
	Error(w, http.StatusUnauthorized, message)
}

// write marshals before touching the status line so an unencodable payload
// still produces a well-formed 500.
func write(w http.ResponseWriter, status int, payload Envelope) {
	body, err := json.Marshal(payload)
	if err != nil {
		zap.L().Error("encode response envelope",
			zap.Int("status", status),
			zap.String("message", payload.Message),
			zap.Error(err))
		status = http.StatusInternalServerError
		body, _ = json.Marshal(Envelope{Code: status, Message: "internal server error"})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}
