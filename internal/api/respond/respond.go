// Package respond writes the {success, data, message} envelope used by every
// API response.
package respond

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/logger"
)

type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func JSON(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// OK writes a successful envelope.
func OK(w http.ResponseWriter, status int, data any, message string) {
	JSON(w, status, Envelope{Success: true, Data: data, Message: message})
}

// Fail writes {success:false, message} with an explicit status.
func Fail(w http.ResponseWriter, status int, message string) {
	JSON(w, status, Envelope{Message: message})
}

// Error maps err onto its HTTP status. Server-side failures are logged with
// the request's attributes and reported with a generic message.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
	Fail(w, status, apperrors.Message(err))
}
