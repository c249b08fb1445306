// Package response writes the JSON envelopes shared by handlers and
// middleware.
package response

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hugh/projectcamp/internal/api/dto"
	"github.com/hugh/projectcamp/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// JSON writes a success envelope.
func JSON(w http.ResponseWriter, status int, data interface{}, message string) {
	writeJSON(w, status, dto.NewAPIResponse(status, data, message))
}

// Error maps err onto the error envelope. Internal errors are logged with
// the request context and reported with a generic message.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeJSON(w, status, dto.NewAPIError(status, apperr.PublicMessage(err), apperr.FieldList(err)))
}

// Status writes an error envelope for a status that has no apperr kind,
// such as 429.
func Status(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, dto.NewAPIError(status, message, nil))
}
