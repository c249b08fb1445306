package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hugh/projectcamp/internal/apperr"
)

// maxJSONBody bounds JSON request bodies; uploads are limited separately.
const maxJSONBody = 1 << 20

var errInvalidBody = apperr.NewInvalidArgument("Invalid request body")

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.NewInvalidArgument("Request body is required")
		}
		return errInvalidBody
	}
	return nil
}

// validated turns a Validate() result into a 422 error, or nil when empty.
func validated(fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	return apperr.Validation(fields)
}

func uuidParam(r *http.Request, name, label string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, apperr.NewInvalidArgument("Invalid " + label + " id")
	}
	return id, nil
}
