package handler

import (
	"net/http"
	"strconv"

	"github.com/mcoot/sailsync/internal/api/apierr"
)

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	apierr.WriteError(w, err)
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return apierr.NewInvalidRequestError(message)
}

// queryLimit parses an optional limit query parameter within [1, upper]
func queryLimit(r *http.Request, def, upper int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > upper {
		return 0, NewInvalidRequestError("limit must be between 1 and " + strconv.Itoa(upper))
	}
	return limit, nil
}
