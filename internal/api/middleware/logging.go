package middleware

import (
	"log/slog"
	"net/http"

	"github.com/mcoot/sailsync/internal/middleware"
)

// Logging creates request logging middleware for the API. Every request is
// tagged with a request id first so the log line can carry it.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	logRequests := middleware.Logging(logger)
	return func(next http.Handler) http.Handler {
		return middleware.RequestID(logRequests(next))
	}
}
