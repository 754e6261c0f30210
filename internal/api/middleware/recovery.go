package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/brandlens/brandlens/internal/api/response"
)

// Recovery turns handler panics into 500 responses instead of killing the
// connection, logging the stack for the operator.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			slog.Error("panic recovered",
				"error", rec,
				"method", r.Method,
				"path", r.URL.Path,
				"stack", string(debug.Stack()),
			)
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "An unexpected error occurred", nil)
		}()
		next.ServeHTTP(w, r)
	})
}
