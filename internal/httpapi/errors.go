package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"nlud/internal/app"
	"nlud/internal/bot"
	"nlud/internal/engine"
	"nlud/internal/queue"
	"nlud/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusFor maps well-known service errors to HTTP status codes.
func statusFor(err error) int {
	var he HTTPError
	switch {
	case app.IsBotNotMounted(err):
		return http.StatusNotFound
	case app.IsBotAlreadyMounted(err), engine.IsModelNotLoaded(err):
		return http.StatusConflict
	case app.IsUnsupportedLanguage(err):
		return http.StatusBadRequest
	case errors.Is(err, queue.ErrNotInitialized), bot.IsDependencyUnavailable(err):
		return http.StatusServiceUnavailable
	case errors.As(err, &he):
		return he.StatusCode()
	default:
		return http.StatusInternalServerError
	}
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logf(LevelError, "encode response: %v", err)
	}
}
