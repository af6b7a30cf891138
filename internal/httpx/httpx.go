// Package httpx holds the response envelope and middleware shared by
// every route of the API.
package httpx

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Envelope is the uniform response body. Domain-level failures travel as
// success=false with HTTP 200; only malformed path parameters map to 400.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// WriteData answers success=true with a payload.
func WriteData(w http.ResponseWriter, logger *slog.Logger, message string, data any) {
	write(w, logger, http.StatusOK, Envelope{Success: true, Message: message, Data: data})
}

// WriteFailure answers a domain failure: success=false, still HTTP 200.
func WriteFailure(w http.ResponseWriter, logger *slog.Logger, message string) {
	write(w, logger, http.StatusOK, Envelope{Success: false, Message: message})
}

// WriteBadRequest answers a malformed path or body with HTTP 400.
func WriteBadRequest(w http.ResponseWriter, logger *slog.Logger, message string) {
	write(w, logger, http.StatusBadRequest, Envelope{Success: false, Message: message})
}

func write(w http.ResponseWriter, logger *slog.Logger, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

// CORS allows the configured browser origins to call the API with GET
// and POST, mirroring how the public portal consumes it.
func CORS(allowedOrigins []string, next http.Handler) http.Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && allowed[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
