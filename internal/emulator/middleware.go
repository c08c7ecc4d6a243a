package emulator

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type contextKey string

const (
	contextKeyToken contextKey = "token"
)

// AuthMiddleware requires a bearer token and stores it in the request context.
// Per-base access is checked by the handlers once the base is known.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeJSONError(w, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED", "Missing Authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			writeJSONError(w, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED", "Invalid Authorization header format")
			return
		}

		ctx := context.WithValue(r.Context(), contextKeyToken, parts[1])
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func tokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(contextKeyToken).(string)
	return token
}

// ErrorDetail mirrors the error object the real store returns.
type ErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// writeJSONError writes a JSON error response.
func writeJSONError(w http.ResponseWriter, status int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error: ErrorDetail{Type: errType, Message: message},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
