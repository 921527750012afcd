package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/cloo-solutions/knowbase/internal/api"
)

type contextKey string

const KeyNameKey contextKey = "api_key_name"

type AuthValidator interface {
	ValidateAPIKey(ctx context.Context, token string) (string, error)
}

func APIKeyAuth(validator AuthValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.Error(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			if !strings.HasPrefix(authHeader, "Bearer ") {
				api.Error(w, http.StatusUnauthorized, "invalid authorization format")
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")

			keyName, err := validator.ValidateAPIKey(r.Context(), token)
			if err != nil {
				api.Error(w, http.StatusUnauthorized, "invalid api key")
				return
			}

			ctx := context.WithValue(r.Context(), KeyNameKey, keyName)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetKeyName returns the name of the API key that authenticated the request,
// or "" for unauthenticated contexts.
func GetKeyName(ctx context.Context) string {
	name, _ := ctx.Value(KeyNameKey).(string)
	return name
}
