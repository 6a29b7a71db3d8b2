package middleware

import (
	"context"
	"net/http"
	"strings"
)

type environmentContextKey struct{}

const defaultEnvironmentLabel = "Development"

// Environment attaches the deployment environment label to the request context
// so pages can badge non-production deployments. Empty values default to
// "Development".
func Environment(value string) func(http.Handler) http.Handler {
	label := EnvironmentLabel(value)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), environmentContextKey{}, label)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// EnvironmentLabel turns a config value such as "staging" into a display label.
func EnvironmentLabel(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return defaultEnvironmentLabel
	}
	switch strings.ToLower(value) {
	case "dev", "development", "local":
		return defaultEnvironmentLabel
	case "stg", "staging":
		return "Staging"
	case "prod", "production":
		return "Production"
	}
	return strings.ToUpper(value[:1]) + value[1:]
}

// EnvironmentFromContext returns the environment label registered for the
// current request, defaulting to "Development" when unavailable.
func EnvironmentFromContext(ctx context.Context) string {
	if ctx == nil {
		return defaultEnvironmentLabel
	}
	if value, ok := ctx.Value(environmentContextKey{}).(string); ok && strings.TrimSpace(value) != "" {
		return value
	}
	return defaultEnvironmentLabel
}

// IsProduction reports whether the request is served by a production deployment.
func IsProduction(ctx context.Context) bool {
	return EnvironmentFromContext(ctx) == "Production"
}
