package middleware

import (
	"net/http"
	"slices"

	"github.com/go-chi/cors"
)

// DefaultDashboardOrigin is the local web dashboard.
const DefaultDashboardOrigin = "http://localhost:3000"

// CORS builds the options for the dashboard origins. The rate-limit headers
// are exposed so the browser can show remaining calls. Credentials are
// refused with a wildcard origin since browsers reject that combination.
func CORS(allowedOrigins []string) cors.Options {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{DefaultDashboardOrigin}
	}

	return cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", RequestIDHeader},
		ExposedHeaders:   []string{RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: !slices.Contains(allowedOrigins, "*"),
		MaxAge:           600,
	}
}
