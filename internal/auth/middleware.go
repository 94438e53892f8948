package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/visionfy/visionfy/internal/api"
)

type claimsKey struct{}

// Middleware rejects requests without a valid bearer access token. The
// claims it stores carry the user id every limiter keys on.
func Middleware(svc *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				api.HandleError(w, api.ErrUnauthorized)
				return
			}

			claims, err := svc.ValidateAccessToken(token)
			if err != nil {
				api.HandleError(w, api.ErrInvalidToken)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserClaims(r.Context(), claims)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func WithUserClaims(ctx context.Context, claims *AccessClaims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// GetUserClaims returns nil outside an authenticated request.
func GetUserClaims(ctx context.Context) *AccessClaims {
	claims, _ := ctx.Value(claimsKey{}).(*AccessClaims)
	return claims
}
