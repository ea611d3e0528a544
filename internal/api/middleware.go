package api

import (
	"context"
	"net/http"
	"strings"

	"pidrive-backend/internal/auth"
	"pidrive-backend/internal/fault"
)

type contextKey string

const claimsKey contextKey = "claims"

// JWTMiddleware validates the bearer token and stashes its claims in
// the request context for the handlers behind it.
func JWTMiddleware(jwtManager *auth.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, fault.New(fault.CodeAuthentication, "missing authorization header"))
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				writeError(w, fault.New(fault.CodeAuthentication, "invalid authorization header"))
				return
			}

			claims, err := jwtManager.Validate(parts[1])
			if err != nil {
				writeError(w, fault.New(fault.CodeAuthentication, "invalid token"))
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFrom returns the validated claims, nil outside the JWT group.
func ClaimsFrom(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}
