package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey string

const (
	ctxKeyActor ctxKey = "actor"
	ctxKeyRole  ctxKey = "role"
)

const RoleAdmin = "admin"

// Actor returns the authenticated subject stored by the auth middleware.
func Actor(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyActor).(string)
	return v
}

// Role returns the authenticated role, empty for anonymous requests.
func Role(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyRole).(string)
	return v
}

// Authenticate parses a Bearer token signed with the shared secret and puts
// the subject and role into the request context. Requests without a valid
// token are rejected.
func Authenticate(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				respondWithError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			claims := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				respondWithError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			sub, _ := claims["sub"].(string)
			if sub == "" {
				respondWithError(w, http.StatusUnauthorized, "token has no subject")
				return
			}
			role, _ := claims["role"].(string)

			ctx := context.WithValue(r.Context(), ctxKeyActor, sub)
			ctx = context.WithValue(ctx, ctxKeyRole, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin gates the admin surface on the role claim.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if Role(r.Context()) != RoleAdmin {
			respondWithError(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
