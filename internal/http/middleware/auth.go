package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const clinicianClaimsKey contextKey = "clinicianClaims"

// Clinician roles carried in the JWT role claim.
const (
	RoleDoctor = "doctor"
	RoleNurse  = "nurse"
)

// ClinicianClaims are the claims issued to workbench users.
type ClinicianClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// ClinicianJWT enforces a simple HMAC-signed JWT carrying a clinician
// role claim.
func ClinicianJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				http.Error(w, "clinician auth disabled", http.StatusUnauthorized)
				return
			}
			auth := r.Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			tokenString := strings.TrimPrefix(auth, "Bearer ")
			claims := &ClinicianClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), clinicianClaimsKey, *claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole allows only the listed roles through. It must run after
// ClinicianJWT.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClinicianClaimsFromContext(r.Context())
			if !ok {
				http.Error(w, "missing clinician claims", http.StatusUnauthorized)
				return
			}
			if _, ok := allowed[claims.Role]; !ok {
				http.Error(w, "insufficient role", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClinicianClaimsFromContext returns clinician JWT claims if present.
func ClinicianClaimsFromContext(ctx context.Context) (ClinicianClaims, bool) {
	claims, ok := ctx.Value(clinicianClaimsKey).(ClinicianClaims)
	return claims, ok
}
