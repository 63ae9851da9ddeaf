package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/klinikos/clinic-ai-platform/internal/tenancy"
)

// TenantClaims is the JWT payload issued by the dashboard auth layer. The
// clinic id is the tenant boundary; every request under TenantJWT runs
// scoped to exactly one clinic.
type TenantClaims struct {
	ClinicID string `json:"clinic_id"`
	jwt.RegisteredClaims
}

// TenantJWT enforces an HMAC-signed tenant JWT and stores the clinic id in
// the request context.
func TenantJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				http.Error(w, "tenant auth disabled", http.StatusUnauthorized)
				return
			}
			auth := r.Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			tokenString := strings.TrimPrefix(auth, "Bearer ")
			claims := &TenantClaims{}
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
			if strings.TrimSpace(claims.ClinicID) == "" {
				http.Error(w, "token has no clinic", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(tenancy.WithClinicID(r.Context(), claims.ClinicID)))
		})
	}
}
