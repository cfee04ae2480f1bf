package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// StartClaims are the claims accepted on a /start bearer token. Callers are
// backend services, so only the registered claims are checked.
type StartClaims struct {
	jwt.RegisteredClaims
}

// withStartAuth requires a valid HMAC-signed bearer token when a secret is
// configured. Without one the endpoint stays open.
func (r *Router) withStartAuth(next http.HandlerFunc) http.HandlerFunc {
	if r.cfg.StartJWTSecret == "" {
		return next
	}
	return func(w http.ResponseWriter, req *http.Request) {
		authHeader := req.Header.Get("Authorization")
		if authHeader == "" {
			writeDetail(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		// Expect "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			writeDetail(w, http.StatusUnauthorized, "invalid authorization format")
			return
		}

		token, err := jwt.ParseWithClaims(parts[1], &StartClaims{}, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(r.cfg.StartJWTSecret), nil
		})
		if err != nil || !token.Valid {
			r.logger.Printf("httpapi: rejected /start token: %v", err)
			writeDetail(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next(w, req)
	}
}
