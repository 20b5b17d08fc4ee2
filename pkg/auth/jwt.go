// Package auth provides wallet address helpers and the admin JWT middleware.
package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// AdminValidator validates HS256 bearer tokens on administrative routes.
type AdminValidator struct {
	secret []byte
	issuer string
	logger *zap.Logger
}

// NewAdminValidator creates a validator for the admin boundary. An empty
// secret disables authentication; testnet deployments run open by default.
func NewAdminValidator(secret, issuer string, logger *zap.Logger) *AdminValidator {
	return &AdminValidator{secret: []byte(secret), issuer: issuer, logger: logger}
}

// Enabled reports whether admin authentication is configured.
func (v *AdminValidator) Enabled() bool {
	return len(v.secret) > 0
}

// ValidateToken parses and validates a bearer token string.
func (v *AdminValidator) ValidateToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid claims type")
	}

	if v.issuer != "" {
		iss, ok := claims["iss"].(string)
		if !ok || iss != v.issuer {
			return nil, fmt.Errorf("invalid issuer")
		}
	}

	return claims, nil
}

// Middleware guards a route subtree with bearer-token validation. When no
// secret is configured the middleware is a passthrough.
func (v *AdminValidator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !v.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		tokenString := strings.TrimPrefix(header, "Bearer ")
		if tokenString == "" || tokenString == header {
			http.Error(w, `{"success":false,"message":"missing bearer token"}`, http.StatusUnauthorized)
			return
		}

		if _, err := v.ValidateToken(tokenString); err != nil {
			v.logger.Warn("Rejected admin request", zap.Error(err))
			http.Error(w, `{"success":false,"message":"invalid token"}`, http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
