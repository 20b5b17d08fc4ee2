//go:build ignore

// Generates a bearer token for the admin API.
// Run with: go run scripts/generate-admin-jwt.go
//
// The secret and issuer must match auth.admin_jwt_secret and
// auth.admin_jwt_issuer in the server config.

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func main() {
	secret := os.Getenv("ADMIN_JWT_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "ADMIN_JWT_SECRET is required")
		os.Exit(1)
	}

	issuer := os.Getenv("ADMIN_JWT_ISSUER")
	if issuer == "" {
		issuer = "points-api"
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": issuer,
		"sub": "admin",
		"iat": now.Unix(),
		"exp": now.Add(24 * time.Hour).Unix(),
	})

	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		fmt.Fprintf(os.Stderr, "signing token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(signed)
	fmt.Fprintln(os.Stderr, "\nUse with: curl -H \"Authorization: Bearer <token>\" ...")
}
