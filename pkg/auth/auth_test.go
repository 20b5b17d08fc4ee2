package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

func TestNormalizeAddress(t *testing.T) {
	got := NormalizeAddress("  0xABCDEF1234567890abcdef1234567890ABCDEF12 ")
	want := "0xabcdef1234567890abcdef1234567890abcdef12"
	if got != want {
		t.Errorf("NormalizeAddress() = %q, want %q", got, want)
	}
}

func TestValidateAddress(t *testing.T) {
	cases := []struct {
		address string
		want    bool
	}{
		{"0x1111111111111111111111111111111111111111", true},
		{"1111111111111111111111111111111111111111", false}, // missing prefix
		{"0x111111111111111111111111111111111111111", false}, // too short
		{"0xzzzz111111111111111111111111111111111111", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := ValidateAddress(tc.address); got != tc.want {
			t.Errorf("ValidateAddress(%q) = %v, want %v", tc.address, got, tc.want)
		}
	}
}

func signToken(t *testing.T, secret, issuer string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": "admin",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	if issuer != "" {
		claims["iss"] = issuer
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("SignedString() failed: %v", err)
	}
	return signed
}

func TestAdminValidator_Middleware(t *testing.T) {
	v := NewAdminValidator("test-secret", "points-api", zap.NewNop())
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := v.Middleware(next)

	cases := []struct {
		name       string
		authHeader string
		wantStatus int
	}{
		{"valid token", "Bearer " + signToken(t, "test-secret", "points-api"), http.StatusOK},
		{"wrong secret", "Bearer " + signToken(t, "other-secret", "points-api"), http.StatusUnauthorized},
		{"wrong issuer", "Bearer " + signToken(t, "test-secret", "someone-else"), http.StatusUnauthorized},
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/admin/reset", nil)
			if tc.authHeader != "" {
				req.Header.Set("Authorization", tc.authHeader)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
		})
	}
}

func TestAdminValidator_DisabledPassthrough(t *testing.T) {
	v := NewAdminValidator("", "", zap.NewNop())
	if v.Enabled() {
		t.Fatal("validator with empty secret should be disabled")
	}

	handler := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/admin/reset", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 (auth disabled)", rec.Code)
	}
}
