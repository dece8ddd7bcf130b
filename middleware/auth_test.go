package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func sign(t *testing.T, secret string, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "editor-1",
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Name: "Editor",
	})
	s, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("SignedString() failed: %v", err)
	}
	return s
}

func protected() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFrom(r.Context())
		if !ok {
			http.Error(w, "no claims", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(claims.Subject))
	})
}

func TestAuthJWT_ValidToken(t *testing.T) {
	h := AuthJWT(testSecret)(protected())

	req := httptest.NewRequest(http.MethodPost, "/api/assets", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+sign(t, testSecret, time.Now().Add(time.Hour)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "editor-1" {
		t.Errorf("got %d %q", rec.Code, rec.Body.String())
	}
}

func TestAuthJWT_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"missing", "", "Authorization header is required"},
		{"wrong scheme", "Basic abc", "Bearer {token}"},
		{"wrong secret", "Bearer " + sign(t, "other", time.Now().Add(time.Hour)), "Invalid token"},
		{"expired", "Bearer " + sign(t, testSecret, time.Now().Add(-time.Hour)), "Invalid token"},
		{"garbage", "Bearer not.a.token", "Invalid token"},
	}

	h := AuthJWT(testSecret)(protected())
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/assets", http.NoBody)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tc.want) {
				t.Errorf("body = %q, want %q", rec.Body.String(), tc.want)
			}
		})
	}
}

func TestAuthJWT_OpenWithoutSecret(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := AuthJWT("")(next)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/assets", http.NoBody))
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
}
