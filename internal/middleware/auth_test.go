package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"urbanvision/internal/config"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestAuthMiddleware_DisabledWithoutPassword(t *testing.T) {
	handler := AuthMiddleware(&config.Config{}, okHandler)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/detect", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 without password, got %d", rec.Code)
	}
}

func TestAuthMiddleware_Enforced(t *testing.T) {
	handler := AuthMiddleware(&config.Config{Password: "secret"}, okHandler)

	tests := []struct {
		name     string
		path     string
		cookie   bool
		expected int
	}{
		{"login page is public", "/login", false, http.StatusOK},
		{"health is public", "/health", false, http.StatusOK},
		{"static assets are public", "/static/app.js", false, http.StatusOK},
		{"api without cookie", "/api/detect", false, http.StatusUnauthorized},
		{"page without cookie", "/", false, http.StatusSeeOther},
		{"page with cookie", "/", true, http.StatusOK},
		{"api with cookie", "/api/history", true, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.cookie {
				req.AddCookie(&http.Cookie{Name: "authenticated", Value: "true"})
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.expected {
				t.Errorf("Expected %d, got %d", tt.expected, rec.Code)
			}
		})
	}
}
