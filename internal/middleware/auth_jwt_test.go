package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSignAndVerifyJWT(t *testing.T) {
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	token, err := SignJWT("secret", TokenClaims{Sub: "user-1", Locale: "id", Exp: now.Add(time.Hour).Unix()})
	if err != nil {
		t.Fatalf("SignJWT error: %v", err)
	}

	claims, err := VerifyJWT("secret", token, now)
	if err != nil {
		t.Fatalf("VerifyJWT error: %v", err)
	}
	if claims.Sub != "user-1" || claims.Locale != "id" {
		t.Fatalf("unexpected claims: %#v", claims)
	}

	if _, err := VerifyJWT("other", token, now); err == nil {
		t.Fatal("expected signature error")
	}
	if _, err := VerifyJWT("secret", token, now.Add(2*time.Hour)); err != errTokenExpired {
		t.Fatalf("expected expiry error, got %v", err)
	}
	if _, err := VerifyJWT("secret", "a.b", now); err == nil {
		t.Fatal("expected malformed token error")
	}
}

func TestOptionalAuth(t *testing.T) {
	token, err := SignJWT("secret", TokenClaims{Sub: "user-1", Locale: "id"})
	if err != nil {
		t.Fatalf("SignJWT error: %v", err)
	}

	tests := []struct {
		name       string
		secret     string
		header     string
		wantStatus int
		wantUser   string
		wantLocale string
	}{
		{name: "anonymous", secret: "secret", wantStatus: http.StatusOK},
		{name: "valid token", secret: "secret", header: "Bearer " + token, wantStatus: http.StatusOK, wantUser: "user-1", wantLocale: "id"},
		{name: "bad scheme", secret: "secret", header: "Basic abc", wantStatus: http.StatusUnauthorized},
		{name: "bad token", secret: "secret", header: "Bearer nope", wantStatus: http.StatusUnauthorized},
		{name: "auth disabled ignores header", secret: "", header: "Bearer nope", wantStatus: http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var gotUser, gotLocale string
			handler := OptionalAuth(tc.secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUser = UserIDFromContext(r.Context())
				gotLocale = r.Header.Get("X-Locale")
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if gotUser != tc.wantUser || gotLocale != tc.wantLocale {
				t.Fatalf("user/locale = %q/%q, want %q/%q", gotUser, gotLocale, tc.wantUser, tc.wantLocale)
			}
		})
	}
}

func TestRequireUser(t *testing.T) {
	handler := RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(ContextWithUserID(req.Context(), "user-1"))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated status = %d", rec.Code)
	}
}
