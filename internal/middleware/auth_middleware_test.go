package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/arturkam25/intelplatform/internal/account"
	"github.com/arturkam25/intelplatform/internal/auth"
)

func newTestTokenService() *auth.TokenService {
	return auth.NewTokenService(auth.TokenServiceConfig{
		AccessSecret:       "test-access-secret-key-32-chars!",
		RefreshSecret:      "test-refresh-secret-key-32-char!",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 7 * 24 * time.Hour,
		Issuer:             "test-issuer",
	})
}

// testHandler records whether it ran and echoes the context identity.
func testHandler() (http.Handler, *bool) {
	called := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		accountID, ok := ExtractAccountID(r.Context())
		if !ok || accountID == "" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(accountID))
	})
	return handler, &called
}

func TestMissingAuthHeaderReturns401(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		path := "/" + rapid.StringMatching(`[a-z]{3,10}`).Draw(t, "path")
		method := rapid.SampledFrom([]string{"GET", "POST", "PUT", "DELETE"}).Draw(t, "method")

		m := NewAuthMiddleware(newTestTokenService())
		handler, called := testHandler()

		req := httptest.NewRequest(method, path, nil)
		rec := httptest.NewRecorder()
		m.Authenticate(handler).ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
		if *called {
			t.Error("handler must not run without credentials")
		}
		var resp ErrorResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp.Error.Code != "AUTH_TOKEN_MISSING" {
			t.Errorf("expected AUTH_TOKEN_MISSING, got %s", resp.Error.Code)
		}
	})
}

func TestMalformedAuthHeaderReturns401(t *testing.T) {
	cases := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "sometoken"},
		{"wrong scheme", "Basic dXNlcjpwYXNz"},
		{"empty token", "Bearer "},
		{"garbage token", "Bearer not.a.jwt"},
	}

	m := NewAuthMiddleware(newTestTokenService())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler, called := testHandler()
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			req.Header.Set("Authorization", tc.header)
			rec := httptest.NewRecorder()
			m.Authenticate(handler).ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", rec.Code)
			}
			if *called {
				t.Error("handler must not run")
			}
		})
	}
}

func TestValidTokenInjectsIdentity(t *testing.T) {
	svc := newTestTokenService()
	m := NewAuthMiddleware(svc)

	token, err := svc.GenerateAccessToken("acc-42", "alice", account.RoleUser)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	var gotUsername, gotRole string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUsername, _ = ExtractUsername(r.Context())
		gotRole, _ = ExtractRole(r.Context())
		accountID, _ := ExtractAccountID(r.Context())
		w.Write([]byte(accountID))
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	m.Authenticate(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "acc-42" {
		t.Errorf("expected account id acc-42, got %q", rec.Body.String())
	}
	if gotUsername != "alice" {
		t.Errorf("expected username alice, got %q", gotUsername)
	}
	if gotRole != string(account.RoleUser) {
		t.Errorf("expected role user, got %q", gotRole)
	}
}

func TestExpiredTokenReturns401(t *testing.T) {
	expired := auth.NewTokenService(auth.TokenServiceConfig{
		AccessSecret:       "test-access-secret-key-32-chars!",
		RefreshSecret:      "test-refresh-secret-key-32-char!",
		AccessTokenExpiry:  -time.Minute,
		RefreshTokenExpiry: time.Hour,
		Issuer:             "test-issuer",
	})
	m := NewAuthMiddleware(newTestTokenService())

	token, err := expired.GenerateAccessToken("acc-1", "alice", account.RoleUser)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	handler, called := testHandler()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	m.Authenticate(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
	if *called {
		t.Error("handler must not run with an expired token")
	}
}

func TestRequireAdmin(t *testing.T) {
	svc := newTestTokenService()
	m := NewAuthMiddleware(svc)

	run := func(role account.Role) *httptest.ResponseRecorder {
		token, err := svc.GenerateAccessToken("acc-1", "root", role)
		if err != nil {
			t.Fatalf("generate token: %v", err)
		}
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		req := httptest.NewRequest(http.MethodGet, "/admin/accounts", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		m.Authenticate(m.RequireAdmin(handler)).ServeHTTP(rec, req)
		return rec
	}

	if rec := run(account.RoleAdmin); rec.Code != http.StatusOK {
		t.Errorf("admin should pass, got %d", rec.Code)
	}
	if rec := run(account.RoleUser); rec.Code != http.StatusForbidden {
		t.Errorf("user should be rejected, got %d", rec.Code)
	}
}
