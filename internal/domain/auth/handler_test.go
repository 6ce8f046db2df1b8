package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/qahwa/cafe-api/internal/middleware"
	"github.com/qahwa/cafe-api/internal/pkg/jwt"
)

func newAuthRouter(f *authFixture) *chi.Mux {
	h := NewHandler(f.svc)
	r := chi.NewRouter()
	r.Mount("/auth", h.Routes(middleware.Auth(jwt.NewService("secret", time.Minute, time.Hour))))
	return r
}

func doJSON(r http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAuthEndpoints(t *testing.T) {
	f := newAuthFixture()
	r := newAuthRouter(f)

	rec := doJSON(r, http.MethodPost, "/auth/register", "", `{"email":"sara@example.com","password":"password123","name":"Sara"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d body=%s", rec.Code, rec.Body.String())
	}
	var out struct {
		Data AuthResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}

	if rec := doJSON(r, http.MethodPost, "/auth/register", "", `{"email":"sara@example.com","password":"password123","name":"Sara"}`); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate register: expected 409, got %d", rec.Code)
	}
	if rec := doJSON(r, http.MethodPost, "/auth/register", "", `{"email":"bad","password":"short"}`); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid register: expected 422, got %d", rec.Code)
	}
	if rec := doJSON(r, http.MethodPost, "/auth/login", "", `{"email":"sara@example.com","password":"nope-nope"}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad login: expected 401, got %d", rec.Code)
	}
	if rec := doJSON(r, http.MethodGet, "/auth/me", out.Data.Tokens.AccessToken, ""); rec.Code != http.StatusOK {
		t.Fatalf("me: expected 200, got %d", rec.Code)
	}
	if rec := doJSON(r, http.MethodGet, "/auth/me", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("me without token: expected 401, got %d", rec.Code)
	}
	if rec := doJSON(r, http.MethodPost, "/auth/refresh", "", `{"refresh_token":"garbage"}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad refresh: expected 401, got %d", rec.Code)
	}
	if rec := doJSON(r, http.MethodDelete, "/auth/me", out.Data.Tokens.AccessToken, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete me: expected 204, got %d", rec.Code)
	}
	if rec := doJSON(r, http.MethodPost, "/auth/login", "", `{"email":"sara@example.com","password":"password123"}`); rec.Code != http.StatusForbidden {
		t.Fatalf("deactivated login: expected 403, got %d", rec.Code)
	}
}
