package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/volapay/remit-service/internal/domain"
)

const testJWTSecret = "test-secret"

func signToken(t *testing.T, secret string, userID uuid.UUID, role string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":  userID.String(),
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return signed
}

func authedRequest(t *testing.T, token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/transfers/abc", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestAuthMiddleware_ValidTokenSetsIdentity(t *testing.T) {
	userID := uuid.New()
	var gotID uuid.UUID
	var gotRole domain.Role
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, _ = GetUserID(r.Context())
		gotRole, _ = GetRole(r.Context())
	})

	handler := AuthMiddleware(testJWTSecret, nil)(next)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, signToken(t, testJWTSecret, userID, "mg_team")))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotID != userID {
		t.Errorf("expected user id %s in context, got %s", userID, gotID)
	}
	if gotRole != domain.RoleMGTeam {
		t.Errorf("expected mg_team role, got %s", gotRole)
	}
}

func TestAuthMiddleware_MissingHeader(t *testing.T) {
	handler := AuthMiddleware(testJWTSecret, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run without credentials")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, ""))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthMiddleware_WrongSecret(t *testing.T) {
	handler := AuthMiddleware(testJWTSecret, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run with a forged token")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, signToken(t, "other-secret", uuid.New(), "client")))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireRole_Enforced(t *testing.T) {
	userID := uuid.New()
	allowed := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { allowed = true })

	chain := AuthMiddleware(testJWTSecret, nil)(RequireRole(nil, domain.RoleAdmin)(next))

	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, authedRequest(t, signToken(t, testJWTSecret, userID, "client")))
	if rec.Code != http.StatusForbidden || allowed {
		t.Fatalf("expected 403 for client on admin route, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	chain.ServeHTTP(rec, authedRequest(t, signToken(t, testJWTSecret, userID, "admin")))
	if rec.Code != http.StatusOK || !allowed {
		t.Fatalf("expected admin to pass, got %d", rec.Code)
	}
}
