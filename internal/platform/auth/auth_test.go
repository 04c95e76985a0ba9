package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func testJWTConfig() JWTConfig {
	return JWTConfig{Secret: []byte("test-secret"), Issuer: "test", TokenTTL: time.Hour}
}

func TestHashPasswordRejectsShort(t *testing.T) {
	if _, err := HashPassword("short"); err == nil {
		t.Error("expected error for a short password")
	}
}

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("longenough")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPassword(hash, "longenough") {
		t.Error("correct password rejected")
	}
	if CheckPassword(hash, "wrong-password") {
		t.Error("wrong password accepted")
	}
}

func TestJWTMiddlewareRoundTrip(t *testing.T) {
	cfg := testJWTConfig()
	userID := uuid.New()

	token, err := IssueToken(cfg, userID, RoleDoctor, "tenant_a")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var got Identity
	handler := JWTMiddleware(cfg)(func(c echo.Context) error {
		got = IdentityFromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})
	if err := handler(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if got.UserID != userID || got.Role != RoleDoctor {
		t.Errorf("identity = %+v, want %s as doctor", got, userID)
	}
	if tenant, _ := c.Get("jwt_tenant_id").(string); tenant != "tenant_a" {
		t.Errorf("tenant = %q, want tenant_a", tenant)
	}
}

func TestJWTMiddlewareRejectsBadTokens(t *testing.T) {
	wrongKey := JWTConfig{Secret: []byte("other-secret"), Issuer: "test", TokenTTL: time.Hour}
	forged, err := IssueToken(wrongKey, uuid.New(), RoleDoctor, "")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"bad format", "Token abc"},
		{"garbage token", "Bearer not.a.jwt"},
		{"wrong key", "Bearer " + forged},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			c := e.NewContext(req, httptest.NewRecorder())

			handler := JWTMiddleware(testJWTConfig())(func(c echo.Context) error {
				return c.NoContent(http.StatusOK)
			})
			err := handler(c)
			he, ok := err.(*echo.HTTPError)
			if !ok || he.Code != http.StatusUnauthorized {
				t.Errorf("err = %v, want 401", err)
			}
		})
	}
}

func TestRequireRoleGate(t *testing.T) {
	run := func(role string, required ...string) error {
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithIdentity(req.Context(), uuid.New(), role))
		c := e.NewContext(req, httptest.NewRecorder())
		return RequireRole(required...)(func(c echo.Context) error {
			return c.NoContent(http.StatusOK)
		})(c)
	}

	if err := run(RoleDoctor, RoleDoctor); err != nil {
		t.Errorf("matching role refused: %v", err)
	}
	if err := run(RoleDoctor, RolePatient, RoleDoctor); err != nil {
		t.Errorf("role in permitted set refused: %v", err)
	}
	if err := run(RoleSuperAdmin, RolePatient); err != nil {
		t.Errorf("super admin refused: %v", err)
	}

	err := run(RolePatient, RoleDoctor)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusForbidden {
		t.Errorf("err = %v, want 403", err)
	}
}

func TestValidRole(t *testing.T) {
	if !ValidRole(RoleLabTech) {
		t.Error("lab_tech not recognized")
	}
	if ValidRole("astronaut") {
		t.Error("unknown role accepted")
	}
}

func TestResetTokensAreUnique(t *testing.T) {
	a, err := NewResetToken()
	if err != nil {
		t.Fatalf("NewResetToken: %v", err)
	}
	b, err := NewResetToken()
	if err != nil {
		t.Fatalf("NewResetToken: %v", err)
	}
	if a == b {
		t.Error("two reset tokens collided")
	}
	if len(a) != 64 {
		t.Errorf("token length = %d, want 64 hex chars", len(a))
	}
}
