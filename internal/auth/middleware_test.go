package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/ilindan-dev/notifyhub/internal/config"
	"github.com/rs/zerolog"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeBlocklist struct {
	revoked map[string]bool
	err     error
}

func (b *fakeBlocklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if b.err != nil {
		return false, b.err
	}
	return b.revoked[jti], nil
}

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{PrimaryKey: "primary-secret", PreviousKey: "previous-secret", InternalToken: "internal-secret"}
}

func signToken(t *testing.T, key, userID, jti string) string {
	t.Helper()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserID: userID,
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func runWithAuth(m *Middleware, req *http.Request) (*httptest.ResponseRecorder, string) {
	rec := httptest.NewRecorder()
	r := gin.New()
	var resolvedUserID string
	r.GET("/x", m.Authenticate(), func(c *gin.Context) {
		resolvedUserID, _ = UserID(c)
		c.Status(http.StatusOK)
	})
	r.ServeHTTP(rec, req)
	return rec, resolvedUserID
}

func TestAuthenticateAcceptsPrimaryKeyToken(t *testing.T) {
	m := New(testAuthConfig(), &fakeBlocklist{}, testLogger())
	token := signToken(t, "primary-secret", "user-1", "jti-1")
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	rec, userID := runWithAuth(m, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if userID != "user-1" {
		t.Errorf("resolved user ID = %q, want user-1", userID)
	}
}

func TestAuthenticateAcceptsPreviousKeyToken(t *testing.T) {
	m := New(testAuthConfig(), &fakeBlocklist{}, testLogger())
	token := signToken(t, "previous-secret", "user-2", "jti-2")
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	rec, userID := runWithAuth(m, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if userID != "user-2" {
		t.Errorf("resolved user ID = %q, want user-2", userID)
	}
}

func TestAuthenticateRejectsTokenSignedWithUnknownKey(t *testing.T) {
	m := New(testAuthConfig(), &fakeBlocklist{}, testLogger())
	token := signToken(t, "attacker-key", "user-3", "jti-3")
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	rec, _ := runWithAuth(m, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestAuthenticateRejectsMissingHeader(t *testing.T) {
	m := New(testAuthConfig(), &fakeBlocklist{}, testLogger())
	req := httptest.NewRequest(http.MethodGet, "/x", nil)

	rec, _ := runWithAuth(m, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestAuthenticateRejectsRevokedCredential(t *testing.T) {
	m := New(testAuthConfig(), &fakeBlocklist{revoked: map[string]bool{"jti-4": true}}, testLogger())
	token := signToken(t, "primary-secret", "user-4", "jti-4")
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	rec, _ := runWithAuth(m, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 for a revoked credential", rec.Code)
	}
}

func TestRequireInternalServiceChecksHeader(t *testing.T) {
	m := New(testAuthConfig(), &fakeBlocklist{}, testLogger())
	r := gin.New()
	r.GET("/internal/x", m.RequireInternalService(), func(c *gin.Context) { c.Status(http.StatusOK) })

	reqOK := httptest.NewRequest(http.MethodGet, "/internal/x", nil)
	reqOK.Header.Set("X-Internal-Token", "internal-secret")
	recOK := httptest.NewRecorder()
	r.ServeHTTP(recOK, reqOK)
	if recOK.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 with correct internal token", recOK.Code)
	}

	reqBad := httptest.NewRequest(http.MethodGet, "/internal/x", nil)
	recBad := httptest.NewRecorder()
	r.ServeHTTP(recBad, reqBad)
	if recBad.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403 without internal token", recBad.Code)
	}
}
