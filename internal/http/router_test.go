package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/verdantbox/admin-api/internal/audit"
	"github.com/verdantbox/admin-api/internal/config"
	"github.com/verdantbox/admin-api/internal/lockout"
	"github.com/verdantbox/admin-api/internal/models"
	"github.com/verdantbox/admin-api/internal/security"
	"github.com/verdantbox/admin-api/internal/session"
	"github.com/verdantbox/admin-api/internal/store"
	"gorm.io/gorm"
)

func setupRouterTest(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:router_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := conn.AutoMigrate(&models.AdminUser{}, &models.WebAuthnCredential{}, &models.BackupCode{}, &models.AuditLog{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	recorder := audit.NewRecorder(conn)
	svc := session.NewService(session.Options{
		DB:      conn,
		Secret:  "router-test-secret",
		Store:   store.NewMemoryStore(),
		Lockout: lockout.NewMemoryLimiter(),
		Audit:   recorder,
	})

	cfg := config.AppConfig{
		Env:                "development",
		LoginRatePerMinute: 600,
		LoginRateBurst:     100,
	}
	return NewRouter(cfg, conn, svc, recorder), conn
}

func seedRouterAdmin(t *testing.T, conn *gorm.DB, email, password, role string) models.AdminUser {
	t.Helper()
	hash, err := security.HashPassword(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	user := models.AdminUser{
		Email:           email,
		PasswordHash:    hash,
		Role:            role,
		Active:          true,
		TwoFactorMethod: models.TwoFactorNone,
	}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	return user
}

func TestHealthEndpointIsPublic(t *testing.T) {
	router, _ := setupRouterTest(t)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	router, _ := setupRouterTest(t)

	for _, path := range []string{"/api/admin/me", "/api/admin/2fa/status", "/api/admin/users", "/api/admin/audit"} {
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, path, nil))
		if recorder.Code != http.StatusUnauthorized {
			t.Fatalf("%s: status = %d, want 401", path, recorder.Code)
		}
	}
}

func TestLoginThenAccessProtectedRoute(t *testing.T) {
	router, conn := setupRouterTest(t)
	seedRouterAdmin(t, conn, "ops@verdantbox.test", "greenhouse-gravel", models.RoleAdmin)

	body, _ := json.Marshal(gin.H{"email": "ops@verdantbox.test", "password": "greenhouse-gravel"})
	loginReq := httptest.NewRequest(http.MethodPost, "/api/admin/login", bytes.NewReader(body))
	loginReq.Header.Set("Content-Type", "application/json")
	loginRecorder := httptest.NewRecorder()
	router.ServeHTTP(loginRecorder, loginReq)
	if loginRecorder.Code != http.StatusOK {
		t.Fatalf("login: status = %d body=%s", loginRecorder.Code, loginRecorder.Body.String())
	}

	var sessionCookie *http.Cookie
	for _, cookie := range loginRecorder.Result().Cookies() {
		if cookie.Name == security.SessionCookieName {
			sessionCookie = cookie
		}
	}
	if sessionCookie == nil {
		t.Fatal("no session cookie issued")
	}

	meReq := httptest.NewRequest(http.MethodGet, "/api/admin/me", nil)
	meReq.AddCookie(sessionCookie)
	meRecorder := httptest.NewRecorder()
	router.ServeHTTP(meRecorder, meReq)
	if meRecorder.Code != http.StatusOK {
		t.Fatalf("me: status = %d body=%s", meRecorder.Code, meRecorder.Body.String())
	}

	var response struct {
		User struct {
			Email string `json:"email"`
		} `json:"user"`
	}
	if errDecode := json.Unmarshal(meRecorder.Body.Bytes(), &response); errDecode != nil {
		t.Fatalf("decode: %v", errDecode)
	}
	if response.User.Email != "ops@verdantbox.test" {
		t.Fatalf("email = %q", response.User.Email)
	}
}

func TestEditorCannotReachAdminOnlyRoutes(t *testing.T) {
	router, conn := setupRouterTest(t)
	user := seedRouterAdmin(t, conn, "editor@verdantbox.test", "mossy-substrate", models.RoleEditor)

	token, err := security.IssueSessionToken("router-test-secret", user.ID, user.Email, user.Role)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	for _, path := range []string{"/api/admin/users", "/api/admin/audit"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.AddCookie(&http.Cookie{Name: security.SessionCookieName, Value: token})
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, req)
		if recorder.Code != http.StatusForbidden {
			t.Fatalf("%s: status = %d, want 403", path, recorder.Code)
		}
	}

	// Non-restricted routes still work for editors.
	req := httptest.NewRequest(http.MethodGet, "/api/admin/me", nil)
	req.AddCookie(&http.Cookie{Name: security.SessionCookieName, Value: token})
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("me as editor: status = %d", recorder.Code)
	}
}

func TestPendingSessionCannotReplaceConfiguredFactor(t *testing.T) {
	router, conn := setupRouterTest(t)

	hash, errHash := security.HashPassword("greenhouse-gravel")
	if errHash != nil {
		t.Fatalf("hash: %v", errHash)
	}
	user := models.AdminUser{
		Email:            "ops@verdantbox.test",
		PasswordHash:     hash,
		Role:             models.RoleAdmin,
		Active:           true,
		TwoFactorEnabled: true,
		TwoFactorMethod:  models.TwoFactorTOTP,
		TOTPSecret:       "JBSWY3DPEHPK3PXP",
	}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}

	// The password alone only buys a temp cookie.
	body, _ := json.Marshal(gin.H{"email": "ops@verdantbox.test", "password": "greenhouse-gravel"})
	loginReq := httptest.NewRequest(http.MethodPost, "/api/admin/login", bytes.NewReader(body))
	loginReq.Header.Set("Content-Type", "application/json")
	loginRecorder := httptest.NewRecorder()
	router.ServeHTTP(loginRecorder, loginReq)
	if loginRecorder.Code != http.StatusOK {
		t.Fatalf("login: status = %d body=%s", loginRecorder.Code, loginRecorder.Body.String())
	}
	var tempCookie *http.Cookie
	for _, cookie := range loginRecorder.Result().Cookies() {
		if cookie.Name == security.TempSessionCookieName && cookie.Value != "" {
			tempCookie = cookie
		}
		if cookie.Name == security.SessionCookieName && cookie.Value != "" {
			t.Fatal("full session cookie issued before second factor")
		}
	}
	if tempCookie == nil {
		t.Fatal("no temp session cookie issued")
	}

	// Enrollment endpoints must refuse a pending session once a factor
	// is configured; otherwise the secret could be swapped for a fresh
	// one and verified with it.
	attempts := []struct {
		path string
		body string
	}{
		{"/api/admin/2fa/setup", `{"method":"totp"}`},
		{"/api/admin/2fa/totp/confirm", `{"code":"000000"}`},
		{"/api/admin/webauthn/register/verify", `{}`},
	}
	for _, attempt := range attempts {
		req := httptest.NewRequest(http.MethodPost, attempt.path, bytes.NewBufferString(attempt.body))
		req.Header.Set("Content-Type", "application/json")
		req.AddCookie(tempCookie)
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, req)
		if recorder.Code != http.StatusForbidden {
			t.Fatalf("%s: status = %d, want 403", attempt.path, recorder.Code)
		}
	}

	var reloaded models.AdminUser
	if errFind := conn.First(&reloaded, user.ID).Error; errFind != nil {
		t.Fatalf("reload user: %v", errFind)
	}
	if reloaded.TOTPSecret != "JBSWY3DPEHPK3PXP" {
		t.Fatalf("totp secret changed to %q", reloaded.TOTPSecret)
	}
}

func TestPendingSessionMayEnrollWhenNoFactorConfigured(t *testing.T) {
	router, conn := setupRouterTest(t)
	user := seedRouterAdmin(t, conn, "new@verdantbox.test", "mossy-substrate", models.RoleAdmin)

	token, err := security.IssuePendingToken("router-test-secret", user.ID, user.Email, user.Role)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/admin/2fa/setup", bytes.NewBufferString(`{"method":"totp"}`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: security.TempSessionCookieName, Value: token})
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("setup: status = %d body=%s", recorder.Code, recorder.Body.String())
	}
}

func TestVerifiedSessionMayReenrollSecondFactor(t *testing.T) {
	router, conn := setupRouterTest(t)
	user := seedRouterAdmin(t, conn, "rotate@verdantbox.test", "mossy-substrate", models.RoleAdmin)
	if errUpdate := conn.Model(&models.AdminUser{}).Where("id = ?", user.ID).
		Updates(map[string]any{
			"two_factor_enabled": true,
			"two_factor_method":  models.TwoFactorTOTP,
			"totp_secret":        "JBSWY3DPEHPK3PXP",
		}).Error; errUpdate != nil {
		t.Fatalf("update user: %v", errUpdate)
	}

	token, err := security.IssueSessionToken("router-test-secret", user.ID, user.Email, user.Role)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/admin/2fa/setup", bytes.NewBufferString(`{"method":"totp"}`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: security.TempSessionCookieName, Value: token})
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("setup: status = %d body=%s", recorder.Code, recorder.Body.String())
	}
}

func TestRequestIDHeaderOnResponses(t *testing.T) {
	router, _ := setupRouterTest(t)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if recorder.Header().Get("X-Request-ID") == "" {
		t.Fatal("no request id header")
	}

	reused := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "caller-supplied-id")
	router.ServeHTTP(reused, req)
	if got := reused.Header().Get("X-Request-ID"); got != "caller-supplied-id" {
		t.Fatalf("request id = %q, want caller's id preserved", got)
	}
}
