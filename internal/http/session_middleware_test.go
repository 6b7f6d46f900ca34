package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/verdantbox/admin-api/internal/models"
	"github.com/verdantbox/admin-api/internal/security"
)

const testSecret = "middleware-test-secret"

func runGatedRequest(t *testing.T, middleware gin.HandlerFunc, configure func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware)
	router.GET("/*path", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/admin/me", nil)
	if configure != nil {
		configure(req)
	}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func TestRequireSessionDeniesWithoutCookie(t *testing.T) {
	recorder := runGatedRequest(t, RequireSession(testSecret), nil)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", recorder.Code)
	}
}

func TestRequireSessionDeniesTamperedToken(t *testing.T) {
	token, err := security.IssueSessionToken("some-other-secret", 1, "ops@verdantbox.test", models.RoleAdmin)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	recorder := runGatedRequest(t, RequireSession(testSecret), func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: security.SessionCookieName, Value: token})
	})
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", recorder.Code)
	}
}

func TestRequireSessionDeniesPendingToken(t *testing.T) {
	token, err := security.IssuePendingToken(testSecret, 1, "ops@verdantbox.test", models.RoleAdmin)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	recorder := runGatedRequest(t, RequireSession(testSecret), func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: security.TempSessionCookieName, Value: token})
	})
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", recorder.Code)
	}
}

func TestRequireSessionAcceptsVerifiedToken(t *testing.T) {
	token, err := security.IssueSessionToken(testSecret, 1, "ops@verdantbox.test", models.RoleAdmin)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	recorder := runGatedRequest(t, RequireSession(testSecret), func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: security.SessionCookieName, Value: token})
	})
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", recorder.Code)
	}
}

func TestRequireSessionRedirectsBrowserToLogin(t *testing.T) {
	recorder := runGatedRequest(t, RequireSession(testSecret), func(req *http.Request) {
		req.Header.Set("Accept", "text/html,application/xhtml+xml")
	})
	if recorder.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", recorder.Code)
	}
	location := recorder.Header().Get("Location")
	if location != loginPath+"?next=%2Fapi%2Fadmin%2Fme" {
		t.Fatalf("location = %q", location)
	}
}

func TestRequireSessionRedirectsPendingBrowserToVerify(t *testing.T) {
	token, err := security.IssuePendingToken(testSecret, 1, "ops@verdantbox.test", models.RoleAdmin)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	recorder := runGatedRequest(t, RequireSession(testSecret), func(req *http.Request) {
		req.Header.Set("Accept", "text/html")
		req.AddCookie(&http.Cookie{Name: security.TempSessionCookieName, Value: token})
	})
	if recorder.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", recorder.Code)
	}
	location := recorder.Header().Get("Location")
	if location != verifyPath+"?next=%2Fapi%2Fadmin%2Fme" {
		t.Fatalf("location = %q", location)
	}
}

func TestRequirePendingSessionAcceptsEitherTokenKind(t *testing.T) {
	pending, err := security.IssuePendingToken(testSecret, 1, "ops@verdantbox.test", models.RoleAdmin)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	recorder := runGatedRequest(t, RequirePendingSession(testSecret), func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: security.TempSessionCookieName, Value: pending})
	})
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("pending token: status = %d, want 204", recorder.Code)
	}

	verified, err := security.IssueSessionToken(testSecret, 1, "ops@verdantbox.test", models.RoleAdmin)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	recorder = runGatedRequest(t, RequirePendingSession(testSecret), func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: security.SessionCookieName, Value: verified})
	})
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("verified token: status = %d, want 204", recorder.Code)
	}

	recorder = runGatedRequest(t, RequirePendingSession(testSecret), nil)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d, want 401", recorder.Code)
	}
}

func TestRequireRole(t *testing.T) {
	gin.SetMode(gin.TestMode)

	run := func(role string, required string) int {
		router := gin.New()
		router.Use(func(c *gin.Context) {
			c.Set("userRole", role)
		}, RequireRole(required))
		router.GET("/", func(c *gin.Context) {
			c.Status(http.StatusNoContent)
		})
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))
		return recorder.Code
	}

	if code := run(models.RoleEditor, models.RoleAdmin); code != http.StatusForbidden {
		t.Fatalf("editor on admin route: status = %d, want 403", code)
	}
	if code := run(models.RoleAdmin, models.RoleAdmin); code != http.StatusNoContent {
		t.Fatalf("admin on admin route: status = %d, want 204", code)
	}
	// Admin implies every other role.
	if code := run(models.RoleAdmin, models.RoleEditor); code != http.StatusNoContent {
		t.Fatalf("admin on editor route: status = %d, want 204", code)
	}
	if code := run(models.RoleEditor, models.RoleEditor); code != http.StatusNoContent {
		t.Fatalf("editor on editor route: status = %d, want 204", code)
	}
}
