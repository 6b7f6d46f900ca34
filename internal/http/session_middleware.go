package http

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/verdantbox/admin-api/internal/models"
	"github.com/verdantbox/admin-api/internal/security"
)

// Paths browsers are redirected to when a request lacks the session
// state it needs.
const (
	loginPath  = "/admin/login"
	verifyPath = "/admin/verify-2fa"
)

// readClaims decodes the first valid session token found in the session
// or temp cookie. Any decode failure is treated as no token at all.
func readClaims(c *gin.Context, secret string) *security.SessionClaims {
	for _, name := range []string{security.SessionCookieName, security.TempSessionCookieName} {
		token, errCookie := c.Cookie(name)
		if errCookie != nil || strings.TrimSpace(token) == "" {
			continue
		}
		claims, errParse := security.ParseSessionToken(secret, token)
		if errParse != nil {
			continue
		}
		return claims
	}
	return nil
}

// setUserContext exposes the authenticated identity to handlers.
func setUserContext(c *gin.Context, claims *security.SessionClaims) {
	c.Set("userID", claims.UserID)
	c.Set("userEmail", claims.Email)
	c.Set("userRole", claims.Role)
	c.Set("twoFactorVerified", claims.TwoFactorVerified)
}

// UserIDFromContext returns the authenticated admin user ID.
func UserIDFromContext(c *gin.Context) (uint64, bool) {
	value, ok := c.Get("userID")
	if !ok {
		return 0, false
	}
	id, ok := value.(uint64)
	return id, ok
}

// RequireSession gates fully-protected routes. It fails closed: a
// missing, expired or tampered cookie denies the request, and a pending
// token is bounced to the second-factor prompt with the original path
// preserved.
func RequireSession(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := readClaims(c, secret)
		if claims == nil {
			denyUnauthenticated(c)
			return
		}
		if !claims.TwoFactorVerified {
			denyPending(c)
			return
		}
		setUserContext(c, claims)
		c.Next()
	}
}

// RequirePendingSession gates routes reachable mid-login: the
// second-factor verify endpoints and 2FA enrollment. Either token kind
// is accepted; anything else is denied.
func RequirePendingSession(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := readClaims(c, secret)
		if claims == nil {
			denyUnauthenticated(c)
			return
		}
		setUserContext(c, claims)
		c.Next()
	}
}

// RequireRole restricts a route to one admin role.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		value, ok := c.Get("userRole")
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "permission denied"})
			return
		}
		current, _ := value.(string)
		if current != role && current != models.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "permission denied"})
			return
		}
		c.Next()
	}
}

// denyUnauthenticated redirects browser navigations to the login page
// and answers API calls with 401.
func denyUnauthenticated(c *gin.Context) {
	if wantsHTML(c) {
		c.Redirect(http.StatusFound, loginPath+"?next="+url.QueryEscape(c.Request.URL.RequestURI()))
		c.Abort()
		return
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
}

// denyPending redirects a pending session to the second-factor prompt.
func denyPending(c *gin.Context) {
	if wantsHTML(c) {
		c.Redirect(http.StatusFound, verifyPath+"?next="+url.QueryEscape(c.Request.URL.RequestURI()))
		c.Abort()
		return
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "second factor required"})
}

// wantsHTML reports whether the request is a browser navigation.
func wantsHTML(c *gin.Context) bool {
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		return false
	}
	accept := c.GetHeader("Accept")
	return strings.Contains(accept, "text/html")
}
