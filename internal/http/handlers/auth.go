package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/verdantbox/admin-api/internal/security"
	"github.com/verdantbox/admin-api/internal/session"
)

// AuthHandler handles login and logout.
type AuthHandler struct {
	svc    *session.Service
	secure bool
}

// NewAuthHandler constructs an AuthHandler. secure controls the Secure
// cookie attribute and is true in production.
func NewAuthHandler(svc *session.Service, secure bool) *AuthHandler {
	return &AuthHandler{svc: svc, secure: secure}
}

// loginRequest defines the request body for admin login.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates an admin. Depending on the account's 2FA state it
// sets either the verified session cookie or the short-lived temp
// cookie plus an indicator of the expected second factor.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	email := strings.TrimSpace(body.Email)
	password := strings.TrimSpace(body.Password)
	if email == "" || password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}

	result, errLogin := h.svc.Login(c.Request.Context(), email, password, c.ClientIP())
	if errLogin != nil {
		respondLoginError(c, errLogin)
		return
	}

	if result.Pending {
		setCookie(c, security.TempSessionCookieName, result.Token, security.PendingTokenTTL, h.secure)
		c.JSON(http.StatusOK, gin.H{
			"two_factor_required": true,
			"method":              result.Method,
		})
		return
	}

	setCookie(c, security.SessionCookieName, result.Token, security.SessionTokenTTL, h.secure)
	clearCookie(c, security.TempSessionCookieName, h.secure)
	c.JSON(http.StatusOK, gin.H{
		"two_factor_required": false,
		"user":                userResponse(result.User),
	})
}

// Logout clears both session cookies. Tokens are stateless, so this is
// the whole invalidation.
func (h *AuthHandler) Logout(c *gin.Context) {
	if token, errCookie := c.Cookie(security.SessionCookieName); errCookie == nil {
		if claims, errParse := security.ParseSessionToken(h.svc.Secret(), token); errParse == nil {
			h.svc.Logout(c.Request.Context(), claims.UserID, claims.Email, c.ClientIP())
		}
	}
	clearCookie(c, security.SessionCookieName, h.secure)
	clearCookie(c, security.TempSessionCookieName, h.secure)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Me returns the authenticated admin's profile.
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	user, errLoad := h.svc.User(c.Request.Context(), userID)
	if errLoad != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": userResponse(*user)})
}

// changePasswordRequest defines the request body for password changes.
type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ChangePassword re-authenticates and stores a new password hash.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var body changePasswordRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if len(body.NewPassword) < 10 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "new password must be at least 10 characters"})
		return
	}

	errChange := h.svc.ChangePassword(c.Request.Context(), userID, body.CurrentPassword, body.NewPassword, c.ClientIP())
	if errChange != nil {
		if errors.Is(errChange, session.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// respondLoginError maps service errors onto the generic HTTP answers.
// Unknown email and wrong password produce identical responses.
func respondLoginError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrLockedOut):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many attempts"})
	case errors.Is(err, session.ErrAccountDisabled):
		c.JSON(http.StatusForbidden, gin.H{"error": "account is disabled"})
	case errors.Is(err, session.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
	}
}

// setCookie writes a session cookie with the standard attributes.
func setCookie(c *gin.Context, name, token string, ttl time.Duration, secure bool) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(name, token, int(ttl.Seconds()), "/", "", secure, true)
}

// clearCookie deletes a session cookie.
func clearCookie(c *gin.Context, name string, secure bool) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(name, "", -1, "/", "", secure, true)
}

// userIDFromContext returns the authenticated admin user ID.
func userIDFromContext(c *gin.Context) (uint64, bool) {
	value, ok := c.Get("userID")
	if !ok {
		return 0, false
	}
	id, ok := value.(uint64)
	return id, ok
}

// sessionVerifiedFromContext reports whether the request carries a
// fully-verified session token rather than a pending one.
func sessionVerifiedFromContext(c *gin.Context) bool {
	value, ok := c.Get("twoFactorVerified")
	if !ok {
		return false
	}
	verified, _ := value.(bool)
	return verified
}
