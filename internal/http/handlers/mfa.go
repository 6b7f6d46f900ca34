package handlers

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image/png"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp"
	"github.com/verdantbox/admin-api/internal/models"
	"github.com/verdantbox/admin-api/internal/security"
	"github.com/verdantbox/admin-api/internal/session"
)

// MFAHandler handles second-factor verification, enrollment and the
// WebAuthn ceremony endpoints.
type MFAHandler struct {
	svc    *session.Service
	secure bool
}

// NewMFAHandler constructs an MFAHandler.
func NewMFAHandler(svc *session.Service, secure bool) *MFAHandler {
	return &MFAHandler{svc: svc, secure: secure}
}

// enrollmentAllowed decides whether the session may enroll or replace a
// second factor. A pending session may enroll only while the account
// has no factor configured yet (the mandatory-setup flow); once a
// factor exists, it must be verified before anything about it can
// change, otherwise a stolen password alone could swap in an
// attacker-controlled secret.
func (h *MFAHandler) enrollmentAllowed(c *gin.Context, userID uint64) bool {
	if sessionVerifiedFromContext(c) {
		return true
	}
	user, errLoad := h.svc.User(c.Request.Context(), userID)
	if errLoad != nil {
		return false
	}
	return !user.SecondFactorConfigured()
}

// verifyRequest defines the request body for second-factor verification.
type verifyRequest struct {
	Code         string `json:"code"`
	IsBackupCode bool   `json:"is_backup_code"`
}

// Verify upgrades a pending session to a verified one using a TOTP code
// or a single-use backup code. All verification failures collapse into
// one generic message.
func (h *MFAHandler) Verify(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var body verifyRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.Code) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code"})
		return
	}

	result, errVerify := h.svc.VerifySecondFactor(c.Request.Context(), userID, body.Code, body.IsBackupCode, c.ClientIP())
	if errVerify != nil {
		respondVerifyError(c, errVerify)
		return
	}

	setCookie(c, security.SessionCookieName, result.Token, security.SessionTokenTTL, h.secure)
	clearCookie(c, security.TempSessionCookieName, h.secure)
	c.JSON(http.StatusOK, gin.H{"ok": true, "user": userResponse(result.User)})
}

// Status returns the 2FA enablement state for the signed-in admin.
func (h *MFAHandler) Status(c *gin.Context) {
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
	c.JSON(http.StatusOK, gin.H{
		"two_factor_enabled": user.TwoFactorEnabled,
		"two_factor_method":  user.TwoFactorMethod,
	})
}

// setupRequest defines the request body for 2FA enrollment.
type setupRequest struct {
	Method string `json:"method"`
}

// Setup starts a 2FA enrollment. For TOTP it returns the secret,
// provisioning URI, QR image and single-use backup codes; for WebAuthn
// it returns registration options for the browser ceremony.
func (h *MFAHandler) Setup(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	if !h.enrollmentAllowed(c, userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "second factor verification required"})
		return
	}

	var body setupRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	switch strings.TrimSpace(body.Method) {
	case models.TwoFactorTOTP:
		setup, errBegin := h.svc.BeginTOTPSetup(c.Request.Context(), userID)
		if errBegin != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "totp setup failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"secret":       setup.Secret,
			"otpauth_url":  setup.ProvisioningURI,
			"qr_image":     qrImageDataURI(setup.ProvisioningURI),
			"backup_codes": setup.BackupCodes,
		})
	case models.TwoFactorWebAuthn:
		creation, errBegin := h.svc.BeginWebAuthnRegistration(c.Request.Context(), userID)
		if errBegin != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "passkey setup failed"})
			return
		}
		c.JSON(http.StatusOK, creation)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported method"})
	}
}

// totpConfirmRequest defines the request body for confirming TOTP.
type totpConfirmRequest struct {
	Code string `json:"code"`
}

// ConfirmTOTP validates the first code and enables TOTP for the admin.
func (h *MFAHandler) ConfirmTOTP(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	if !h.enrollmentAllowed(c, userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "second factor verification required"})
		return
	}

	var body totpConfirmRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.Code) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code"})
		return
	}

	errConfirm := h.svc.ConfirmTOTPSetup(c.Request.Context(), userID, body.Code, c.ClientIP())
	if errConfirm != nil {
		switch {
		case errors.Is(errConfirm, session.ErrSetupExpired):
			c.JSON(http.StatusBadRequest, gin.H{"error": "totp setup expired"})
		case errors.Is(errConfirm, session.ErrSecondFactorInvalid):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid code"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Disable removes the configured second factor.
func (h *MFAHandler) Disable(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	if errDisable := h.svc.DisableTwoFactor(c.Request.Context(), userID, c.ClientIP()); errDisable != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// RegisterVerify completes a passkey registration ceremony.
func (h *MFAHandler) RegisterVerify(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	if !h.enrollmentAllowed(c, userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "second factor verification required"})
		return
	}

	errFinish := h.svc.FinishWebAuthnRegistration(c.Request.Context(), userID, c.Request, c.ClientIP())
	if errFinish != nil {
		if errors.Is(errFinish, session.ErrChallengeNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "registration expired"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "registration failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// AuthenticateOptions starts a passkey login ceremony for a pending
// session.
func (h *MFAHandler) AuthenticateOptions(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	assertion, errBegin := h.svc.BeginWebAuthnLogin(c.Request.Context(), userID)
	if errBegin != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "verification failed"})
		return
	}
	c.JSON(http.StatusOK, assertion)
}

// AuthenticateVerify completes a passkey login ceremony and issues the
// verified session cookie.
func (h *MFAHandler) AuthenticateVerify(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	result, errFinish := h.svc.FinishWebAuthnLogin(c.Request.Context(), userID, c.Request, c.ClientIP())
	if errFinish != nil {
		respondVerifyError(c, errFinish)
		return
	}

	setCookie(c, security.SessionCookieName, result.Token, security.SessionTokenTTL, h.secure)
	clearCookie(c, security.TempSessionCookieName, h.secure)
	c.JSON(http.StatusOK, gin.H{"ok": true, "user": userResponse(result.User)})
}

// respondVerifyError collapses second-factor failures into generic
// denials; only lockout is distinguishable so clients can back off.
func respondVerifyError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrLockedOut):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many attempts"})
	case errors.Is(err, session.ErrAccountDisabled):
		c.JSON(http.StatusForbidden, gin.H{"error": "account is disabled"})
	default:
		c.JSON(http.StatusUnauthorized, gin.H{"error": "verification failed"})
	}
}

// qrImageDataURI renders a provisioning URI into a PNG data URI for
// authenticator apps. An empty string is returned when rendering fails;
// the secret and URI still let the operator enroll manually.
func qrImageDataURI(provisioningURI string) string {
	key, errParse := otp.NewKeyFromURL(provisioningURI)
	if errParse != nil {
		return ""
	}
	img, errImage := key.Image(220, 220)
	if errImage != nil {
		return ""
	}
	var buf bytes.Buffer
	if errEncode := png.Encode(&buf, img); errEncode != nil {
		return ""
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}
