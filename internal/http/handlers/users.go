package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/verdantbox/admin-api/internal/audit"
	"github.com/verdantbox/admin-api/internal/models"
	"github.com/verdantbox/admin-api/internal/security"
	"gorm.io/gorm"
)

// UsersHandler handles admin user management. Routes using it are
// restricted to the admin role.
type UsersHandler struct {
	db    *gorm.DB
	audit *audit.Recorder
}

// NewUsersHandler constructs a UsersHandler.
func NewUsersHandler(db *gorm.DB, recorder *audit.Recorder) *UsersHandler {
	return &UsersHandler{db: db, audit: recorder}
}

// List returns all admin users.
func (h *UsersHandler) List(c *gin.Context) {
	var users []models.AdminUser
	if errFind := h.db.WithContext(c.Request.Context()).Order("id ASC").Find(&users).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	out := make([]gin.H, 0, len(users))
	for _, user := range users {
		out = append(out, userResponse(user))
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}

// createUserRequest defines the request body for creating an admin.
type createUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// Create adds a new admin user with a hashed password.
func (h *UsersHandler) Create(c *gin.Context) {
	var body createUserRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	email := strings.ToLower(strings.TrimSpace(body.Email))
	if email == "" || !strings.Contains(email, "@") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "valid email is required"})
		return
	}
	if len(body.Password) < 10 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password must be at least 10 characters"})
		return
	}
	role := strings.TrimSpace(body.Role)
	if role == "" {
		role = models.RoleEditor
	}
	if role != models.RoleAdmin && role != models.RoleEditor {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
		return
	}

	hash, errHash := security.HashPassword(body.Password)
	if errHash != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}

	user := models.AdminUser{
		Email:           email,
		PasswordHash:    hash,
		Role:            role,
		Active:          true,
		TwoFactorMethod: models.TwoFactorNone,
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&user).Error; errCreate != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "email already in use"})
		return
	}

	actorID, _ := userIDFromContext(c)
	h.audit.Record(c.Request.Context(), audit.Entry{
		ActorID: actorID,
		Actor:   emailFromContext(c),
		Action:  audit.ActionUserCreated,
		IP:      c.ClientIP(),
		Detail:  map[string]any{"email": email, "role": role},
	})
	c.JSON(http.StatusCreated, gin.H{"user": userResponse(user)})
}

// Delete removes an admin user. Self-deletion is forbidden.
func (h *UsersHandler) Delete(c *gin.Context) {
	targetID, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	actorID, ok := userIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	if targetID == actorID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot delete your own account"})
		return
	}

	var target models.AdminUser
	if errFind := h.db.WithContext(c.Request.Context()).First(&target, targetID).Error; errFind != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if errDelete := tx.Where("admin_user_id = ?", targetID).Delete(&models.WebAuthnCredential{}).Error; errDelete != nil {
			return errDelete
		}
		if errDelete := tx.Where("admin_user_id = ?", targetID).Delete(&models.BackupCode{}).Error; errDelete != nil {
			return errDelete
		}
		return tx.Delete(&models.AdminUser{}, targetID).Error
	})
	if errTx != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}

	h.audit.Record(c.Request.Context(), audit.Entry{
		ActorID:  actorID,
		Actor:    emailFromContext(c),
		Action:   audit.ActionUserDeleted,
		Severity: models.AuditWarning,
		IP:       c.ClientIP(),
		Detail:   map[string]any{"email": target.Email},
	})
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// emailFromContext returns the authenticated admin email.
func emailFromContext(c *gin.Context) string {
	value, ok := c.Get("userEmail")
	if !ok {
		return ""
	}
	email, _ := value.(string)
	return email
}
