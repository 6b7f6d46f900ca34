package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/verdantbox/admin-api/internal/models"
)

// userResponse shapes an admin user for JSON responses. Password hash
// and second-factor secrets never leave the server.
func userResponse(user models.AdminUser) gin.H {
	return gin.H{
		"id":                 user.ID,
		"email":              user.Email,
		"role":               user.Role,
		"active":             user.Active,
		"two_factor_enabled": user.TwoFactorEnabled,
		"two_factor_method":  user.TwoFactorMethod,
		"last_login":         user.LastLogin,
		"created_at":         user.CreatedAt,
	}
}
