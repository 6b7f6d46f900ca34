package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/verdantbox/admin-api/internal/db"
	"github.com/verdantbox/admin-api/internal/models"
	"gorm.io/gorm"
)

// AuditHandler lists audit log records for operators.
type AuditHandler struct {
	db *gorm.DB
}

// NewAuditHandler constructs an AuditHandler.
func NewAuditHandler(conn *gorm.DB) *AuditHandler {
	return &AuditHandler{db: conn}
}

// List returns audit records, newest first, with optional action and
// actor filters.
func (h *AuditHandler) List(c *gin.Context) {
	query := h.db.WithContext(c.Request.Context()).Model(&models.AuditLog{})

	if action := strings.TrimSpace(c.Query("action")); action != "" {
		query = query.Where("action = ?", action)
	}
	if actor := strings.TrimSpace(c.Query("actor")); actor != "" {
		pattern := db.NormalizeLikePattern(h.db, "%"+actor+"%")
		query = query.Where(db.CaseInsensitiveLikeExpr(h.db, "actor"), pattern)
	}
	if severity := strings.TrimSpace(c.Query("severity")); severity != "" {
		query = query.Where("severity = ?", severity)
	}

	limit := parseBoundedInt(c.Query("limit"), 50, 1, 500)
	offset := parseBoundedInt(c.Query("offset"), 0, 0, 1<<30)

	var total int64
	if errCount := query.Count(&total).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	var rows []models.AuditLog
	if errFind := query.Order("id DESC").Limit(limit).Offset(offset).Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"total": total, "logs": rows})
}

// parseBoundedInt parses an integer query parameter within bounds.
func parseBoundedInt(value string, fallback, min, max int) int {
	parsed, errParse := strconv.Atoi(strings.TrimSpace(value))
	if errParse != nil {
		return fallback
	}
	if parsed < min {
		return min
	}
	if parsed > max {
		return max
	}
	return parsed
}
