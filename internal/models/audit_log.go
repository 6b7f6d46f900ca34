package models

import (
	"time"

	"gorm.io/datatypes"
)

// Audit severity tags.
const (
	// AuditInfo marks routine security events.
	AuditInfo = "info"
	// AuditWarning marks suspicious or failed events.
	AuditWarning = "warning"
	// AuditCritical marks events that demand operator attention.
	AuditCritical = "critical"
)

// AuditLog is an immutable record of a security-relevant event. Rows
// are served to the audit endpoint as-is, so JSON names are part of the
// API surface.
type AuditLog struct {
	ID uint64 `gorm:"primaryKey;autoIncrement" json:"id"` // Primary key.

	ActorID uint64 `gorm:"index" json:"actor_id"`                      // Acting admin user ID; zero when unauthenticated.
	Actor   string `gorm:"type:text" json:"actor"`                     // Acting admin email or request identity.
	Action  string `gorm:"type:text;not null;index" json:"action"`     // Event name, e.g. login_success.

	Severity string `gorm:"type:text;not null;default:'info'" json:"severity"` // Severity tag.

	IP string `gorm:"type:text" json:"ip"` // Remote address of the request.

	Detail datatypes.JSON `gorm:"type:jsonb" json:"detail,omitempty"` // Additional event context in JSON.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index" json:"created_at"` // Event timestamp.
}
