// Package audit appends immutable records for security-relevant
// events. Recording is a mandatory side effect of every session state
// transition rather than optional per-route code.
package audit

import (
	"context"
	"encoding/json"

	log "github.com/sirupsen/logrus"
	"github.com/verdantbox/admin-api/internal/models"
	"gorm.io/gorm"
)

// Audit action names.
const (
	ActionLoginSuccess      = "login_success"
	ActionLoginFailed       = "login_failed"
	ActionLoginPending      = "login_pending"
	ActionSecondFactorOK    = "second_factor_success"
	ActionSecondFactorFail  = "second_factor_failed"
	ActionLockout           = "lockout_triggered"
	ActionLogout            = "logout"
	ActionPasswordChanged   = "password_changed"
	ActionTwoFactorEnabled  = "two_factor_enabled"
	ActionTwoFactorDisabled = "two_factor_disabled"
	ActionPasskeyRegistered = "passkey_registered"
	ActionUserCreated       = "user_created"
	ActionUserDeleted       = "user_deleted"
)

// Entry describes one security event to record.
type Entry struct {
	ActorID  uint64
	Actor    string
	Action   string
	Severity string
	IP       string
	Detail   map[string]any
}

// Recorder persists audit entries.
type Recorder struct {
	db *gorm.DB
}

// NewRecorder constructs a Recorder.
func NewRecorder(db *gorm.DB) *Recorder {
	return &Recorder{db: db}
}

// Record appends one audit row. A storage failure is logged but never
// fails the authentication flow that triggered it.
func (r *Recorder) Record(ctx context.Context, entry Entry) {
	if r == nil || r.db == nil {
		return
	}
	severity := entry.Severity
	if severity == "" {
		severity = models.AuditInfo
	}

	row := models.AuditLog{
		ActorID:  entry.ActorID,
		Actor:    entry.Actor,
		Action:   entry.Action,
		Severity: severity,
		IP:       entry.IP,
	}
	if len(entry.Detail) > 0 {
		if data, errMarshal := json.Marshal(entry.Detail); errMarshal == nil {
			row.Detail = data
		}
	}

	if errCreate := r.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		log.WithError(errCreate).WithField("action", entry.Action).Error("audit record failed")
	}
}
