package models

import (
	"time"
)

// Admin roles.
const (
	// RoleAdmin grants access to all protected resources.
	RoleAdmin = "admin"
	// RoleEditor grants access to content resources only.
	RoleEditor = "editor"
)

// Two-factor method values stored on an admin user.
const (
	// TwoFactorNone means no second factor is configured.
	TwoFactorNone = "none"
	// TwoFactorTOTP means a time-based one-time code is configured.
	TwoFactorTOTP = "totp"
	// TwoFactorWebAuthn means a passkey is configured.
	TwoFactorWebAuthn = "webauthn"
	// TwoFactorGoogle is a legacy value kept for old rows; it is never
	// accepted at verification time.
	TwoFactorGoogle = "google"
)

// AdminUser represents an administrator account stored in the database.
type AdminUser struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Email        string `gorm:"type:text;not null;uniqueIndex"` // Unique login identifier.
	PasswordHash string `gorm:"type:text;not null"`             // Bcrypt password hash.

	Role string `gorm:"type:text;not null;default:'editor'"` // Role: admin or editor.

	Active bool `gorm:"not null;default:true"` // Whether the admin can sign in.

	TwoFactorEnabled bool   `gorm:"not null;default:false"`            // Whether a second factor is required.
	TwoFactorMethod  string `gorm:"type:text;not null;default:'none'"` // Configured second-factor method.
	TOTPSecret       string `gorm:"type:text"`                         // Base32 TOTP shared secret.

	WebAuthnCredentials []WebAuthnCredential `gorm:"foreignKey:AdminUserID"` // Registered passkeys.
	BackupCodes         []BackupCode         `gorm:"foreignKey:AdminUserID"` // Single-use recovery codes.

	LastLogin *time.Time `gorm:""` // Last fully-verified session creation.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// SecondFactorConfigured reports whether the account requires a second factor.
func (u AdminUser) SecondFactorConfigured() bool {
	return u.TwoFactorEnabled && u.TwoFactorMethod != TwoFactorNone
}
