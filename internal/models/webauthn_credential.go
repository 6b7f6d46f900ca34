package models

import (
	"time"

	"gorm.io/datatypes"
)

// WebAuthnCredential stores one registered passkey for an admin user.
// The credential set grows by one per successful registration and is
// never shrunk implicitly.
type WebAuthnCredential struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	AdminUserID uint64 `gorm:"not null;index"` // Owning admin user.

	CredentialID []byte `gorm:"type:bytea;not null;uniqueIndex"` // Authenticator credential ID.
	PublicKey    []byte `gorm:"type:bytea;not null"`             // COSE public key bytes.

	SignCount uint32 `gorm:"not null;default:0"` // Monotonic signature counter.

	Transports datatypes.JSON `gorm:"type:jsonb"` // Authenticator transports in JSON.

	AAGUID []byte `gorm:"type:bytea"` // Authenticator AAGUID.

	BackupEligible bool `gorm:"not null;default:false"` // Backup eligibility flag.
	BackupState    bool `gorm:"not null;default:false"` // Backup state flag.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Registration timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
