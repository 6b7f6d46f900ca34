package models

import (
	"time"
)

// BackupCode stores one single-use recovery code for an admin user.
// Only a hash of the code is persisted; consumption sets UsedAt so a
// code can never succeed twice.
type BackupCode struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	AdminUserID uint64 `gorm:"not null;index"` // Owning admin user.

	CodeHash string `gorm:"type:text;not null"` // SHA-256 hash of the 8-digit code.

	UsedAt *time.Time `gorm:"index"` // Consumption timestamp; nil while unused.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
