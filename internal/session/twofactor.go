package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/verdantbox/admin-api/internal/audit"
	"github.com/verdantbox/admin-api/internal/models"
	"github.com/verdantbox/admin-api/internal/security"
	"gorm.io/gorm"
)

// totpSetupTTL bounds how long a generated TOTP secret may wait for
// confirmation.
const totpSetupTTL = 10 * time.Minute

// pendingTOTPSetup is the stored shape of an unconfirmed enrollment.
type pendingTOTPSetup struct {
	Secret     string   `json:"secret"`
	CodeHashes []string `json:"code_hashes"`
}

// VerifySecondFactor upgrades a pending session to a verified one using
// a TOTP code or a single-use backup code. All failure causes collapse
// to ErrSecondFactorInvalid for the caller.
func (s *Service) VerifySecondFactor(ctx context.Context, userID uint64, code string, isBackupCode bool, ip string) (*LoginResult, error) {
	key := lockKey("2fa", fmt.Sprintf("%d", userID), ip)
	if locked, errLocked := s.lockout.Locked(ctx, key); errLocked != nil {
		log.WithError(errLocked).Warn("lockout check failed")
	} else if locked {
		return nil, ErrLockedOut
	}

	var user models.AdminUser
	if errFind := s.db.WithContext(ctx).First(&user, userID).Error; errFind != nil {
		return nil, ErrSecondFactorInvalid
	}
	if !user.Active {
		return nil, ErrAccountDisabled
	}

	code = strings.TrimSpace(code)
	var ok bool
	var reason string
	switch {
	case isBackupCode:
		ok = s.consumeBackupCode(ctx, user.ID, code)
		reason = "backup code rejected"
	case user.TwoFactorMethod == models.TwoFactorTOTP:
		ok = security.VerifyTOTP(code, user.TOTPSecret)
		reason = "totp rejected"
	default:
		// webauthn accounts verify through the assertion endpoints;
		// google is a legacy value with no verifier.
		s.audit.Record(ctx, audit.Entry{
			ActorID:  user.ID,
			Actor:    user.Email,
			Action:   audit.ActionSecondFactorFail,
			Severity: models.AuditWarning,
			IP:       ip,
			Detail:   map[string]any{"reason": "unsupported method", "method": user.TwoFactorMethod},
		})
		return nil, ErrUnsupportedMethod
	}

	if !ok {
		s.recordFailure(ctx, key, audit.Entry{
			ActorID:  user.ID,
			Actor:    user.Email,
			Action:   audit.ActionSecondFactorFail,
			Severity: models.AuditWarning,
			IP:       ip,
			Detail:   map[string]any{"reason": reason},
		})
		return nil, ErrSecondFactorInvalid
	}

	if errReset := s.lockout.Reset(ctx, key); errReset != nil {
		log.WithError(errReset).Warn("lockout reset failed")
	}
	return s.issueVerified(ctx, user, ip, audit.ActionSecondFactorOK)
}

// consumeBackupCode atomically marks a backup code as used. The guarded
// UPDATE makes double-spending impossible even under concurrent
// requests.
func (s *Service) consumeBackupCode(ctx context.Context, userID uint64, code string) bool {
	res := s.db.WithContext(ctx).Model(&models.BackupCode{}).
		Where("admin_user_id = ? AND code_hash = ? AND used_at IS NULL", userID, security.HashBackupCode(code)).
		Update("used_at", time.Now().UTC())
	if res.Error != nil {
		log.WithError(res.Error).Warn("backup code consumption failed")
		return false
	}
	return res.RowsAffected == 1
}

// BeginTOTPSetup generates a fresh secret and backup codes and parks
// them until the first valid code confirms the enrollment. The
// plaintext backup codes are returned exactly once.
func (s *Service) BeginTOTPSetup(ctx context.Context, userID uint64) (*security.TOTPSetup, error) {
	var user models.AdminUser
	if errFind := s.db.WithContext(ctx).First(&user, userID).Error; errFind != nil {
		return nil, errFind
	}

	setup, errGenerate := security.GenerateTOTPSetup(s.issuer, user.Email)
	if errGenerate != nil {
		return nil, errGenerate
	}

	pending := pendingTOTPSetup{Secret: setup.Secret}
	for _, code := range setup.BackupCodes {
		pending.CodeHashes = append(pending.CodeHashes, security.HashBackupCode(code))
	}
	payload, errMarshal := json.Marshal(pending)
	if errMarshal != nil {
		return nil, fmt.Errorf("marshal totp setup: %w", errMarshal)
	}
	if errSet := s.store.Set(ctx, totpSetupKey(userID), payload, totpSetupTTL); errSet != nil {
		return nil, fmt.Errorf("store totp setup: %w", errSet)
	}
	return setup, nil
}

// ConfirmTOTPSetup validates the first code against the pending secret
// and persists the enrollment: secret, method and hashed backup codes.
func (s *Service) ConfirmTOTPSetup(ctx context.Context, userID uint64, code, ip string) error {
	payload, found, errGet := s.store.Get(ctx, totpSetupKey(userID))
	if errGet != nil {
		return fmt.Errorf("load totp setup: %w", errGet)
	}
	if !found {
		return ErrSetupExpired
	}
	var pending pendingTOTPSetup
	if errUnmarshal := json.Unmarshal(payload, &pending); errUnmarshal != nil {
		return ErrSetupExpired
	}

	if !security.VerifyTOTP(strings.TrimSpace(code), pending.Secret) {
		return ErrSecondFactorInvalid
	}

	var user models.AdminUser
	if errFind := s.db.WithContext(ctx).First(&user, userID).Error; errFind != nil {
		return errFind
	}

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errUpdate := tx.Model(&models.AdminUser{}).
			Where("id = ?", userID).
			Updates(map[string]any{
				"totp_secret":        pending.Secret,
				"two_factor_enabled": true,
				"two_factor_method":  models.TwoFactorTOTP,
				"updated_at":         time.Now().UTC(),
			}).Error; errUpdate != nil {
			return errUpdate
		}
		if errDelete := tx.Where("admin_user_id = ?", userID).Delete(&models.BackupCode{}).Error; errDelete != nil {
			return errDelete
		}
		for _, hash := range pending.CodeHashes {
			if errCreate := tx.Create(&models.BackupCode{AdminUserID: userID, CodeHash: hash}).Error; errCreate != nil {
				return errCreate
			}
		}
		return nil
	})
	if errTx != nil {
		return errTx
	}

	if errDelete := s.store.Delete(ctx, totpSetupKey(userID)); errDelete != nil {
		log.WithError(errDelete).Warn("totp setup cleanup failed")
	}
	s.audit.Record(ctx, audit.Entry{
		ActorID: user.ID,
		Actor:   user.Email,
		Action:  audit.ActionTwoFactorEnabled,
		IP:      ip,
		Detail:  map[string]any{"method": models.TwoFactorTOTP},
	})
	return nil
}

// DisableTwoFactor removes the configured second factor, its backup
// codes and any registered passkeys. This is an explicit admin action,
// never an implicit one.
func (s *Service) DisableTwoFactor(ctx context.Context, userID uint64, ip string) error {
	var user models.AdminUser
	if errFind := s.db.WithContext(ctx).First(&user, userID).Error; errFind != nil {
		return errFind
	}

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errUpdate := tx.Model(&models.AdminUser{}).
			Where("id = ?", userID).
			Updates(map[string]any{
				"totp_secret":        "",
				"two_factor_enabled": false,
				"two_factor_method":  models.TwoFactorNone,
				"updated_at":         time.Now().UTC(),
			}).Error; errUpdate != nil {
			return errUpdate
		}
		if errDelete := tx.Where("admin_user_id = ?", userID).Delete(&models.BackupCode{}).Error; errDelete != nil {
			return errDelete
		}
		return tx.Where("admin_user_id = ?", userID).Delete(&models.WebAuthnCredential{}).Error
	})
	if errTx != nil {
		return errTx
	}

	if errDelete := s.store.Delete(ctx, totpSetupKey(userID)); errDelete != nil {
		log.WithError(errDelete).Warn("totp setup cleanup failed")
	}
	s.audit.Record(ctx, audit.Entry{
		ActorID:  user.ID,
		Actor:    user.Email,
		Action:   audit.ActionTwoFactorDisabled,
		Severity: models.AuditWarning,
		IP:       ip,
	})
	return nil
}

// totpSetupKey builds the pending-enrollment store key for a user.
func totpSetupKey(userID uint64) string {
	return fmt.Sprintf("totp-setup:%d", userID)
}
