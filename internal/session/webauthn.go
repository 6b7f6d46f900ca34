package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	log "github.com/sirupsen/logrus"
	"github.com/verdantbox/admin-api/internal/audit"
	"github.com/verdantbox/admin-api/internal/models"
	"gorm.io/gorm"
)

// ceremonyTTL bounds how long a WebAuthn challenge stays consumable.
const ceremonyTTL = 5 * time.Minute

// BeginWebAuthnRegistration starts a passkey registration ceremony for
// a signed-in admin. Credential IDs the user already registered are
// excluded so the same authenticator cannot be added twice.
func (s *Service) BeginWebAuthnRegistration(ctx context.Context, userID uint64) (*protocol.CredentialCreation, error) {
	user, rows, errLoad := s.loadWebAuthnUser(ctx, userID)
	if errLoad != nil {
		return nil, errLoad
	}

	adapted := newWebAuthnUser(*user, rows)
	options := []webauthn.RegistrationOption{
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementRequired),
		webauthn.WithAuthenticatorSelection(protocol.AuthenticatorSelection{
			UserVerification: protocol.VerificationPreferred,
		}),
	}
	if len(adapted.WebAuthnCredentials()) > 0 {
		options = append(options, webauthn.WithExclusions(webauthn.Credentials(adapted.WebAuthnCredentials()).CredentialDescriptors()))
	}

	creation, sessionData, errBegin := s.webAuthn.BeginRegistration(adapted, options...)
	if errBegin != nil {
		return nil, fmt.Errorf("begin passkey registration: %w", errBegin)
	}
	if errStore := s.storeCeremony(ctx, registrationKey(userID), sessionData); errStore != nil {
		return nil, errStore
	}
	return creation, nil
}

// FinishWebAuthnRegistration completes a registration ceremony and
// appends the new credential to the user's set.
func (s *Service) FinishWebAuthnRegistration(ctx context.Context, userID uint64, r *http.Request, ip string) error {
	user, rows, errLoad := s.loadWebAuthnUser(ctx, userID)
	if errLoad != nil {
		return errLoad
	}

	sessionData, found, errTake := s.takeCeremony(ctx, registrationKey(userID))
	if errTake != nil {
		return errTake
	}
	if !found {
		return ErrChallengeNotFound
	}

	adapted := newWebAuthnUser(*user, rows)
	credential, errFinish := s.webAuthn.FinishRegistration(adapted, *sessionData, r)
	if errFinish != nil {
		log.WithError(errFinish).WithField("user_id", userID).Warn("passkey registration failed")
		return ErrSecondFactorInvalid
	}

	row := models.WebAuthnCredential{
		AdminUserID:    userID,
		CredentialID:   credential.ID,
		PublicKey:      credential.PublicKey,
		SignCount:      credential.Authenticator.SignCount,
		AAGUID:         credential.Authenticator.AAGUID,
		BackupEligible: credential.Flags.BackupEligible,
		BackupState:    credential.Flags.BackupState,
	}
	if len(credential.Transport) > 0 {
		if data, errMarshal := json.Marshal(credential.Transport); errMarshal == nil {
			row.Transports = data
		}
	}

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errCreate := tx.Create(&row).Error; errCreate != nil {
			return errCreate
		}
		return tx.Model(&models.AdminUser{}).
			Where("id = ?", userID).
			Updates(map[string]any{
				"two_factor_enabled": true,
				"two_factor_method":  models.TwoFactorWebAuthn,
				"updated_at":         time.Now().UTC(),
			}).Error
	})
	if errTx != nil {
		return errTx
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID: user.ID,
		Actor:   user.Email,
		Action:  audit.ActionPasskeyRegistered,
		IP:      ip,
	})
	return nil
}

// BeginWebAuthnLogin starts an authentication ceremony for a pending
// session, listing the user's registered credentials as allowed.
func (s *Service) BeginWebAuthnLogin(ctx context.Context, userID uint64) (*protocol.CredentialAssertion, error) {
	user, rows, errLoad := s.loadWebAuthnUser(ctx, userID)
	if errLoad != nil {
		return nil, errLoad
	}
	if len(rows) == 0 {
		return nil, ErrCredentialNotRecognized
	}

	adapted := newWebAuthnUser(*user, rows)
	assertion, sessionData, errBegin := s.webAuthn.BeginLogin(adapted, webauthn.WithUserVerification(protocol.VerificationPreferred))
	if errBegin != nil {
		return nil, fmt.Errorf("begin passkey login: %w", errBegin)
	}
	if errStore := s.storeCeremony(ctx, loginKey(userID), sessionData); errStore != nil {
		return nil, errStore
	}
	return assertion, nil
}

// FinishWebAuthnLogin completes an authentication ceremony and upgrades
// the pending session to a verified one. A signature-counter regression
// is rejected even when the signature itself verifies, since it
// indicates a cloned authenticator.
func (s *Service) FinishWebAuthnLogin(ctx context.Context, userID uint64, r *http.Request, ip string) (*LoginResult, error) {
	key := lockKey("2fa", fmt.Sprintf("%d", userID), ip)
	if locked, errLocked := s.lockout.Locked(ctx, key); errLocked != nil {
		log.WithError(errLocked).Warn("lockout check failed")
	} else if locked {
		return nil, ErrLockedOut
	}

	user, rows, errLoad := s.loadWebAuthnUser(ctx, userID)
	if errLoad != nil {
		return nil, ErrSecondFactorInvalid
	}
	if !user.Active {
		return nil, ErrAccountDisabled
	}
	if len(rows) == 0 {
		return nil, ErrCredentialNotRecognized
	}

	sessionData, found, errTake := s.takeCeremony(ctx, loginKey(userID))
	if errTake != nil {
		return nil, errTake
	}
	if !found {
		return nil, ErrChallengeNotFound
	}

	adapted := newWebAuthnUser(*user, rows)
	credential, errFinish := s.webAuthn.FinishLogin(adapted, *sessionData, r)
	if errFinish != nil || cloneSuspected(credential, rows) {
		reason := "assertion rejected"
		if errFinish == nil {
			reason = "signature counter regression"
		}
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

	if errUpdate := s.db.WithContext(ctx).Model(&models.WebAuthnCredential{}).
		Where("admin_user_id = ? AND credential_id = ?", userID, credential.ID).
		Updates(map[string]any{
			"sign_count":      credential.Authenticator.SignCount,
			"backup_eligible": credential.Flags.BackupEligible,
			"backup_state":    credential.Flags.BackupState,
			"updated_at":      time.Now().UTC(),
		}).Error; errUpdate != nil {
		log.WithError(errUpdate).WithField("user_id", userID).Warn("sign count update failed")
	}

	if errReset := s.lockout.Reset(ctx, key); errReset != nil {
		log.WithError(errReset).Warn("lockout reset failed")
	}
	return s.issueVerified(ctx, *user, ip, audit.ActionSecondFactorOK)
}

// cloneSuspected reports whether a finished assertion points at a
// cloned authenticator: either the library flagged a counter warning,
// or the reported signature counter failed to move past the stored one
// while counters are in use.
func cloneSuspected(credential *webauthn.Credential, rows []models.WebAuthnCredential) bool {
	if credential.Authenticator.CloneWarning {
		return true
	}
	for _, row := range rows {
		if bytes.Equal(row.CredentialID, credential.ID) {
			return row.SignCount > 0 && credential.Authenticator.SignCount <= row.SignCount
		}
	}
	return false
}

// loadWebAuthnUser loads an admin user and its credential rows ordered
// by registration time.
func (s *Service) loadWebAuthnUser(ctx context.Context, userID uint64) (*models.AdminUser, []models.WebAuthnCredential, error) {
	var user models.AdminUser
	if errFind := s.db.WithContext(ctx).First(&user, userID).Error; errFind != nil {
		return nil, nil, errFind
	}
	var rows []models.WebAuthnCredential
	if errFind := s.db.WithContext(ctx).
		Where("admin_user_id = ?", userID).
		Order("id ASC").
		Find(&rows).Error; errFind != nil {
		return nil, nil, errFind
	}
	return &user, rows, nil
}

// storeCeremony persists WebAuthn session data in the challenge store.
// A second options call overwrites the previous challenge.
func (s *Service) storeCeremony(ctx context.Context, key string, sessionData *webauthn.SessionData) error {
	payload, errMarshal := json.Marshal(sessionData)
	if errMarshal != nil {
		return fmt.Errorf("marshal ceremony session: %w", errMarshal)
	}
	if errSet := s.store.Set(ctx, key, payload, ceremonyTTL); errSet != nil {
		return fmt.Errorf("store ceremony session: %w", errSet)
	}
	return nil
}

// takeCeremony atomically consumes stored WebAuthn session data so two
// concurrent verifications can never both succeed with one challenge.
func (s *Service) takeCeremony(ctx context.Context, key string) (*webauthn.SessionData, bool, error) {
	payload, found, errTake := s.store.Take(ctx, key)
	if errTake != nil {
		return nil, false, fmt.Errorf("take ceremony session: %w", errTake)
	}
	if !found {
		return nil, false, nil
	}
	var sessionData webauthn.SessionData
	if errUnmarshal := json.Unmarshal(payload, &sessionData); errUnmarshal != nil {
		return nil, false, nil
	}
	return &sessionData, true, nil
}

// registrationKey builds the ceremony store key for registrations.
func registrationKey(userID uint64) string {
	return fmt.Sprintf("webauthn:reg:%d", userID)
}

// loginKey builds the ceremony store key for authentications.
func loginKey(userID uint64) string {
	return fmt.Sprintf("webauthn:login:%d", userID)
}
