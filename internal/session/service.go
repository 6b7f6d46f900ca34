// Package session implements the admin authentication state machine:
// password check, optional second factor, pending and verified token
// issuance, and the audit side effects every transition carries.
package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	log "github.com/sirupsen/logrus"
	"github.com/verdantbox/admin-api/internal/audit"
	"github.com/verdantbox/admin-api/internal/lockout"
	"github.com/verdantbox/admin-api/internal/models"
	"github.com/verdantbox/admin-api/internal/security"
	"github.com/verdantbox/admin-api/internal/store"
	"gorm.io/gorm"
)

// Second-factor indicators returned to the login caller.
const (
	// MethodTOTP prompts the client for a time-based code.
	MethodTOTP = models.TwoFactorTOTP
	// MethodWebAuthn prompts the client for a passkey assertion.
	MethodWebAuthn = models.TwoFactorWebAuthn
	// MethodSetupRequired tells the client 2FA enrollment is mandatory
	// before a verified session can be issued.
	MethodSetupRequired = "setup_required"
)

// Options configures a session Service.
type Options struct {
	DB               *gorm.DB
	Secret           string
	TOTPIssuer       string
	RequireTwoFactor bool
	WebAuthn         *webauthn.WebAuthn
	Store            store.Store
	Lockout          lockout.Limiter
	Audit            *audit.Recorder
}

// Service orchestrates login attempts, second-factor verification and
// session token issuance.
type Service struct {
	db         *gorm.DB
	secret     string
	issuer     string
	require2FA bool
	webAuthn   *webauthn.WebAuthn
	store      store.Store
	lockout    lockout.Limiter
	audit      *audit.Recorder
}

// NewService constructs a session Service.
func NewService(opts Options) *Service {
	issuer := strings.TrimSpace(opts.TOTPIssuer)
	if issuer == "" {
		issuer = "Verdantbox Admin"
	}
	return &Service{
		db:         opts.DB,
		secret:     opts.Secret,
		issuer:     issuer,
		require2FA: opts.RequireTwoFactor,
		webAuthn:   opts.WebAuthn,
		store:      opts.Store,
		lockout:    opts.Lockout,
		audit:      opts.Audit,
	}
}

// LoginResult carries the outcome of a successful state transition.
type LoginResult struct {
	// Token is the signed session token to set as a cookie.
	Token string
	// Pending is true when the token is the short-lived pre-2FA kind.
	Pending bool
	// Method indicates which second factor the client should prompt
	// for; empty when the session is fully verified.
	Method string
	// User is the authenticated admin user.
	User models.AdminUser
}

// Login checks credentials and issues either a verified session token
// or a pending token when a second factor is outstanding. Unknown email
// and wrong password are indistinguishable to the caller, and both
// paths cost one bcrypt comparison.
func (s *Service) Login(ctx context.Context, email, password, ip string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	key := lockKey("login", email, ip)

	if locked, errLocked := s.lockout.Locked(ctx, key); errLocked != nil {
		log.WithError(errLocked).Warn("lockout check failed")
	} else if locked {
		return nil, ErrLockedOut
	}

	var user models.AdminUser
	errFind := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errFind != nil {
		security.BurnPasswordCheck(password)
		s.recordFailure(ctx, key, audit.Entry{
			Actor:    email,
			Action:   audit.ActionLoginFailed,
			Severity: models.AuditWarning,
			IP:       ip,
			Detail:   map[string]any{"reason": "unknown email"},
		})
		return nil, ErrInvalidCredentials
	}

	if !security.CheckPassword(user.PasswordHash, password) {
		s.recordFailure(ctx, key, audit.Entry{
			ActorID:  user.ID,
			Actor:    user.Email,
			Action:   audit.ActionLoginFailed,
			Severity: models.AuditWarning,
			IP:       ip,
			Detail:   map[string]any{"reason": "wrong password"},
		})
		return nil, ErrInvalidCredentials
	}

	if !user.Active {
		s.audit.Record(ctx, audit.Entry{
			ActorID:  user.ID,
			Actor:    user.Email,
			Action:   audit.ActionLoginFailed,
			Severity: models.AuditWarning,
			IP:       ip,
			Detail:   map[string]any{"reason": "account disabled"},
		})
		return nil, ErrAccountDisabled
	}

	if errReset := s.lockout.Reset(ctx, key); errReset != nil {
		log.WithError(errReset).Warn("lockout reset failed")
	}

	if user.SecondFactorConfigured() {
		return s.issuePending(ctx, user, user.TwoFactorMethod, ip)
	}
	if s.require2FA {
		return s.issuePending(ctx, user, MethodSetupRequired, ip)
	}
	return s.issueVerified(ctx, user, ip, audit.ActionLoginSuccess)
}

// Logout records the logout event. Tokens are stateless, so the actual
// invalidation is the cookie deletion performed by the handler.
func (s *Service) Logout(ctx context.Context, userID uint64, email, ip string) {
	s.audit.Record(ctx, audit.Entry{
		ActorID: userID,
		Actor:   email,
		Action:  audit.ActionLogout,
		IP:      ip,
	})
}

// ChangePassword re-authenticates with the current password and stores
// a new hash.
func (s *Service) ChangePassword(ctx context.Context, userID uint64, current, updated, ip string) error {
	var user models.AdminUser
	if errFind := s.db.WithContext(ctx).First(&user, userID).Error; errFind != nil {
		return ErrInvalidCredentials
	}
	if !security.CheckPassword(user.PasswordHash, current) {
		s.audit.Record(ctx, audit.Entry{
			ActorID:  user.ID,
			Actor:    user.Email,
			Action:   audit.ActionPasswordChanged,
			Severity: models.AuditWarning,
			IP:       ip,
			Detail:   map[string]any{"reason": "current password mismatch"},
		})
		return ErrInvalidCredentials
	}

	hash, errHash := security.HashPassword(updated)
	if errHash != nil {
		return fmt.Errorf("hash password: %w", errHash)
	}
	if errUpdate := s.db.WithContext(ctx).Model(&models.AdminUser{}).
		Where("id = ?", user.ID).
		Updates(map[string]any{"password_hash": hash, "updated_at": time.Now().UTC()}).Error; errUpdate != nil {
		return errUpdate
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID: user.ID,
		Actor:   user.Email,
		Action:  audit.ActionPasswordChanged,
		IP:      ip,
	})
	return nil
}

// User loads an admin user by ID.
func (s *Service) User(ctx context.Context, userID uint64) (*models.AdminUser, error) {
	var user models.AdminUser
	if errFind := s.db.WithContext(ctx).First(&user, userID).Error; errFind != nil {
		return nil, errFind
	}
	return &user, nil
}

// Secret returns the session signing secret for the access gate.
func (s *Service) Secret() string { return s.secret }

// issuePending signs a pending token after a successful password check.
func (s *Service) issuePending(ctx context.Context, user models.AdminUser, method, ip string) (*LoginResult, error) {
	token, errToken := security.IssuePendingToken(s.secret, user.ID, user.Email, user.Role)
	if errToken != nil {
		return nil, fmt.Errorf("issue pending token: %w", errToken)
	}
	s.audit.Record(ctx, audit.Entry{
		ActorID: user.ID,
		Actor:   user.Email,
		Action:  audit.ActionLoginPending,
		IP:      ip,
		Detail:  map[string]any{"method": method},
	})
	return &LoginResult{Token: token, Pending: true, Method: method, User: user}, nil
}

// issueVerified signs a verified token and records the login.
func (s *Service) issueVerified(ctx context.Context, user models.AdminUser, ip, action string) (*LoginResult, error) {
	token, errToken := security.IssueSessionToken(s.secret, user.ID, user.Email, user.Role)
	if errToken != nil {
		return nil, fmt.Errorf("issue session token: %w", errToken)
	}

	now := time.Now().UTC()
	if errUpdate := s.db.WithContext(ctx).Model(&models.AdminUser{}).
		Where("id = ?", user.ID).
		Update("last_login", now).Error; errUpdate != nil {
		log.WithError(errUpdate).WithField("user_id", user.ID).Warn("last login update failed")
	}
	user.LastLogin = &now

	s.audit.Record(ctx, audit.Entry{
		ActorID: user.ID,
		Actor:   user.Email,
		Action:  action,
		IP:      ip,
	})
	return &LoginResult{Token: token, User: user}, nil
}

// recordFailure increments the lockout counter and writes the audit row
// for a failed attempt.
func (s *Service) recordFailure(ctx context.Context, key string, entry audit.Entry) {
	locked, errFail := s.lockout.Fail(ctx, key)
	if errFail != nil {
		log.WithError(errFail).Warn("lockout update failed")
	}
	s.audit.Record(ctx, entry)
	if locked {
		s.audit.Record(ctx, audit.Entry{
			ActorID:  entry.ActorID,
			Actor:    entry.Actor,
			Action:   audit.ActionLockout,
			Severity: models.AuditCritical,
			IP:       entry.IP,
		})
	}
}

// lockKey builds a lockout counter key from scope, subject and address.
func lockKey(scope, subject, ip string) string {
	return fmt.Sprintf("%s:%s|%s", scope, subject, ip)
}
