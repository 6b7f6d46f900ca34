package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session cookie names. The two token kinds differ only by the
// two_factor_verified claim and the cookie that carries them.
const (
	// SessionCookieName carries a fully-verified session token.
	SessionCookieName = "admin-session"
	// TempSessionCookieName carries a pre-2FA pending token.
	TempSessionCookieName = "admin-temp-session"
)

// Session token lifetimes.
const (
	// SessionTokenTTL is the lifetime of a fully-verified session token.
	SessionTokenTTL = 24 * time.Hour
	// PendingTokenTTL is the lifetime of a pre-2FA pending token.
	PendingTokenTTL = 10 * time.Minute
)

// Token validation errors.
var (
	// ErrInvalidToken indicates a token is malformed or fails validation.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken indicates a token has expired.
	ErrExpiredToken = errors.New("token expired")
)

// SessionClaims defines JWT claims carried by admin session cookies.
type SessionClaims struct {
	UserID            uint64 `json:"user_id"`
	Email             string `json:"email"`
	Role              string `json:"role"`
	TwoFactorVerified bool   `json:"two_factor_verified,omitempty"`
	jwt.RegisteredClaims
}

// IssueSessionToken signs a fully-verified session token.
func IssueSessionToken(secret string, userID uint64, email, role string) (string, error) {
	return signSessionToken(secret, userID, email, role, true, SessionTokenTTL)
}

// IssuePendingToken signs a short-lived pending token issued after the
// password check when a second factor is still outstanding.
func IssuePendingToken(secret string, userID uint64, email, role string) (string, error) {
	return signSessionToken(secret, userID, email, role, false, PendingTokenTTL)
}

// signSessionToken builds and signs a session token with the given expiry.
func signSessionToken(secret string, userID uint64, email, role string, verified bool, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := SessionClaims{
		UserID:            userID,
		Email:             email,
		Role:              role,
		TwoFactorVerified: verified,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseSessionToken validates a session token and returns its claims.
// Every structural or cryptographic failure maps to ErrInvalidToken or
// ErrExpiredToken so callers treat absent and invalid alike.
func ParseSessionToken(secret string, tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
