package session

import "errors"

// Authentication failure taxonomy. Handlers collapse these into generic
// denials at the HTTP edge; the distinctions exist for logging and
// audit only.
var (
	// ErrInvalidCredentials covers unknown email and wrong password alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountDisabled indicates the account cannot sign in.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrSecondFactorRequired indicates a verified token was required.
	ErrSecondFactorRequired = errors.New("second factor required")
	// ErrSecondFactorInvalid covers failed TOTP, backup-code and
	// assertion checks.
	ErrSecondFactorInvalid = errors.New("second factor invalid")
	// ErrChallengeNotFound indicates no ceremony is pending for the user.
	ErrChallengeNotFound = errors.New("challenge not found")
	// ErrCredentialNotRecognized indicates no registered credential matched.
	ErrCredentialNotRecognized = errors.New("credential not recognized")
	// ErrLockedOut indicates too many failed attempts.
	ErrLockedOut = errors.New("temporarily locked out")
	// ErrSetupExpired indicates a pending enrollment timed out.
	ErrSetupExpired = errors.New("setup expired")
	// ErrUnsupportedMethod indicates the stored method has no verifier.
	ErrUnsupportedMethod = errors.New("unsupported second-factor method")
)
