package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// TOTP parameters.
const (
	// totpSecretSize is the shared-secret length in bytes before base32.
	totpSecretSize = 32
	// totpPeriod is the time-step length in seconds.
	totpPeriod = 30
	// totpSkew is the accepted clock-drift window in steps on each side.
	totpSkew = 2
	// backupCodeCount is how many recovery codes a setup produces.
	backupCodeCount = 10
)

// TOTPSetup holds the artifacts of a fresh TOTP enrollment. The caller
// persists the secret and the hashed codes against the user record; the
// plaintext codes are shown to the operator exactly once.
type TOTPSetup struct {
	Secret          string
	ProvisioningURI string
	BackupCodes     []string
}

// GenerateTOTPSetup creates a new random shared secret and a batch of
// single-use backup codes.
func GenerateTOTPSetup(issuer, accountName string) (*TOTPSetup, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountName,
		SecretSize:  totpSecretSize,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
	})
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}
	codes, err := generateBackupCodes(backupCodeCount)
	if err != nil {
		return nil, err
	}
	return &TOTPSetup{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
		BackupCodes:     codes,
	}, nil
}

// VerifyTOTP validates a 6-digit code against the shared secret. The
// window accepts codes from up to two steps before or after the current
// step to absorb clock drift.
func VerifyTOTP(code, secret string) bool {
	return VerifyTOTPAt(code, secret, time.Now())
}

// VerifyTOTPAt validates a 6-digit code at a given reference time.
func VerifyTOTPAt(code, secret string, at time.Time) bool {
	ok, err := totp.ValidateCustom(code, secret, at, totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// GenerateTOTPCode produces the code for a secret at a given time.
func GenerateTOTPCode(secret string, at time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
}

// generateBackupCodes returns n random 8-digit codes.
func generateBackupCodes(n int) ([]string, error) {
	codes := make([]string, 0, n)
	limit := big.NewInt(100000000)
	for i := 0; i < n; i++ {
		value, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return nil, fmt.Errorf("generate backup code: %w", err)
		}
		codes = append(codes, fmt.Sprintf("%08d", value.Int64()))
	}
	return codes, nil
}

// HashBackupCode hashes a backup code for storage.
func HashBackupCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// MatchBackupCode compares a candidate code against a stored hash in
// constant time.
func MatchBackupCode(code, storedHash string) bool {
	candidate := HashBackupCode(code)
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(storedHash)) == 1
}
