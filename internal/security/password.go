package security

import "golang.org/x/crypto/bcrypt"

// bcryptCost defines the bcrypt work factor.
const bcryptCost = 12

// dummyHash is a valid bcrypt hash of an unguessable random string. It
// is compared against when a login targets an unknown email so the
// request costs one hash comparison either way.
const dummyHash = "$2a$12$5Cw7nHLLpMZCw4vPffBJhuLWuRBnUuEcKQPtiPcfSUzSW21pJxXx6"

// HashPassword hashes a plaintext password using bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares a bcrypt hash with a plaintext password.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// BurnPasswordCheck performs a bcrypt comparison against a dummy hash.
// Called on the unknown-user login path to keep timing uniform.
func BurnPasswordCheck(password string) {
	_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
}
