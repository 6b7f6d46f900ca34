package session

import (
	"encoding/binary"
	"encoding/json"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/verdantbox/admin-api/internal/models"
)

// webAuthnUser adapts an admin user and its credential rows to the
// go-webauthn user interfaces.
type webAuthnUser struct {
	id          uint64
	email       string
	credentials []webauthn.Credential
}

// WebAuthnID returns the admin user ID as a byte slice.
func (u webAuthnUser) WebAuthnID() []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, u.id)
	return buf
}

// WebAuthnName returns the admin email.
func (u webAuthnUser) WebAuthnName() string {
	return u.email
}

// WebAuthnDisplayName returns the admin display name.
func (u webAuthnUser) WebAuthnDisplayName() string {
	return u.email
}

// WebAuthnCredentials returns registered credentials.
func (u webAuthnUser) WebAuthnCredentials() []webauthn.Credential {
	return u.credentials
}

// newWebAuthnUser builds a WebAuthn adapter from an admin user and its
// stored credential rows.
func newWebAuthnUser(user models.AdminUser, rows []models.WebAuthnCredential) webAuthnUser {
	adapted := webAuthnUser{
		id:    user.ID,
		email: user.Email,
	}
	for _, row := range rows {
		credential := webauthn.Credential{
			ID:        row.CredentialID,
			PublicKey: row.PublicKey,
			Flags: webauthn.CredentialFlags{
				BackupEligible: row.BackupEligible,
				BackupState:    row.BackupState,
			},
			Authenticator: webauthn.Authenticator{
				AAGUID:    row.AAGUID,
				SignCount: row.SignCount,
			},
		}
		if len(row.Transports) > 0 {
			var transports []protocol.AuthenticatorTransport
			if errUnmarshal := json.Unmarshal(row.Transports, &transports); errUnmarshal == nil {
				credential.Transport = transports
			}
		}
		adapted.credentials = append(adapted.credentials, credential)
	}
	return adapted
}
