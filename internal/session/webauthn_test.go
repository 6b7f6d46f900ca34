package session

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/verdantbox/admin-api/internal/audit"
	"github.com/verdantbox/admin-api/internal/models"
	"github.com/verdantbox/admin-api/internal/security"
)

func newWebAuthnTestService(t *testing.T) (*Service, models.AdminUser) {
	t.Helper()
	conn := setupSessionDB(t)
	svc := newTestService(t, conn, false)

	rp, errRP := security.NewWebAuthn(security.WebAuthnConfig{
		RPID:    "verdantbox.test",
		Origins: []string{"https://admin.verdantbox.test"},
	})
	if errRP != nil {
		t.Fatalf("webauthn: %v", errRP)
	}
	svc.webAuthn = rp

	user := createTestUser(t, conn, "ops@verdantbox.test", "greenhouse-gravel", nil)
	return svc, user
}

func TestBeginWebAuthnRegistrationProducesChallenge(t *testing.T) {
	svc, user := newWebAuthnTestService(t)

	creation, err := svc.BeginWebAuthnRegistration(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("begin registration: %v", err)
	}
	if len(creation.Response.Challenge) == 0 {
		t.Fatal("empty challenge")
	}
	if creation.Response.RelyingParty.ID != "verdantbox.test" {
		t.Fatalf("rp id = %q", creation.Response.RelyingParty.ID)
	}
}

func TestFinishWebAuthnRegistrationWithoutChallenge(t *testing.T) {
	svc, user := newWebAuthnTestService(t)

	req := httptest.NewRequest("POST", "/api/admin/webauthn/register/verify", bytes.NewBufferString("{}"))
	err := svc.FinishWebAuthnRegistration(context.Background(), user.ID, req, "10.0.0.1")
	if !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("err = %v, want ErrChallengeNotFound", err)
	}
}

func TestBeginWebAuthnLoginRequiresCredentials(t *testing.T) {
	svc, user := newWebAuthnTestService(t)

	_, err := svc.BeginWebAuthnLogin(context.Background(), user.ID)
	if !errors.Is(err, ErrCredentialNotRecognized) {
		t.Fatalf("err = %v, want ErrCredentialNotRecognized", err)
	}
}

func TestFinishWebAuthnLoginWithoutChallenge(t *testing.T) {
	svc, user := newWebAuthnTestService(t)

	// Register a credential row directly so the account has a passkey.
	row := models.WebAuthnCredential{
		AdminUserID:  user.ID,
		CredentialID: []byte("credential-1"),
		PublicKey:    []byte("public-key"),
	}
	if errCreate := svc.db.Create(&row).Error; errCreate != nil {
		t.Fatalf("create credential: %v", errCreate)
	}

	req := httptest.NewRequest("POST", "/api/admin/webauthn/authenticate/verify", bytes.NewBufferString("{}"))
	_, err := svc.FinishWebAuthnLogin(context.Background(), user.ID, req, "10.0.0.1")
	if !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("err = %v, want ErrChallengeNotFound", err)
	}
}

func TestCloneSuspectedOnCounterRegression(t *testing.T) {
	rows := []models.WebAuthnCredential{
		{CredentialID: []byte("credential-1"), SignCount: 10},
		{CredentialID: []byte("counterless"), SignCount: 0},
	}

	cases := []struct {
		name       string
		credential webauthn.Credential
		want       bool
	}{
		{
			name:       "stale counter",
			credential: webauthn.Credential{ID: []byte("credential-1"), Authenticator: webauthn.Authenticator{SignCount: 5}},
			want:       true,
		},
		{
			name:       "replayed counter",
			credential: webauthn.Credential{ID: []byte("credential-1"), Authenticator: webauthn.Authenticator{SignCount: 10}},
			want:       true,
		},
		{
			name:       "advancing counter",
			credential: webauthn.Credential{ID: []byte("credential-1"), Authenticator: webauthn.Authenticator{SignCount: 11}},
			want:       false,
		},
		{
			name:       "library clone warning",
			credential: webauthn.Credential{ID: []byte("credential-1"), Authenticator: webauthn.Authenticator{SignCount: 11, CloneWarning: true}},
			want:       true,
		},
		{
			name:       "authenticator without counter",
			credential: webauthn.Credential{ID: []byte("counterless"), Authenticator: webauthn.Authenticator{SignCount: 0}},
			want:       false,
		},
		{
			name:       "unknown credential",
			credential: webauthn.Credential{ID: []byte("other"), Authenticator: webauthn.Authenticator{SignCount: 1}},
			want:       false,
		},
	}
	for _, tc := range cases {
		if got := cloneSuspected(&tc.credential, rows); got != tc.want {
			t.Errorf("%s: cloneSuspected = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestFinishWebAuthnLoginRejectsBadAssertionAndAudits(t *testing.T) {
	svc, user := newWebAuthnTestService(t)
	ctx := context.Background()

	row := models.WebAuthnCredential{
		AdminUserID:  user.ID,
		CredentialID: []byte("credential-1"),
		PublicKey:    []byte("public-key"),
		SignCount:    10,
	}
	if errCreate := svc.db.Create(&row).Error; errCreate != nil {
		t.Fatalf("create credential: %v", errCreate)
	}

	if _, errBegin := svc.BeginWebAuthnLogin(ctx, user.ID); errBegin != nil {
		t.Fatalf("begin login: %v", errBegin)
	}

	req := httptest.NewRequest("POST", "/api/admin/webauthn/authenticate/verify", bytes.NewBufferString("{}"))
	_, err := svc.FinishWebAuthnLogin(ctx, user.ID, req, "10.0.0.1")
	if !errors.Is(err, ErrSecondFactorInvalid) {
		t.Fatalf("err = %v, want ErrSecondFactorInvalid", err)
	}
	if count := countAuditRows(t, svc.db, audit.ActionSecondFactorFail); count != 1 {
		t.Fatalf("audit rows = %d, want 1", count)
	}
}

func TestWebAuthnChallengeIsSingleUse(t *testing.T) {
	svc, user := newWebAuthnTestService(t)
	ctx := context.Background()

	if _, errBegin := svc.BeginWebAuthnRegistration(ctx, user.ID); errBegin != nil {
		t.Fatalf("begin registration: %v", errBegin)
	}

	sessionData, found, errTake := svc.takeCeremony(ctx, registrationKey(user.ID))
	if errTake != nil {
		t.Fatalf("take: %v", errTake)
	}
	if !found || sessionData == nil {
		t.Fatal("stored ceremony not found")
	}

	_, found, errTake = svc.takeCeremony(ctx, registrationKey(user.ID))
	if errTake != nil {
		t.Fatalf("second take: %v", errTake)
	}
	if found {
		t.Fatal("challenge consumable twice")
	}
}
