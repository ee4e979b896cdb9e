package auth

import (
	"context"
	"testing"
	"time"

	"github.com/rjsadow/rfbgo/internal/db"
	"github.com/rjsadow/rfbgo/internal/db/dbtest"
)

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	database := dbtest.NewTestDB(t)
	p, err := NewProvider(database, Config{Secret: "0123456789abcdef0123456789abcdef"})
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	return p
}

func seedUser(t *testing.T, p *Provider, username, password string, roles []string) *db.User {
	t.Helper()
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	u := &db.User{ID: "u-" + username, Username: username, PasswordHash: hash, Roles: roles}
	if err := p.database.CreateUser(u); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	return u
}

func TestNewProvider_RejectsShortSecret(t *testing.T) {
	if _, err := NewProvider(nil, Config{Secret: "too-short"}); err == nil {
		t.Fatal("expected error for short secret")
	}
}

func TestLoginWithCredentials_WrongPassword(t *testing.T) {
	p := newTestProvider(t)
	seedUser(t, p, "alice", "correct-horse", []string{"user"})

	if _, err := p.LoginWithCredentials(context.Background(), "alice", "wrong"); err == nil {
		t.Fatal("expected error for wrong password")
	}
}

func TestLoginWithCredentials_UnknownUser(t *testing.T) {
	p := newTestProvider(t)
	if _, err := p.LoginWithCredentials(context.Background(), "ghost", "whatever"); err == nil {
		t.Fatal("expected error for unknown user")
	}
}

func TestLoginThenAuthenticate_RoundTrip(t *testing.T) {
	p := newTestProvider(t)
	seedUser(t, p, "alice", "correct-horse", []string{"user"})

	login, err := p.LoginWithCredentials(context.Background(), "alice", "correct-horse")
	if err != nil {
		t.Fatalf("LoginWithCredentials() error = %v", err)
	}
	if login.AccessToken == "" || login.RefreshToken == "" {
		t.Fatal("expected non-empty tokens")
	}

	result, err := p.Authenticate(context.Background(), login.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if !result.Authenticated {
		t.Fatalf("expected authenticated result, message = %q", result.Message)
	}
	if result.Identity.Username != "alice" {
		t.Errorf("Identity.Username = %q, want alice", result.Identity.Username)
	}
}

func TestAuthenticate_RejectsRefreshTokenAsAccess(t *testing.T) {
	p := newTestProvider(t)
	seedUser(t, p, "alice", "correct-horse", []string{"user"})
	login, err := p.LoginWithCredentials(context.Background(), "alice", "correct-horse")
	if err != nil {
		t.Fatalf("LoginWithCredentials() error = %v", err)
	}

	result, err := p.Authenticate(context.Background(), login.RefreshToken)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if result.Authenticated {
		t.Fatal("expected refresh token to be rejected as an access token")
	}
}

func TestRefreshAccessToken_IssuesNewAccessToken(t *testing.T) {
	p := newTestProvider(t)
	seedUser(t, p, "alice", "correct-horse", []string{"user"})
	login, err := p.LoginWithCredentials(context.Background(), "alice", "correct-horse")
	if err != nil {
		t.Fatalf("LoginWithCredentials() error = %v", err)
	}

	refreshed, err := p.RefreshAccessToken(context.Background(), login.RefreshToken)
	if err != nil {
		t.Fatalf("RefreshAccessToken() error = %v", err)
	}
	result, err := p.Authenticate(context.Background(), refreshed.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if !result.Authenticated {
		t.Fatal("expected refreshed access token to authenticate")
	}
}

func TestHasPermission_AdminBypassesAll(t *testing.T) {
	p := newTestProvider(t)
	admin := seedUser(t, p, "root", "hunter2", []string{"admin"})

	ok, err := p.HasPermission(context.Background(), admin.ID, "anything")
	if err != nil {
		t.Fatalf("HasPermission() error = %v", err)
	}
	if !ok {
		t.Fatal("expected admin to have all permissions")
	}
}

func TestHasPermission_NonAdminDeniedAdminPermission(t *testing.T) {
	p := newTestProvider(t)
	user := seedUser(t, p, "bob", "hunter2", []string{"user"})

	ok, err := p.HasPermission(context.Background(), user.ID, "admin")
	if err != nil {
		t.Fatalf("HasPermission() error = %v", err)
	}
	if ok {
		t.Fatal("expected non-admin to be denied the admin permission")
	}
}

func TestAuthenticate_EmptyToken(t *testing.T) {
	p := newTestProvider(t)
	result, err := p.Authenticate(context.Background(), "")
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if result.Authenticated {
		t.Fatal("expected empty token to be rejected")
	}
}

func TestAuthenticate_ExpiredToken(t *testing.T) {
	database := dbtest.NewTestDB(t)
	p, err := NewProvider(database, Config{Secret: "0123456789abcdef0123456789abcdef", AccessExpiry: -time.Minute})
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	seedUser(t, p, "alice", "correct-horse", []string{"user"})
	login, err := p.LoginWithCredentials(context.Background(), "alice", "correct-horse")
	if err != nil {
		t.Fatalf("LoginWithCredentials() error = %v", err)
	}

	result, err := p.Authenticate(context.Background(), login.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if result.Authenticated {
		t.Fatal("expected expired token to be rejected")
	}
}
