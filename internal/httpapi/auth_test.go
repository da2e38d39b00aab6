package httpapi

import (
	"context"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/floradistro/websitev2-sub022/internal/domain"
	"github.com/floradistro/websitev2-sub022/internal/store"
)

type userStoreStub struct {
	users map[string]domain.User
}

func (s *userStoreStub) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	user, exists := s.users[username]
	if !exists {
		return nil, store.ErrNotFound
	}
	out := user
	return &out, nil
}

func newUserStoreStub(t *testing.T, username string, password string, role string) *userStoreStub {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return &userStoreStub{users: map[string]domain.User{
		username: {
			ID:           "usr-test",
			Username:     username,
			Role:         role,
			PasswordHash: string(hash),
			CreatedAt:    time.Now().UTC(),
		},
	}}
}

func TestLoginIssuesTokenCarryingRole(t *testing.T) {
	users := newUserStoreStub(t, "manager", "manager123", "manager")
	auth := NewAuthManager("test-secret-key", time.Hour, users)

	resp, err := auth.Login(context.Background(), domain.LoginRequest{
		Username: "Manager",
		Password: "manager123",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatalf("expected access token in response")
	}
	if resp.Role != "manager" {
		t.Fatalf("expected manager role, got %q", resp.Role)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Username != "manager" || actor.Role != "manager" {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestLoginWrongPasswordAndUnknownUserLookTheSame(t *testing.T) {
	users := newUserStoreStub(t, "manager", "manager123", "manager")
	auth := NewAuthManager("test-secret-key", time.Hour, users)

	_, errWrongPass := auth.Login(context.Background(), domain.LoginRequest{
		Username: "manager",
		Password: "nope",
	})
	_, errUnknown := auth.Login(context.Background(), domain.LoginRequest{
		Username: "ghost",
		Password: "nope",
	})
	if errWrongPass == nil || errUnknown == nil {
		t.Fatalf("expected both logins to fail")
	}
	if errWrongPass.Error() != errUnknown.Error() {
		t.Fatalf("failure messages must not distinguish unknown users: %q vs %q", errWrongPass, errUnknown)
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	users := newUserStoreStub(t, "manager", "manager123", "manager")
	issuer := NewAuthManager("issuer-secret", time.Hour, users)
	verifier := NewAuthManager("other-secret", time.Hour, users)

	resp, err := issuer.Login(context.Background(), domain.LoginRequest{
		Username: "manager",
		Password: "manager123",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	users := newUserStoreStub(t, "cashier", "cashier123", "cashier")
	auth := NewAuthManager("test-secret-key", time.Hour, users)

	token, err := auth.sign("cashier", "cashier", time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if _, err := auth.ParseToken(token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	auth := NewAuthManager("test-secret-key", time.Hour, &userStoreStub{})
	if _, err := auth.ParseToken("not-a-jwt"); err == nil {
		t.Fatalf("expected malformed token to be rejected")
	}
}
