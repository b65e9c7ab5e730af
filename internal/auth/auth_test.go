package auth

import (
	"context"
	"testing"
	"time"

	"shopledger/backend/internal/domain"
	"shopledger/backend/internal/store/memory"
)

func newTestManager(t *testing.T, ttl time.Duration) *Manager {
	t.Helper()
	mgr, err := NewManager("test-secret-key-0123456789abcdef", ttl, memory.New(), LogNotifier{})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return mgr
}

func TestNewManagerRejectsEmptySecret(t *testing.T) {
	if _, err := NewManager("", time.Hour, memory.New(), LogNotifier{}); err == nil {
		t.Fatalf("expected empty secret to be rejected")
	}
}

func TestSignupThenSigninRoundTrip(t *testing.T) {
	mgr := newTestManager(t, time.Hour)
	ctx := context.Background()

	signup, err := mgr.Signup(ctx, domain.SignupRequest{
		BusinessName: "Corner Shop",
		Username:     "alice",
		Password:     "secret1",
	})
	if err != nil {
		t.Fatalf("signup failed: %v", err)
	}
	if signup.UserID == "" || signup.BusinessID == "" {
		t.Fatalf("expected identifiers in signup response, got %+v", signup)
	}
	if signup.Message == "" {
		t.Fatalf("expected a signup message")
	}

	signin, err := mgr.Signin(ctx, domain.SigninRequest{
		Username: "alice",
		Password: "secret1",
	})
	if err != nil {
		t.Fatalf("signin failed: %v", err)
	}
	if signin.AccessToken == "" {
		t.Fatalf("expected access token")
	}
	if signin.TokenType != "bearer" {
		t.Fatalf("expected bearer token type, got %s", signin.TokenType)
	}
	if signin.BusinessID != signup.BusinessID {
		t.Fatalf("expected business %s, got %s", signup.BusinessID, signin.BusinessID)
	}

	identity, err := mgr.ParseToken(signin.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if identity.UserID != signup.UserID || identity.BusinessID != signup.BusinessID {
		t.Fatalf("token identity mismatch: %+v", identity)
	}
	if identity.Username != "alice" {
		t.Fatalf("expected username alice, got %s", identity.Username)
	}
}

func TestSignupRejectsDuplicateUsername(t *testing.T) {
	mgr := newTestManager(t, time.Hour)
	ctx := context.Background()

	_, err := mgr.Signup(ctx, domain.SignupRequest{
		BusinessName: "Shop A",
		Username:     "alice",
		Password:     "secret1",
	})
	if err != nil {
		t.Fatalf("first signup failed: %v", err)
	}

	_, err = mgr.Signup(ctx, domain.SignupRequest{
		BusinessName: "Shop B",
		Username:     "alice",
		Password:     "another1",
	})
	if err == nil {
		t.Fatalf("expected duplicate username to fail")
	}
}

func TestSignupValidation(t *testing.T) {
	mgr := newTestManager(t, time.Hour)
	ctx := context.Background()

	cases := []domain.SignupRequest{
		{BusinessName: "", Username: "alice", Password: "secret1"},
		{BusinessName: "Shop", Username: "al", Password: "secret1"},
		{BusinessName: "Shop", Username: "has space", Password: "secret1"},
		{BusinessName: "Shop", Username: "alice", Password: "short"},
	}
	for _, req := range cases {
		if _, err := mgr.Signup(ctx, req); err == nil {
			t.Fatalf("expected signup to fail for %+v", req)
		}
	}
}

func TestSigninFailuresAreIndistinguishable(t *testing.T) {
	mgr := newTestManager(t, time.Hour)
	ctx := context.Background()

	_, err := mgr.Signup(ctx, domain.SignupRequest{
		BusinessName: "Shop",
		Username:     "alice",
		Password:     "secret1",
	})
	if err != nil {
		t.Fatalf("signup failed: %v", err)
	}

	_, wrongPassword := mgr.Signin(ctx, domain.SigninRequest{Username: "alice", Password: "wrong-1"})
	_, unknownUser := mgr.Signin(ctx, domain.SigninRequest{Username: "nobody", Password: "secret1"})
	if wrongPassword == nil || unknownUser == nil {
		t.Fatalf("expected both signin attempts to fail")
	}
	if wrongPassword.Error() != unknownUser.Error() {
		t.Fatalf("expected identical errors, got %q vs %q", wrongPassword, unknownUser)
	}
}

func TestForgotPasswordNeverRevealsAccounts(t *testing.T) {
	mgr := newTestManager(t, time.Hour)
	ctx := context.Background()

	_, err := mgr.Signup(ctx, domain.SignupRequest{
		BusinessName: "Shop",
		Username:     "alice",
		Password:     "secret1",
	})
	if err != nil {
		t.Fatalf("signup failed: %v", err)
	}

	known := mgr.ForgotPassword(ctx, "alice")
	unknown := mgr.ForgotPassword(ctx, "nobody")
	if known.Message != unknown.Message {
		t.Fatalf("expected identical messages, got %q vs %q", known.Message, unknown.Message)
	}
	if known.Message == "" {
		t.Fatalf("expected a non-empty message")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	mgr := newTestManager(t, -time.Minute)
	ctx := context.Background()

	_, err := mgr.Signup(ctx, domain.SignupRequest{
		BusinessName: "Shop",
		Username:     "alice",
		Password:     "secret1",
	})
	if err != nil {
		t.Fatalf("signup failed: %v", err)
	}

	signin, err := mgr.Signin(ctx, domain.SigninRequest{Username: "alice", Password: "secret1"})
	if err != nil {
		t.Fatalf("signin failed: %v", err)
	}

	if _, err := mgr.ParseToken(signin.AccessToken); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	mgr := newTestManager(t, time.Hour)

	if _, err := mgr.ParseToken("not-a-token"); err == nil {
		t.Fatalf("expected malformed token to be rejected")
	}
	if _, err := mgr.ParseToken(""); err == nil {
		t.Fatalf("expected empty token to be rejected")
	}
}
