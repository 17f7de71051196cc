package gateway

import (
	"errors"
	"testing"
	"time"
)

const testSecret = "test-secret-please-rotate"

func TestAuthenticateJWTPath(t *testing.T) {
	t.Parallel()

	a := NewAuthenticator(testSecret, "", "")

	token, err := IssueToken([]byte(testSecret), "user-42", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	userID, err := a.Authenticate(token, "user-42")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if userID != "user-42" {
		t.Errorf("expected user-42, got %q", userID)
	}
}

func TestAuthenticateTakesIdentityFromTokenNotClient(t *testing.T) {
	t.Parallel()

	a := NewAuthenticator(testSecret, "", "")

	token, err := IssueToken([]byte(testSecret), "user-42", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	// The client claims a different identity; the verified subject wins.
	userID, err := a.Authenticate(token, "someone-else")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if userID != "user-42" {
		t.Errorf("expected the token subject user-42, got %q", userID)
	}
}

func TestAuthenticateDemoPath(t *testing.T) {
	t.Parallel()

	a := NewAuthenticator("", "demo-token", "demo-user")

	userID, err := a.Authenticate("demo-token", "whoever")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if userID != "demo-user" {
		t.Errorf("expected the bound demo identity, got %q", userID)
	}
}

func TestAuthenticateRejections(t *testing.T) {
	t.Parallel()

	valid, err := IssueToken([]byte(testSecret), "user-42", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	expired, err := IssueToken([]byte(testSecret), "user-42", -time.Minute)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	wrongKey, err := IssueToken([]byte("other-secret"), "user-42", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	noSubject, err := IssueToken([]byte(testSecret), "", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	a := NewAuthenticator(testSecret, "demo-token", "demo-user")

	tests := []struct {
		name    string
		token   string
		claimed string
		wantErr error
	}{
		{"missing credential", "", "user-42", ErrMissingCredential},
		{"missing identity", valid, "", ErrMissingIdentity},
		{"garbage token", "not-a-jwt", "user-42", ErrInvalidToken},
		{"wrong signing key", wrongKey, "user-42", ErrInvalidToken},
		{"expired token", expired, "user-42", ErrExpiredToken},
		{"empty subject", noSubject, "user-42", ErrMissingIdentity},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := a.Authenticate(tt.token, tt.claimed)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestAuthenticateJWTDisabledWithoutSecret(t *testing.T) {
	t.Parallel()

	// Only the demo path is configured; a structurally valid JWT must not
	// pass verification against an empty secret.
	a := NewAuthenticator("", "demo-token", "demo-user")

	token, err := IssueToken([]byte(testSecret), "user-42", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	if _, err := a.Authenticate(token, "user-42"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}
