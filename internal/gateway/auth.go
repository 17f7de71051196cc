// Package gateway authenticates real-time connections and routes command and
// response events between clients and the assistant pipeline.
package gateway

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Authentication failure reasons. Each maps to a distinguishable rejection
// sent before the connection is accepted.
var (
	ErrMissingCredential = errors.New("auth: missing credential")
	ErrMissingIdentity   = errors.New("auth: missing identity")
	ErrInvalidToken      = errors.New("auth: invalid token")
	ErrExpiredToken      = errors.New("auth: token expired")
)

// Authenticator resolves handshake credentials into a session identity.
// Two paths: a signed bearer token verified against the server secret, and a
// fixed pre-shared demo credential bound to one configured identity for
// clients that cannot obtain a token.
type Authenticator struct {
	secret     []byte
	demoToken  string
	demoUserID string
}

// NewAuthenticator creates an authenticator. Either secret or demoToken may
// be empty, disabling that path.
func NewAuthenticator(secret, demoToken, demoUserID string) *Authenticator {
	return &Authenticator{
		secret:     []byte(secret),
		demoToken:  demoToken,
		demoUserID: demoUserID,
	}
}

// Authenticate resolves the handshake credential into a user identity.
// The resolved identity always comes from the verified token subject or the
// demo binding, never from the client-claimed field: claimedUserID is only
// checked for presence, as required by the handshake contract.
func (a *Authenticator) Authenticate(token, claimedUserID string) (string, error) {
	if token == "" {
		return "", ErrMissingCredential
	}
	if claimedUserID == "" {
		return "", ErrMissingIdentity
	}

	if a.demoToken != "" && token == a.demoToken {
		return a.demoUserID, nil
	}

	if len(a.secret) == 0 {
		return "", ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid {
		return "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", ErrMissingIdentity
	}
	return claims.Subject, nil
}

// IssueToken signs a bearer token for a user. The auth collaborator issues
// these in production; this helper exists for tooling and tests.
func IssueToken(secret []byte, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
