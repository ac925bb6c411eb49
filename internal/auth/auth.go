// Package auth consumes already-authenticated principals and verifies the
// fresh credential proof the restore engine demands.
//
// Identity issuance and session management live outside the control plane;
// this package only parses the bearer token it is handed, derives the
// principal's role, and checks freshly supplied credentials against the
// configured administrative secret.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/giftkeep/giftkeep/internal/fault"
)

// Role is a principal's capability level.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleViewer Role = "viewer"
)

// Principal is an authenticated caller.
type Principal struct {
	Subject string
	Role    Role
}

// IsAdmin reports whether the principal holds the administrative role.
func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// RequireAdmin rejects principals without the administrative role.
func RequireAdmin(p Principal) error {
	if !p.IsAdmin() {
		return fault.NewAuthorization(fault.CodeForbidden,
			"subject %q lacks the administrative role", p.Subject)
	}
	return nil
}

// TokenParser validates HS256 bearer tokens and extracts the principal.
type TokenParser struct {
	secret []byte
}

// NewTokenParser creates a parser over the shared signing secret.
func NewTokenParser(secret string) *TokenParser {
	return &TokenParser{secret: []byte(secret)}
}

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Parse validates the token signature and expiry and returns the principal.
func (t *TokenParser) Parse(tokenString string) (Principal, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil || !token.Valid {
		return Principal{}, fault.NewAuthorization(fault.CodeForbidden, "invalid bearer token")
	}
	if c.Subject == "" {
		return Principal{}, fault.NewAuthorization(fault.CodeForbidden, "token has no subject")
	}
	return Principal{Subject: c.Subject, Role: Role(c.Role)}, nil
}

// Mint issues a token for subject with the given role. Used by the CLI and
// by tests; production deployments are expected to bring their own issuer.
func (t *TokenParser) Mint(subject string, role Role, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(t.secret)
}

// Verifier checks freshly supplied credentials for the most destructive
// operations. A valid session token is deliberately NOT enough: restore
// demands the credential itself, so a stolen idle session cannot wipe the
// data set.
type Verifier struct {
	credentialHash string
}

// NewVerifier creates a Verifier over a bcrypt hash of the administrative
// credential. An empty hash fails every check.
func NewVerifier(credentialHash string) *Verifier {
	return &Verifier{credentialHash: credentialHash}
}

// VerifyProof compares proof against the configured credential hash.
func (v *Verifier) VerifyProof(_ context.Context, proof string) error {
	if v.credentialHash == "" {
		return fault.NewAuthorization(fault.CodeReauthFailed,
			"no administrative credential is configured")
	}
	if proof == "" {
		return fault.NewAuthorization(fault.CodeReauthFailed, "credential proof is required")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(v.credentialHash), []byte(proof)); err != nil {
		return fault.NewAuthorization(fault.CodeReauthFailed, "credential rejected")
	}
	return nil
}

// HashCredential produces the bcrypt hash stored in configuration.
func HashCredential(credential string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(credential), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash credential: %w", err)
	}
	return string(b), nil
}
