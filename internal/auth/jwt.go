// Package auth issues and verifies session tokens, hashes passwords, and
// talks to external identity providers.
//
// SESSION FLOW OVERVIEW:
//  1. A login path (password, provider callback, registration, profile setup)
//     resolves a user record.
//  2. TokenService.Issue embeds a Snapshot of that user in a signed JWT.
//  3. The client sends it back as "Authorization: Bearer <token>".
//  4. RequireAuth verifies the signature and expiry and puts the Snapshot in
//     the request context. No database lookup happens.
//
// STATELESS TOKENS:
// Everything the API needs about the caller is in the signed payload, so the
// server keeps no session table. The cost is that a snapshot can be stale
// relative to the row (a token minted before profile setup still says
// "incomplete"); profile setup re-mints a token for exactly that reason.
// There is no revocation: a token is valid until it expires.
//
// JWT STRUCTURE (three base64url parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header:    {"alg":"HS256","typ":"JWT"}
//	- Payload:   {"user":{...snapshot...},"sub":"<id>","iss":"petadopt","iat":..,"exp":..}
//	- Signature: HMAC-SHA256(header+"."+payload, secret)
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sakif/petadopt/internal/apperror"
	"github.com/sakif/petadopt/internal/model"
)

// DefaultTokenTTL is the validity window of a session token.
const DefaultTokenTTL = 7 * 24 * time.Hour

const issuer = "petadopt"

// Error messages returned to clients by Verify.
const (
	msgTokenRequired = "Access token required"
	msgTokenInvalid  = "Invalid or expired token"
)

// TokenService handles JWT creation and validation.
//
// It holds the HMAC secret used to sign and verify tokens. The same secret
// must be used for both operations; rotating it invalidates every session.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService with the given secret and lifetime.
// A non-positive ttl falls back to DefaultTokenTTL.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// TTL reports how long newly issued tokens stay valid.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// claims is the JWT payload: the user snapshot plus the registered claims.
// "sub" duplicates the snapshot id so generic JWT tooling can read it.
type claims struct {
	User model.Snapshot `json:"user"`
	jwt.RegisteredClaims
}

// Issue signs a token carrying snap, valid for the service TTL.
func (s *TokenService) Issue(snap model.Snapshot) (string, error) {
	return s.IssueWithDuration(snap, s.ttl)
}

// IssueWithDuration signs a token with a custom lifetime.
// Tests use a negative duration to mint already-expired tokens.
func (s *TokenService) IssueWithDuration(snap model.Snapshot, d time.Duration) (string, error) {
	if snap.ID == "" {
		return "", fmt.Errorf("auth: cannot issue token for user without id")
	}

	now := time.Now()
	c := claims{
		User: snap,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   snap.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Verify parses and checks a token string and returns the embedded snapshot.
//
// VALIDATION CHECKS (performed by the jwt library):
//   - Signature is valid (payload and signature untouched)
//   - Token is not expired, and "exp" is present at all
//   - Issuer is "petadopt"
//   - Algorithm is HS256 (blocks "alg":"none" and RS/HS confusion)
//
// Errors:
//   - empty token                 → apperror.Unauthorized (401)
//   - anything else that is wrong → apperror.Forbidden (403)
func (s *TokenService) Verify(tokenStr string) (*model.Snapshot, error) {
	if tokenStr == "" {
		return nil, apperror.Unauthorized(msgTokenRequired)
	}

	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, apperror.Forbidden(msgTokenInvalid)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return nil, apperror.Forbidden(msgTokenInvalid)
	}

	if c.User.ID == "" || c.User.ID != c.Subject {
		return nil, apperror.Forbidden(msgTokenInvalid)
	}

	snap := c.User
	return &snap, nil
}
