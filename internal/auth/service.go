// Package auth verifies the bearer tokens that identify calling accounts.
// Tokens are issued by the identity provider in front of the engine; Issue
// exists for development and tests.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/felixgeelhaar/trilhas/internal/domain"
)

// RoleAdmin grants access to the administrative operations.
const RoleAdmin = "admin"

var (
	ErrMissingToken = fmt.Errorf("missing bearer token: %w", domain.ErrUnauthorized)
	ErrInvalidToken = fmt.Errorf("invalid token: %w", domain.ErrUnauthorized)
)

// Claims are the token claims the engine reads. Subject is the account id.
type Claims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller.
type Principal struct {
	AccountID string
	Roles     []string
}

// IsAdmin reports whether the caller holds the admin role.
func (p Principal) IsAdmin() bool {
	for _, r := range p.Roles {
		if r == RoleAdmin {
			return true
		}
	}
	return false
}

// Service signs and verifies HS256 tokens.
type Service struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewService creates a token service. An empty issuer accepts any issuer.
func NewService(secret, issuer string) *Service {
	return &Service{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Verify parses a raw token and returns its principal. The subject must be
// a UUID.
func (s *Service) Verify(raw string) (Principal, error) {
	if raw == "" {
		return Principal{}, ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: subject is not an account id", ErrInvalidToken)
	}
	return Principal{AccountID: id.String(), Roles: claims.Roles}, nil
}

// FromHeader extracts and verifies the token of an Authorization header.
func (s *Service) FromHeader(header string) (Principal, error) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return Principal{}, ErrMissingToken
	}
	return s.Verify(strings.TrimSpace(token))
}

// Issue signs a token for accountID valid for ttl.
func (s *Service) Issue(accountID string, ttl time.Duration, roles ...string) (string, error) {
	if _, err := uuid.Parse(accountID); err != nil {
		return "", errors.Join(domain.ErrInvalidID, err)
	}
	now := s.now()
	claims := &Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
