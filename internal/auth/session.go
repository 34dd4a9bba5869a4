package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidSession = errors.New("invalid session token")
	ErrBadCredentials = errors.New("invalid email or password")
)

// Denylist remembers revoked token ids for the remainder of their lifetime.
type Denylist interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	Revoked(ctx context.Context, jti string) (bool, error)
}

// Sessions issues and validates admin session tokens. Expiry is always
// checked against the injected clock before the token is trusted.
type Sessions struct {
	Secret   []byte
	MaxAge   time.Duration
	Denylist Denylist         // optional
	Now      func() time.Time // nil means time.Now
}

func (s *Sessions) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Sessions) Issue(email string) (token string, expiresAt time.Time, err error) {
	now := s.now()
	expiresAt = now.Add(s.MaxAge)
	claims := jwt.RegisteredClaims{
		Subject:   email,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Secret)
	return token, expiresAt, err
}

// Validate returns the admin email carried by a live, unrevoked token.
func (s *Sessions) Validate(ctx context.Context, token string) (string, error) {
	claims, err := s.parse(token)
	if err != nil {
		return "", err
	}
	if s.Denylist != nil {
		revoked, err := s.Denylist.Revoked(ctx, claims.ID)
		if err != nil {
			return "", fmt.Errorf("check denylist: %w", err)
		}
		if revoked {
			return "", fmt.Errorf("%w: revoked", ErrInvalidSession)
		}
	}
	return claims.Subject, nil
}

// Revoke denylists a token's id until it would have expired on its own.
func (s *Sessions) Revoke(ctx context.Context, token string) error {
	claims, err := s.parse(token)
	if err != nil {
		// already invalid, nothing to revoke
		return nil
	}
	if s.Denylist == nil {
		return nil
	}
	return s.Denylist.Revoke(ctx, claims.ID, claims.ExpiresAt.Sub(s.now()))
}

func (s *Sessions) parse(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) { return s.Secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	return claims, nil
}

// CheckCredentials compares a login attempt against the configured admin
// identity. The password hash is bcrypt; the email compare is constant time.
func CheckCredentials(email, password, adminEmail, passwordHash string) error {
	emailOK := subtle.ConstantTimeCompare([]byte(email), []byte(adminEmail)) == 1
	passErr := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password))
	if !emailOK || passErr != nil {
		return ErrBadCredentials
	}
	return nil
}
