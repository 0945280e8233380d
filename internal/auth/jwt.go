// Package auth provides bearer token validation for subject-scoped rate
// limiting and audit attribution.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenExpiry is the lifetime of issued tokens.
const DefaultTokenExpiry = 15 * time.Minute

// DefaultLeeway tolerates clock skew during validation.
const DefaultLeeway = 30 * time.Second

// ErrInvalidToken is returned when token validation fails.
var ErrInvalidToken = errors.New("invalid token")

// ErrExpiredToken is returned when the token has expired.
var ErrExpiredToken = errors.New("token has expired")

// ErrEmptySubject is returned when a token is requested for an empty subject.
var ErrEmptySubject = errors.New("subject cannot be empty")

// Claims are the JWT claims this service issues and accepts. Only the
// registered subject/expiry claims matter for identity resolution.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenService signs and validates HS256 bearer tokens with a single shared
// secret.
type TokenService struct {
	secret []byte
	leeway time.Duration
}

// NewTokenService creates a token service with the default leeway.
func NewTokenService(secret string) *TokenService {
	return &TokenService{secret: []byte(secret), leeway: DefaultLeeway}
}

// NewTokenServiceWithLeeway creates a token service with custom leeway.
func NewTokenServiceWithLeeway(secret string, leeway time.Duration) *TokenService {
	return &TokenService{secret: []byte(secret), leeway: leeway}
}

// Generate issues a token for the given subject.
func (s *TokenService) Generate(subject string) (string, error) {
	if subject == "" {
		return "", ErrEmptySubject
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(DefaultTokenExpiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses and validates a token, returning its claims.
func (s *TokenService) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithLeeway(s.leeway))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
