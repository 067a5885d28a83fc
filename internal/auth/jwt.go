package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTService handles token signing and verification.
type JWTService struct {
	secret []byte
	expiry time.Duration
}

// NewJWTService builds a JWT helper with the given secret and expiry. An
// empty secret disables both signing and verification.
func NewJWTService(secret string, expiry time.Duration) *JWTService {
	return &JWTService{secret: []byte(secret), expiry: expiry}
}

// Claims mirrors the payload the portal's login has always issued
// ({email, isAdmin}) plus an explicit role.
type Claims struct {
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
	Role    string `json:"role,omitempty"`
	IsAdmin bool   `json:"isAdmin,omitempty"`
	jwt.RegisteredClaims
}

// Generate issues a signed token for identity.
func (s *JWTService) Generate(identity Identity) (string, error) {
	if s == nil || len(s.secret) == 0 {
		return "", ErrAuthDisabled
	}
	subject := strings.TrimSpace(identity.Subject)
	if subject == "" {
		subject = strings.TrimSpace(identity.Email)
	}
	if subject == "" {
		return "", errors.New("subject required")
	}

	now := time.Now()
	claims := Claims{
		Email:   strings.TrimSpace(identity.Email),
		Name:    strings.TrimSpace(identity.Name),
		Role:    strings.ToLower(strings.TrimSpace(identity.Role)),
		IsAdmin: strings.EqualFold(identity.Role, RoleAdmin),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subject,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if s.expiry > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.expiry))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify parses and validates a token and returns its identity.
func (s *JWTService) Verify(token string) (Identity, error) {
	if s == nil || len(s.secret) == 0 {
		return Identity{}, ErrAuthDisabled
	}

	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return Identity{}, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return Identity{}, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}

	identity := Identity{
		Subject: strings.TrimSpace(claims.Subject),
		Email:   strings.TrimSpace(claims.Email),
		Name:    strings.TrimSpace(claims.Name),
		Role:    strings.ToLower(strings.TrimSpace(claims.Role)),
	}
	if identity.Subject == "" {
		identity.Subject = identity.Email
	}
	if identity.Subject == "" {
		return Identity{}, ErrInvalidToken
	}
	if identity.Role == "" && claims.IsAdmin {
		identity.Role = RoleAdmin
	}
	return identity, nil
}

// VerifyStaff verifies token and requires a staff role.
func (s *JWTService) VerifyStaff(token string) (Identity, error) {
	identity, err := s.Verify(token)
	if err != nil {
		return Identity{}, err
	}
	if !identity.IsStaff() {
		return Identity{}, ErrNotStaff
	}
	return identity, nil
}
