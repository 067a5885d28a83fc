// Package auth issues and verifies staff bearer tokens.
package auth

import (
	"errors"
	"strings"
)

var (
	ErrAuthDisabled       = errors.New("staff authentication disabled")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrNotStaff           = errors.New("token does not grant staff access")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Staff roles.
const (
	RoleAdmin      = "admin"
	RoleInstructor = "instructor"
	RoleMember     = "member"
)

// Identity is the verified holder of a token.
type Identity struct {
	Subject string `json:"subject"`
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
	Role    string `json:"role,omitempty"`
}

// IsStaff reports whether the identity may answer visitor chats.
func (i Identity) IsStaff() bool {
	switch strings.ToLower(i.Role) {
	case RoleAdmin, RoleInstructor:
		return true
	}
	return false
}
