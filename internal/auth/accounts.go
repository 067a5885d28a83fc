package auth

import (
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// dummyHash keeps the timing of unknown-email logins close to wrong-password ones.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("pta-dummy-password"), bcrypt.MinCost)

// Accounts authenticates staff logins against bcrypt password hashes.
type Accounts struct {
	hashes map[string][]byte
	role   string
}

// NewAccounts takes email -> bcrypt hash pairs. Every account gets role.
func NewAccounts(hashes map[string]string, role string) *Accounts {
	if role == "" {
		role = RoleAdmin
	}
	accounts := &Accounts{hashes: make(map[string][]byte, len(hashes)), role: role}
	for email, hash := range hashes {
		email = normalizeEmail(email)
		if email == "" || hash == "" {
			continue
		}
		accounts.hashes[email] = []byte(strings.TrimSpace(hash))
	}
	return accounts
}

// Len is the number of configured accounts.
func (a *Accounts) Len() int { return len(a.hashes) }

// Authenticate checks the password and returns the staff identity.
func (a *Accounts) Authenticate(email, password string) (Identity, error) {
	email = normalizeEmail(email)
	hash, ok := a.hashes[email]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return Identity{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return Identity{}, ErrInvalidCredentials
	}
	return Identity{Subject: email, Email: email, Role: a.role}, nil
}

// HashPassword returns a bcrypt hash suitable for STAFF_ACCOUNTS.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
