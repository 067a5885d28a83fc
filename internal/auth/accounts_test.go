package auth

import (
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestAccountsAuthenticate(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("kihap"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash err: %v", err)
	}
	accounts := NewAccounts(map[string]string{" Coach@PTA.test ": string(hash)}, "")

	identity, err := accounts.Authenticate("coach@pta.test", "kihap")
	if err != nil {
		t.Fatalf("Authenticate err: %v", err)
	}
	if identity.Subject != "coach@pta.test" || !identity.IsStaff() {
		t.Fatalf("unexpected identity: %+v", identity)
	}

	if _, err := accounts.Authenticate("coach@pta.test", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := accounts.Authenticate("nobody@pta.test", "kihap"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestHashPasswordVerifies(t *testing.T) {
	hash, err := HashPassword("poomsae")
	if err != nil {
		t.Fatalf("HashPassword err: %v", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("poomsae")); err != nil {
		t.Fatalf("hash does not verify: %v", err)
	}
}
