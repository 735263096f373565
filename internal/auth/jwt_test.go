package auth

import (
	"errors"
	"testing"
	"time"
)

func TestTokenManager_RoundTrip(t *testing.T) {
	m := NewTokenManager("test-secret-key-for-testing-only")

	token, err := m.Generate("user-1", "a@example.com", "ADMIN")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	claims, err := m.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if claims.UserID != "user-1" || claims.Email != "a@example.com" || claims.Role != "ADMIN" {
		t.Errorf("Validate() = %+v", claims)
	}
}

func TestTokenManager_Rejects(t *testing.T) {
	m := NewTokenManager("secret-a")
	token, err := m.Generate("user-1", "a@example.com", "USER")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if _, err := NewTokenManager("secret-b").Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("wrong secret: error = %v, want ErrInvalidToken", err)
	}

	later := NewTokenManager("secret-a")
	later.now = func() time.Time { return time.Now().Add(25 * time.Hour) }
	if _, err := later.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired token: error = %v, want ErrInvalidToken", err)
	}

	if _, err := m.Validate("not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("garbage token: error = %v, want ErrInvalidToken", err)
	}
}

func TestTokenManager_RequiresUserID(t *testing.T) {
	if _, err := NewTokenManager("s").Generate("", "a@example.com", "USER"); err == nil {
		t.Error("Generate() should fail without a user ID")
	}
	if _, err := NewTokenManager("").Generate("u", "a@example.com", "USER"); err == nil {
		t.Error("Generate() should fail without a secret")
	}
}
