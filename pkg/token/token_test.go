package token

import (
	"testing"
	"time"
)

func TestSigner_RoundTrip(t *testing.T) {
	s := NewSigner("secret", "goalengine")

	tok, err := s.ServiceToken("user-1")
	if err != nil {
		t.Fatalf("ServiceToken: %v", err)
	}
	if tok == "" {
		t.Fatal("expected a signed token")
	}

	uid, err := s.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if uid != "user-1" {
		t.Errorf("expected user-1, got %s", uid)
	}
}

func TestSigner_Expired(t *testing.T) {
	s := NewSigner("secret", "goalengine")
	issued := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return issued }

	tok, err := s.ServiceToken("user-1")
	if err != nil {
		t.Fatalf("ServiceToken: %v", err)
	}

	s.now = func() time.Time { return issued.Add(time.Hour) }
	if _, err := s.Verify(tok); err == nil {
		t.Error("expected expired token to fail verification")
	}
}

func TestSigner_NoSecret(t *testing.T) {
	tok, err := NewSigner("", "goalengine").ServiceToken("user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok != "" {
		t.Errorf("expected empty token without secret, got %q", tok)
	}
}

func TestSigner_WrongSecret(t *testing.T) {
	tok, _ := NewSigner("secret", "goalengine").ServiceToken("user-1")
	if _, err := NewSigner("other", "goalengine").Verify(tok); err == nil {
		t.Error("expected verification with a different secret to fail")
	}
}
