package jwt

import (
	"errors"
	"testing"
	"time"
)

func TestHMACService_IssueAndValidate(t *testing.T) {
	s := NewHMACService("secret", time.Hour)
	tok, err := s.Issue("ext-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	c, err := s.Validate(tok)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if c.ClientID != "ext-1" || c.Subject != "ext-1" || c.TokenType != TokenTypeExtension {
		t.Fatalf("unexpected claims: %+v", c)
	}
}

func TestHMACService_BlankClientGetsID(t *testing.T) {
	s := NewHMACService("secret", 0)
	tok, err := s.Issue("  ")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	c, err := s.Validate(tok)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if c.ClientID == "" {
		t.Fatalf("expected generated client id")
	}
	if c.ExpiresAt != nil {
		t.Fatalf("expected no expiry")
	}
}

func TestHMACService_Expired(t *testing.T) {
	s := NewHMACService("secret", time.Minute)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	tok, err := s.Issue("ext")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	s.now = func() time.Time { return base.Add(2 * time.Minute) }
	if _, err := s.Validate(tok); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
}

func TestHMACService_WrongSecret(t *testing.T) {
	tok, err := NewHMACService("one", time.Hour).Issue("ext")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := NewHMACService("two", time.Hour).Verify(tok); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected invalid, got %v", err)
	}
	if err := NewHMACService("", time.Hour).Verify(tok); !errors.Is(err, ErrNoSecret) {
		t.Fatalf("expected no secret, got %v", err)
	}
}
