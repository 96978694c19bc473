package server

import (
	"strings"
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	tok, err := issueToken("secret", time.Hour, "user-1", "a@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	userID, email, err := parseToken("secret", tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if userID != "user-1" || email != "a@example.com" {
		t.Errorf("claims = (%q, %q)", userID, email)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	tok, err := issueToken("secret", -time.Minute, "user-1", "a@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, _, err := parseToken("secret", tok); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestWrongSecretRejected(t *testing.T) {
	tok, err := issueToken("secret", time.Hour, "user-1", "a@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, _, err := parseToken("other-secret", tok); err == nil {
		t.Fatal("token with wrong secret accepted")
	}
}

func TestGarbageTokenRejected(t *testing.T) {
	for _, tok := range []string{"", "garbage", strings.Repeat("x.", 50)} {
		if _, _, err := parseToken("secret", tok); err == nil {
			t.Errorf("garbage token %q accepted", tok)
		}
	}
}

func TestIssueTokenRequiresSecret(t *testing.T) {
	if _, err := issueToken("", time.Hour, "user-1", ""); err == nil {
		t.Fatal("expected error without secret")
	}
}
