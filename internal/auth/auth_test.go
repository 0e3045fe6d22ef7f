package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenIssueAndValidate(t *testing.T) {
	issuer, err := NewTokenIssuer("s3cret", WithIssuer("test-issuer"))
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}

	token, expiresAt, err := issuer.Issue("user-42", 30*time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Fatalf("expected future expiration, got %v", expiresAt)
	}

	claims, err := issuer.ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Subject != "user-42" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if claims.ID == "" {
		t.Fatal("expected jti")
	}
}

func TestTokenRejections(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	issuer, err := NewTokenIssuer("s3cret", WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	token, _, err := issuer.Issue("user-1", time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	other, _ := NewTokenIssuer("different")
	if _, err := other.ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong secret: err=%v", err)
	}

	foreign, _ := NewTokenIssuer("s3cret", WithIssuer("someone-else"), WithClock(func() time.Time { return now }))
	if _, err := foreign.ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong issuer: err=%v", err)
	}

	later, _ := NewTokenIssuer("s3cret", WithClock(func() time.Time { return now.Add(time.Hour) }))
	if _, err := later.ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired: err=%v", err)
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "user-1", Issuer: DefaultIssuer})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := issuer.ParseAndValidate(unsigned); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("alg none: err=%v", err)
	}

	if _, err := issuer.ParseAndValidate("  "); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("blank: err=%v", err)
	}
}

func TestTokenIssuerConfig(t *testing.T) {
	if _, err := NewTokenIssuer(" "); err == nil {
		t.Fatal("expected error for missing secret")
	}
	if _, err := NewTokenIssuer("x", WithTokenTTL(0)); err == nil {
		t.Fatal("expected error for zero ttl")
	}
	issuer, _ := NewTokenIssuer("x")
	if _, _, err := issuer.Issue(" ", 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank user: err=%v", err)
	}
}

func TestUserContext(t *testing.T) {
	ctx := context.Background()
	if _, ok := UserIDFromContext(ctx); ok {
		t.Fatal("expected no user")
	}
	if ContextWithUser(ctx, "  ") != ctx {
		t.Fatal("blank user must not be stored")
	}
	ctx = ContextWithUser(ctx, " u-1 ")
	if id, ok := UserIDFromContext(ctx); !ok || id != "u-1" {
		t.Fatalf("got %q %v", id, ok)
	}

	ctx = ContextWithDecision(ctx, Decision{UserID: "u-1", Outcome: OutcomeGranted})
	d, ok := DecisionFromContext(ctx)
	if !ok || d.Outcome != OutcomeGranted {
		t.Fatalf("decision not stored: %+v", d)
	}
}
