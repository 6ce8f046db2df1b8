package jwt

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	svc := NewService("test-secret", time.Minute, time.Hour)
	userID := uuid.New()

	token, err := svc.GenerateAccessToken(userID, "cashier")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := svc.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != userID || claims.Role != "cashier" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestRefreshTokenIsNotAccessToken(t *testing.T) {
	svc := NewService("test-secret", time.Minute, time.Hour)

	refresh, _, err := svc.GenerateRefreshToken(uuid.New())
	if err != nil {
		t.Fatalf("generate refresh: %v", err)
	}
	if _, err := svc.ValidateAccessToken(refresh); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if _, err := svc.ValidateRefreshToken(refresh); err != nil {
		t.Fatalf("validate refresh: %v", err)
	}
}

func TestExpiredAndForeignTokens(t *testing.T) {
	expired := NewService("test-secret", -time.Minute, time.Hour)
	token, err := expired.GenerateAccessToken(uuid.New(), "customer")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := expired.ValidateAccessToken(token); err != ErrExpiredToken {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}

	signer := NewService("secret-a", time.Minute, time.Hour)
	verifier := NewService("secret-b", time.Minute, time.Hour)
	token, _ = signer.GenerateAccessToken(uuid.New(), "admin")
	if _, err := verifier.ValidateAccessToken(token); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for foreign signature, got %v", err)
	}
}
