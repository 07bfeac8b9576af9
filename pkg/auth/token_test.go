package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/himanshu-firke/shopsphere-backend/pkg/config"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "test-secret", Issuer: "shopsphere-test"}
}

func TestMintAndParseAccessToken(t *testing.T) {
	t.Parallel()

	cfg := testJWTConfig()
	customerID := uuid.New()

	raw, err := MintAccessToken(cfg, time.Now(), customerID, " buyer@example.com ", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error minting token: %v", err)
	}

	claims, err := ParseAccessToken(cfg, raw)
	if err != nil {
		t.Fatalf("unexpected error parsing token: %v", err)
	}
	if claims.CustomerID != customerID {
		t.Fatalf("expected customer id %s, got %s", customerID, claims.CustomerID)
	}
	if claims.Email != "buyer@example.com" {
		t.Fatalf("expected trimmed email, got %q", claims.Email)
	}
}

func TestParseAccessTokenRejectsExpired(t *testing.T) {
	t.Parallel()

	cfg := testJWTConfig()
	raw, err := MintAccessToken(cfg, time.Now().Add(-2*time.Hour), uuid.New(), "", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error minting token: %v", err)
	}

	if _, err := ParseAccessToken(cfg, raw); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestParseAccessTokenRejectsWrongIssuer(t *testing.T) {
	t.Parallel()

	raw, err := MintAccessToken(config.JWTConfig{Secret: "test-secret", Issuer: "other"}, time.Now(), uuid.New(), "", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error minting token: %v", err)
	}

	if _, err := ParseAccessToken(testJWTConfig(), raw); err == nil {
		t.Fatalf("expected wrong issuer to be rejected")
	}
}

func TestParseAccessTokenRejectsTamperedSecret(t *testing.T) {
	t.Parallel()

	raw, err := MintAccessToken(config.JWTConfig{Secret: "another-secret", Issuer: "shopsphere-test"}, time.Now(), uuid.New(), "", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error minting token: %v", err)
	}

	if _, err := ParseAccessToken(testJWTConfig(), raw); err == nil {
		t.Fatalf("expected bad signature to be rejected")
	}
}
