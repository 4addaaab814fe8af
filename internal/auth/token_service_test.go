package auth

import (
	"strings"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/arturkam25/intelplatform/internal/account"
)

func newTestTokenService() *TokenService {
	return NewTokenService(TokenServiceConfig{
		AccessSecret:       "test-access-secret-key-32-chars!",
		RefreshSecret:      "test-refresh-secret-key-32-char!",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 7 * 24 * time.Hour,
		Issuer:             "test-issuer",
	})
}

func TestTokenRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		accountID := rapid.StringMatching(`[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}`).Draw(t, "accountID")
		username := rapid.StringMatching(`[a-zA-Z0-9]{3,20}`).Draw(t, "username")

		svc := newTestTokenService()
		pair, err := svc.GenerateTokenPair(accountID, username, account.RoleUser)
		if err != nil {
			t.Fatalf("failed to generate token pair: %v", err)
		}

		claims, err := svc.ValidateAccessToken(pair.AccessToken)
		if err != nil {
			t.Fatalf("failed to validate access token: %v", err)
		}
		if claims.AccountID() != accountID {
			t.Errorf("subject mismatch: expected %s, got %s", accountID, claims.AccountID())
		}
		if claims.Username != username {
			t.Errorf("username mismatch: expected %s, got %s", username, claims.Username)
		}
		if claims.Role != account.RoleUser {
			t.Errorf("role mismatch: got %s", claims.Role)
		}

		refreshClaims, err := svc.ValidateRefreshToken(pair.RefreshToken)
		if err != nil {
			t.Fatalf("failed to validate refresh token: %v", err)
		}
		if refreshClaims.AccountID() != accountID {
			t.Errorf("refresh subject mismatch: expected %s, got %s", accountID, refreshClaims.AccountID())
		}
	})
}

func TestTokenExpirationClaims(t *testing.T) {
	svc := newTestTokenService()
	before := time.Now()

	pair, err := svc.GenerateTokenPair("acc-1", "alice", account.RoleAdmin)
	if err != nil {
		t.Fatalf("failed to generate token pair: %v", err)
	}
	after := time.Now()

	claims, err := svc.ValidateAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("failed to validate access token: %v", err)
	}
	exp := claims.ExpiresAt.Time
	if exp.Before(before.Add(15*time.Minute-time.Second)) || exp.After(after.Add(15*time.Minute+time.Second)) {
		t.Errorf("access token expiry out of range: %v", exp)
	}
	if pair.ExpiresIn != int64((15 * time.Minute).Seconds()) {
		t.Errorf("expires_in mismatch: got %d", pair.ExpiresIn)
	}
}

func TestTokenTypeConfusionRejected(t *testing.T) {
	svc := newTestTokenService()
	pair, err := svc.GenerateTokenPair("acc-1", "alice", account.RoleUser)
	if err != nil {
		t.Fatalf("failed to generate token pair: %v", err)
	}

	if _, err := svc.ValidateAccessToken(pair.RefreshToken); err == nil {
		t.Error("refresh token accepted as access token")
	}
	if _, err := svc.ValidateRefreshToken(pair.AccessToken); err == nil {
		t.Error("access token accepted as refresh token")
	}
}

func TestTamperedTokenRejected(t *testing.T) {
	svc := newTestTokenService()
	token, err := svc.GenerateAccessToken("acc-1", "alice", account.RoleUser)
	if err != nil {
		t.Fatalf("failed to generate access token: %v", err)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected JWT shape: %d parts", len(parts))
	}
	tampered := parts[0] + "." + parts[1] + "." + "AAAA" + parts[2][4:]
	if _, err := svc.ValidateAccessToken(tampered); err == nil {
		t.Error("tampered token accepted")
	}

	other := NewTokenService(TokenServiceConfig{
		AccessSecret:       "a-completely-different-secret!!!",
		RefreshSecret:      "another-different-secret-here!!!",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: time.Hour,
		Issuer:             "test-issuer",
	})
	if _, err := other.ValidateAccessToken(token); err == nil {
		t.Error("token accepted under a different secret")
	}
}

func TestHashRefreshTokenDeterministic(t *testing.T) {
	svc := newTestTokenService()
	h1 := svc.HashRefreshToken("some-token")
	h2 := svc.HashRefreshToken("some-token")
	if h1 != h2 {
		t.Error("hash not deterministic")
	}
	if h1 == svc.HashRefreshToken("other-token") {
		t.Error("distinct tokens share a hash")
	}
	if len(h1) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(h1))
	}
}
