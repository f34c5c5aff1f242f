package jwt

import (
	"errors"
	"testing"
	"time"

	jwtstd "github.com/golang-jwt/jwt/v5"
)

func TestGenerateAndDecode(t *testing.T) {
	tm := NewTokenManager("secret", "batchd")

	token, err := tm.GenerateAccessToken("jti-1", TokenPayload{
		UserID: "u1",
		Email:  "u1@example.com",
		Roles:  []string{"admin"},
	}, time.Hour)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	claims, err := tm.DecodeToken(token)
	if err != nil {
		t.Fatalf("DecodeToken: %v", err)
	}
	if got := GetUserIDFromToken(claims); got != "u1" {
		t.Errorf("user id = %q", got)
	}
	if got := GetEmailFromToken(claims); got != "u1@example.com" {
		t.Errorf("email = %q", got)
	}
	if roles := GetRolesFromToken(claims); len(roles) != 1 || roles[0] != "admin" {
		t.Errorf("roles = %v", roles)
	}
}

func TestValidateTokenErrors(t *testing.T) {
	tm := NewTokenManager("secret")

	expired, err := tm.GenerateAccessToken("j", TokenPayload{UserID: "u"}, time.Nanosecond)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	time.Sleep(1100 * time.Millisecond)
	if _, err := tm.ValidateToken(expired); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("expired token err = %v", err)
	}

	other := NewTokenManager("other")
	tok, _ := other.GenerateAccessToken("j", TokenPayload{UserID: "u"}, time.Hour)
	if _, err := tm.ValidateToken(tok); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("wrong key err = %v", err)
	}

	if _, err := NewTokenManager("").ValidateToken(tok); !errors.Is(err, ErrNeedTokenProvider) {
		t.Errorf("empty key err = %v", err)
	}
}

func TestRejectsNoneAlgorithm(t *testing.T) {
	unsigned := jwtstd.NewWithClaims(jwtstd.SigningMethodNone, jwtstd.MapClaims{"sub": "u"})
	s, err := unsigned.SignedString(jwtstd.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := NewTokenManager("secret").ValidateToken(s); err == nil {
		t.Error("none algorithm must be rejected")
	}
}

func TestIssuerMismatch(t *testing.T) {
	tok, _ := NewTokenManager("secret", "someone-else").GenerateAccessToken("j", TokenPayload{UserID: "u"}, time.Hour)
	if _, err := NewTokenManager("secret", "batchd").ValidateToken(tok); err == nil {
		t.Error("issuer mismatch must be rejected")
	}
}

func TestSubjectFallback(t *testing.T) {
	claims := map[string]any{"sub": "u9"}
	if got := GetUserIDFromToken(claims); got != "u9" {
		t.Errorf("user id = %q, want sub fallback", got)
	}
}
