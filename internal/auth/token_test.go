package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testSecret = "test-secret"
	testIssuer = "billsage"
)

func signToken(t *testing.T, secret, issuer, subject string, expiresAt time.Time) string {
	t.Helper()

	claims := SessionClaims{
		Email: "a@example.com",
		Name:  "Ann",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	return signed
}

// TestParseSessionToken проверяет валидацию корректного токена.
func TestParseSessionToken(t *testing.T) {
	verifier := NewVerifier(testSecret, testIssuer)
	token := signToken(t, testSecret, testIssuer, "user_abc", time.Now().Add(time.Hour))

	claims, err := verifier.ParseSessionToken(token)
	if err != nil {
		t.Fatalf("ParseSessionToken: %v", err)
	}
	if claims.Subject != "user_abc" {
		t.Fatalf("unexpected subject: %q", claims.Subject)
	}
	if claims.Email != "a@example.com" || claims.Name != "Ann" {
		t.Fatalf("unexpected profile claims: %+v", claims)
	}
}

// TestParseSessionTokenWrongSecret проверяет отказ при чужой подписи.
func TestParseSessionTokenWrongSecret(t *testing.T) {
	verifier := NewVerifier(testSecret, testIssuer)
	token := signToken(t, "other-secret", testIssuer, "user_abc", time.Now().Add(time.Hour))

	if _, err := verifier.ParseSessionToken(token); err == nil {
		t.Fatal("expected error for wrong secret")
	}
}

// TestParseSessionTokenWrongIssuer проверяет отказ при чужом издателе.
func TestParseSessionTokenWrongIssuer(t *testing.T) {
	verifier := NewVerifier(testSecret, testIssuer)
	token := signToken(t, testSecret, "other", "user_abc", time.Now().Add(time.Hour))

	if _, err := verifier.ParseSessionToken(token); err == nil {
		t.Fatal("expected error for wrong issuer")
	}
}

// TestParseSessionTokenExpired проверяет отказ для просроченного токена.
func TestParseSessionTokenExpired(t *testing.T) {
	verifier := NewVerifier(testSecret, testIssuer)
	token := signToken(t, testSecret, testIssuer, "user_abc", time.Now().Add(-time.Hour))

	if _, err := verifier.ParseSessionToken(token); err == nil {
		t.Fatal("expected error for expired token")
	}
}

// TestParseSessionTokenEmptySubject проверяет отказ без идентификатора пользователя.
func TestParseSessionTokenEmptySubject(t *testing.T) {
	verifier := NewVerifier(testSecret, testIssuer)
	token := signToken(t, testSecret, testIssuer, "", time.Now().Add(time.Hour))

	if _, err := verifier.ParseSessionToken(token); err == nil {
		t.Fatal("expected error for empty subject")
	}
}
