package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testClaims(sub string) Claims {
	return Claims{
		Email:        "alice@example.com",
		Role:         "authenticated",
		UserMetadata: map[string]any{"full_name": "Alice Moss"},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Audience:  jwt.ClaimStrings{"authenticated"},
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestHS256RoundTrip(t *testing.T) {
	secret := "test-secret"
	token, err := SignHS256(testClaims("user-1"), secret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}

	v := NewVerifier(secret, nil, "authenticated")
	parsed, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if parsed.UserID() != "user-1" || parsed.Email != "alice@example.com" {
		t.Fatalf("claims mismatch: got %+v", parsed)
	}
	if parsed.DisplayName() != "Alice Moss" {
		t.Fatalf("expected display name from metadata, got %q", parsed.DisplayName())
	}

	if _, err := NewVerifier("wrong-secret", nil, "").Verify(token); err == nil {
		t.Fatal("expected verification error with wrong secret")
	}
	if _, err := NewVerifier(secret, nil, "other-aud").Verify(token); err == nil {
		t.Fatal("expected audience mismatch")
	}
}

func TestVerifyRejectsExpiredAndMissingExp(t *testing.T) {
	secret := "test-secret"
	v := NewVerifier(secret, nil, "")

	expired := testClaims("user-1")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	token, _ := SignHS256(expired, secret)
	if _, err := v.Verify(token); err == nil {
		t.Fatal("expected expired token to fail")
	}

	noExp := testClaims("user-1")
	noExp.ExpiresAt = nil
	token, _ = SignHS256(noExp, secret)
	if _, err := v.Verify(token); err == nil {
		t.Fatal("expected token without exp to fail")
	}
}

func TestRS256ViaJWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey failed: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(jwks{Keys: []jwk{{
			Kty: "RSA",
			Kid: "kid-1",
			Alg: "RS256",
			N:   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		}}})
	}))
	defer srv.Close()

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, testClaims("user-2"))
	tok.Header["kid"] = "kid-1"
	signed, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	v := NewVerifier("", NewJWKSClient(srv.URL, time.Minute), "")
	parsed, err := v.Verify(signed)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if parsed.UserID() != "user-2" {
		t.Fatalf("unexpected subject %q", parsed.UserID())
	}

	tok.Header["kid"] = "unknown"
	signed, _ = tok.SignedString(key)
	if _, err := v.Verify(signed); err == nil {
		t.Fatal("expected unknown kid to fail")
	}
}
