package http

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func rsaKeyPEM(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	return key, string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func TestAuthenticator_VerifiesSignature(t *testing.T) {
	key, pub := rsaKeyPEM(t)
	other, _ := rsaKeyPEM(t)
	auth, err := NewAuthenticator(pub)
	if err != nil {
		t.Fatal(err)
	}

	sign := func(k *rsa.PrivateKey, claims jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(k)
		if err != nil {
			t.Fatal(err)
		}
		return s
	}

	good := sign(key, jwt.MapClaims{"sub": "42", "exp": time.Now().Add(time.Hour).Unix()})
	p, err := auth.Authenticate("Bearer " + good)
	if err != nil {
		t.Fatal(err)
	}
	if p.UserID != "42" || p.Token != good {
		t.Errorf("unexpected principal %+v", p)
	}

	tests := map[string]string{
		"wrong key":  "Bearer " + sign(other, jwt.MapClaims{"sub": "42"}),
		"expired":    "Bearer " + sign(key, jwt.MapClaims{"sub": "42", "exp": time.Now().Add(-time.Hour).Unix()}),
		"no subject": "Bearer " + sign(key, jwt.MapClaims{"role": "user"}),
		"hmac":       "Bearer " + token(t, "42"),
		"no bearer":  good,
		"empty":      "",
	}
	for name, header := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := auth.Authenticate(header); err == nil {
				t.Error("expected rejection")
			}
		})
	}
}

func TestAuthenticator_WithoutKeyReadsSubject(t *testing.T) {
	auth, err := NewAuthenticator("")
	if err != nil {
		t.Fatal(err)
	}
	p, err := auth.Authenticate("Bearer " + token(t, "buyer-7"))
	if err != nil {
		t.Fatal(err)
	}
	if p.UserID != "buyer-7" {
		t.Errorf("expected buyer-7, got %s", p.UserID)
	}
	if _, err := auth.Authenticate("Bearer not-a-jwt"); err == nil {
		t.Error("garbage token should be rejected")
	}
}

func TestNewAuthenticator_BadKey(t *testing.T) {
	if _, err := NewAuthenticator("-----BEGIN PUBLIC KEY-----\nxx\n-----END PUBLIC KEY-----"); err == nil {
		t.Error("expected parse error")
	}
}
