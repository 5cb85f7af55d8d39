package auth

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

func TestIssueAndVerify(t *testing.T) {
	v := NewVerifier([]byte("test-secret"), time.Hour)
	token, expireAt, err := v.Issue("u1", "alice")
	if err != nil {
		t.Fatal(err)
	}
	if time.Until(expireAt) < 55*time.Minute {
		t.Fatalf("expireAt too close: %v", expireAt)
	}
	ident, err := v.Verify(token)
	if err != nil {
		t.Fatal(err)
	}
	if ident.UserID != "u1" || ident.Username != "alice" {
		t.Fatalf("identity: %+v", ident)
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	issuer := NewVerifier([]byte("secret-a"), time.Hour)
	token, _, err := issuer.Issue("u1", "alice")
	if err != nil {
		t.Fatal(err)
	}
	v := NewVerifier([]byte("secret-b"), time.Hour)
	if _, err := v.Verify(token); err == nil {
		t.Fatal("token signed with another secret must fail")
	}
}

func TestVerifyExpired(t *testing.T) {
	secret := []byte("test-secret")
	claims := jwtlib.MapClaims{
		"sub":  "u1",
		"name": "alice",
		"exp":  time.Now().Add(-time.Minute).Unix(),
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatal(err)
	}
	v := NewVerifier(secret, time.Hour)
	if _, err := v.Verify(token); err == nil {
		t.Fatal("expired token must fail")
	}
}

func TestVerifyRejectsNonHMAC(t *testing.T) {
	v := NewVerifier([]byte("test-secret"), time.Hour)
	// alg=none style header with no signature.
	if _, err := v.Verify("eyJhbGciOiJub25lIn0.eyJzdWIiOiJ1MSJ9."); err == nil {
		t.Fatal("non-HMAC token must be rejected")
	}
}

func TestVerifyMissingSub(t *testing.T) {
	secret := []byte("test-secret")
	claims := jwtlib.MapClaims{
		"name": "alice",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatal(err)
	}
	v := NewVerifier(secret, time.Hour)
	if _, err := v.Verify(token); err == nil {
		t.Fatal("token without sub must fail")
	}
}
