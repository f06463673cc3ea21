package gatewaytoken

import (
	"testing"
	"time"
)

func newVerifier(t *testing.T, secret string) *Verifier {
	t.Helper()
	v, err := New(Options{Secret: secret, Issuer: "gateway", Audience: "chat-service"})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	return v
}

func TestVerifyValidToken(t *testing.T) {
	v := newVerifier(t, "s3cret")
	token, err := Sign("s3cret", "gateway", "chat-service", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := v.Verify(token); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	v := newVerifier(t, "s3cret")
	token, err := Sign("other", "gateway", "chat-service", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := v.Verify(token); err == nil {
		t.Fatal("expected verification failure for wrong secret")
	}
}

func TestVerifyRejectsWrongAudience(t *testing.T) {
	v := newVerifier(t, "s3cret")
	token, err := Sign("s3cret", "gateway", "other-service", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := v.Verify(token); err == nil {
		t.Fatal("expected verification failure for wrong audience")
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	v, err := New(Options{Secret: "s3cret", Issuer: "gateway", Audience: "chat-service", Leeway: time.Millisecond})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	token, err := Sign("s3cret", "gateway", "chat-service", -time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := v.Verify(token); err == nil {
		t.Fatal("expected verification failure for expired token")
	}
}

func TestNewDisabledWithoutSecret(t *testing.T) {
	v, err := New(Options{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if v != nil {
		t.Fatal("no secret should disable verification")
	}
}
