package security

import (
	"crypto/rand"
	"crypto/rsa"
	"strings"
	"testing"
	"time"
)

const testTenant = "00000000-0000-0000-0000-000000000001"

func TestTokenProvider_IssueAndValidate(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	token, exp, err := p.Issue("dev-user-1", testTenant, []string{"admin"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if token == "" || exp.Before(time.Now()) {
		t.Fatalf("Issue returned token=%q exp=%v", token, exp)
	}
	claims, err := p.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.Subject != "dev-user-1" || claims.TenantID != testTenant {
		t.Errorf("claims = sub %q tenant %q", claims.Subject, claims.TenantID)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != "admin" {
		t.Errorf("roles = %v, want [admin]", claims.Roles)
	}
}

func TestTokenProvider_ValidateRejects(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	signer, _ := ParsePrivateKey(testPrivateKeyPEM)
	pub, _ := ParsePublicKey(testPublicKeyPEM)
	otherIssuer := NewTokenProvider(signer, pub, "someone-else", TestAudience, time.Minute)
	otherAudience := NewTokenProvider(signer, pub, TestIssuer, "other-api", time.Minute)
	expired := NewTokenProvider(signer, pub, TestIssuer, TestAudience, -time.Minute)

	mustIssue := func(tp *TokenProvider, sub, tenant string) string {
		tok, _, err := tp.Issue(sub, tenant, nil)
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		return tok
	}
	valid := mustIssue(p, "u", testTenant)
	parts := strings.Split(valid, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	cases := map[string]string{
		"garbage":        "invalid-token",
		"wrong issuer":   mustIssue(otherIssuer, "u", testTenant),
		"wrong audience": mustIssue(otherAudience, "u", testTenant),
		"expired":        mustIssue(expired, "u", testTenant),
		"no tenant":      mustIssue(p, "u", ""),
		"no subject":     mustIssue(p, "", testTenant),
		"bad signature":  tampered,
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := p.Validate(tok); err != ErrInvalidToken {
				t.Errorf("Validate: want ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestTokenProvider_VerifyOnlyCannotIssue(t *testing.T) {
	pub, err := ParsePublicKey(testPublicKeyPEM)
	if err != nil {
		t.Fatal(err)
	}
	p := NewTokenProvider(nil, pub, "i", "a", time.Minute)
	if _, _, err := p.Issue("u", testTenant, nil); err != ErrNoSigningKey {
		t.Errorf("Issue: want ErrNoSigningKey, got %v", err)
	}
}

func TestTokenProvider_RejectsOtherAlgorithm(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	rsaIssuer := NewTokenProvider(rsaKey, &rsaKey.PublicKey, TestIssuer, TestAudience, time.Minute)
	tok, _, err := rsaIssuer.Issue("u", testTenant, nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := rsaIssuer.Validate(tok); err != nil {
		t.Fatalf("RS256 provider should accept its own token: %v", err)
	}
	if _, err := p.Validate(tok); err != ErrInvalidToken {
		t.Errorf("ES256 provider accepted an RS256 token: %v", err)
	}
}
