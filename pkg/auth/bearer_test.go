package auth

import (
	"context"
	"testing"
)

func TestBearerProviderIssueThenAuthenticate(t *testing.T) {
	p := NewBearerProvider([]byte("test-secret"))

	token, err := p.IssueToken("org-1", "ci-runner")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	if !p.CanHandle([]byte(token)) {
		t.Fatalf("expected CanHandle to accept a non-empty token")
	}

	result, err := p.Authenticate(context.Background(), []byte(token))
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if !result.Authenticated {
		t.Fatalf("expected Authenticated=true")
	}
	if result.Identity.OrgID != "org-1" {
		t.Fatalf("expected org-1, got %q", result.Identity.OrgID)
	}
	if result.Identity.Subject != "ci-runner" {
		t.Fatalf("expected subject ci-runner, got %q", result.Identity.Subject)
	}
	if result.Provider != "bearer" {
		t.Fatalf("expected provider name bearer, got %q", result.Provider)
	}
}

func TestBearerProviderRejectsWrongSecret(t *testing.T) {
	issuer := NewBearerProvider([]byte("secret-a"))
	verifier := NewBearerProvider([]byte("secret-b"))

	token, err := issuer.IssueToken("org-1", "ci-runner")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := verifier.Authenticate(context.Background(), []byte(token)); err == nil {
		t.Fatalf("expected authentication to fail with a mismatched secret")
	}
}

func TestBearerProviderRejectsMissingOrg(t *testing.T) {
	p := NewBearerProvider([]byte("test-secret"))
	token, err := p.IssueToken("", "ci-runner")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Authenticate(context.Background(), []byte(token)); err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestBearerProviderRejectsMalformedToken(t *testing.T) {
	p := NewBearerProvider([]byte("test-secret"))
	if _, err := p.Authenticate(context.Background(), []byte("not-a-jwt")); err == nil {
		t.Fatalf("expected an error for a malformed token")
	}
}

func TestAuthenticatorDelegatesToFirstMatchingProvider(t *testing.T) {
	p := NewBearerProvider([]byte("test-secret"))
	authn := NewAuthenticator(p)

	token, _ := p.IssueToken("org-2", "job-42")
	result, err := authn.Authenticate(context.Background(), []byte(token))
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if result.Identity.OrgID != "org-2" {
		t.Fatalf("unexpected org: %q", result.Identity.OrgID)
	}
}

func TestAuthenticatorNoProvidersReturnsUnsupported(t *testing.T) {
	authn := NewAuthenticator()
	if _, err := authn.Authenticate(context.Background(), []byte("anything")); err != ErrUnsupportedMechanism {
		t.Fatalf("expected ErrUnsupportedMechanism, got %v", err)
	}
}

func TestAuthenticatorEmptyTokenUnsupported(t *testing.T) {
	authn := NewAuthenticator(NewBearerProvider([]byte("s")))
	if _, err := authn.Authenticate(context.Background(), []byte("")); err != ErrUnsupportedMechanism {
		t.Fatalf("expected ErrUnsupportedMechanism for an empty token, got %v", err)
	}
}
