// Package auth provides the bearer-token authentication used by the
// reference metadata-service implementation and its clients.
//
// The wire protocol (spec.md §6) has a single authentication mechanism: an
// opaque bearer token scoping every CAS and cache-plane call to one
// organization. This package keeps the teacher's AuthProvider/Authenticator
// chaining shape (useful if a second mechanism is ever added) but ships
// only one provider, since there is no Kerberos/NTLM negotiation here.
package auth

import (
	"context"
	"errors"
)

// AuthProvider authenticates a bearer token.
//
// Thread safety: implementations must be safe for concurrent use.
type AuthProvider interface {
	// CanHandle returns true if this provider can process the given token.
	CanHandle(token []byte) bool

	// Authenticate validates token and returns the resulting identity.
	Authenticate(ctx context.Context, token []byte) (*AuthResult, error)

	// Name returns the provider name for logging and diagnostics.
	Name() string
}

// AuthResult contains the outcome of a successful authentication.
type AuthResult struct {
	// Identity is the authenticated caller.
	Identity Identity

	// Authenticated indicates whether authentication succeeded.
	Authenticated bool

	// Provider is the name of the AuthProvider that handled this authentication.
	Provider string
}

// Identity is the authenticated caller scoped to one organization.
type Identity struct {
	// OrgID scopes CAS visibility and cache-plane storage to one tenant.
	OrgID string

	// Subject identifies the principal within the organization (a service
	// account or CI runner identifier), for audit logging.
	Subject string
}

// Authenticator chains AuthProvider implementations and tries each in
// order. A single-provider chain is the normal configuration; the chain
// shape is kept so a future mechanism can be added without restructuring
// callers.
type Authenticator struct {
	providers []AuthProvider
}

// NewAuthenticator creates an Authenticator with the given providers, tried
// in order; the first one whose CanHandle returns true processes the token.
func NewAuthenticator(providers ...AuthProvider) *Authenticator {
	return &Authenticator{providers: providers}
}

// Authenticate processes an authentication token by delegating to the
// first matching provider. Returns ErrUnsupportedMechanism if none match.
func (a *Authenticator) Authenticate(ctx context.Context, token []byte) (*AuthResult, error) {
	for _, p := range a.providers {
		if p.CanHandle(token) {
			return p.Authenticate(ctx, token)
		}
	}
	return nil, ErrUnsupportedMechanism
}

// Providers returns the registered providers, for diagnostics.
func (a *Authenticator) Providers() []AuthProvider {
	return a.providers
}

// Standard authentication errors.
var (
	// ErrAuthFailed indicates authentication was attempted but failed.
	ErrAuthFailed = errors.New("auth: authentication failed")

	// ErrUnsupportedMechanism indicates no registered AuthProvider can
	// handle the presented token.
	ErrUnsupportedMechanism = errors.New("auth: unsupported authentication mechanism")

	// ErrInvalidCredentials indicates the token is malformed rather than
	// merely wrong.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
)
