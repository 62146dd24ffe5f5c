package auth

import (
	"bytes"
	"context"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// claims is the minimal JWT claim set the reference metadata service
// issues: an organization ID scoping CAS/cache-plane visibility, and the
// subject that requested the token.
type claims struct {
	OrgID string `json:"org_id"`
	jwt.RegisteredClaims
}

// BearerProvider validates HS256-signed bearer tokens against a shared
// secret. It is the only AuthProvider the reference server and its clients
// need, since spec.md §6 has no multi-mechanism negotiation.
type BearerProvider struct {
	secret []byte
}

// NewBearerProvider constructs a BearerProvider keyed by secret.
func NewBearerProvider(secret []byte) *BearerProvider {
	return &BearerProvider{secret: secret}
}

// CanHandle reports true for any non-empty token; bearer is the sole
// mechanism this module supports.
func (p *BearerProvider) CanHandle(token []byte) bool {
	return len(bytes.TrimSpace(token)) > 0
}

// Authenticate parses and validates token as an HS256 JWT, returning the
// organization-scoped Identity encoded in its claims.
func (p *BearerProvider) Authenticate(ctx context.Context, token []byte) (*AuthResult, error) {
	var parsed claims
	_, err := jwt.ParseWithClaims(string(token), &parsed, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidCredentials
		}
		return p.secret, nil
	})
	if err != nil {
		return nil, ErrAuthFailed
	}
	if parsed.OrgID == "" {
		return nil, ErrInvalidCredentials
	}

	return &AuthResult{
		Identity: Identity{
			OrgID:   parsed.OrgID,
			Subject: parsed.Subject,
		},
		Authenticated: true,
		Provider:      p.Name(),
	}, nil
}

// Name returns "bearer".
func (p *BearerProvider) Name() string { return "bearer" }

// IssueToken mints a signed bearer token for orgID/subject. The reference
// server exposes no endpoint for it; tests call it directly.
func (p *BearerProvider) IssueToken(orgID, subject string) (string, error) {
	c := claims{
		OrgID: orgID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: subject,
			ID:      uuid.New().String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString(p.secret)
}
