// Package bearer resolves bearer tokens into identities for the Auth policy.
package bearer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tjfontaine/actiongate/internal/core/ports"
)

// ErrNoToken is returned when the Authorization header carries no bearer
// token.
var ErrNoToken = errors.New("no bearer token")

// Claims are the token claims understood by the verifier.
type Claims struct {
	jwt.RegisteredClaims
	Roles    []string `json:"roles,omitempty"`
	Services []string `json:"services,omitempty"`
}

// Identity is the principal carried by a verified token.
type Identity struct {
	ID          string
	RoleList    []string
	ServiceList []string
}

var _ ports.Identity = Identity{}

func (i Identity) IdentityID() string { return i.ID }
func (i Identity) Roles() []string { return i.RoleList }
func (i Identity) Services() []string { return i.ServiceList }

// Verifier checks HMAC-signed tokens.
type Verifier struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

// NewVerifier creates a verifier. When issuer is non-empty tokens must carry
// it, and Issue stamps it.
func NewVerifier(secret, issuer string) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &Verifier{secret: []byte(secret), issuer: issuer, parser: jwt.NewParser(opts...)}, nil
}

// Verify parses and validates a raw token.
func (v *Verifier) Verify(raw string) (Identity, error) {
	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("verify token: %w", err)
	}
	if !token.Valid || claims.Subject == "" {
		return Identity{}, fmt.Errorf("verify token: %w", jwt.ErrTokenInvalidClaims)
	}
	return Identity{ID: claims.Subject, RoleList: claims.Roles, ServiceList: claims.Services}, nil
}

// FromHeader verifies the token in an Authorization header value.
func (v *Verifier) FromHeader(header string) (Identity, error) {
	scheme, raw, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
		return Identity{}, ErrNoToken
	}
	return v.Verify(strings.TrimSpace(raw))
}

// Issue signs a token for id valid for ttl.
func (v *Verifier) Issue(id Identity, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Roles:    id.RoleList,
		Services: id.ServiceList,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
