// Package jwtprovider implements an authgate.Provider backed by bearer
// JWTs, grounded on r3e-network-service_layer's use of golang-jwt/jwt/v5.
package jwtprovider

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/liveframe/live/pkg/authgate"
)

// Claims is the expected JWT claim shape for this provider.
type Claims struct {
	jwt.RegisteredClaims
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// Provider verifies a bearer token under the "token" credential key.
type Provider struct {
	name   string
	secret []byte
}

// New builds a JWT provider keyed with an HMAC secret.
func New(secret []byte) *Provider {
	return &Provider{name: "jwt", secret: secret}
}

func (p *Provider) Name() string { return p.name }

// Authenticate verifies an HS256 token and maps its claims to an
// AuthContext. Any verification failure yields anonymous rather than an
// error, per spec.md §4.B ("exceptions inside a provider do not
// propagate").
func (p *Provider) Authenticate(ctx context.Context, creds authgate.Credentials) (*authgate.AuthContext, error) {
	raw := creds["token"]
	if raw == "" {
		return authgate.Anonymous(), nil
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Method)
		}
		return p.secret, nil
	})
	if err != nil || !token.Valid {
		return authgate.Anonymous(), nil
	}

	userID := claims.Subject
	issuedAt := int64(0)
	if claims.IssuedAt != nil {
		issuedAt = claims.IssuedAt.UnixMilli()
	}
	return authgate.NewAuthenticated(userID, claims.Roles, claims.Permissions, issuedAt), nil
}
