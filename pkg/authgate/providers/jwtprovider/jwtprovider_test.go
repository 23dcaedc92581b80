package jwtprovider

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/liveframe/live/pkg/authgate"
)

func signToken(t *testing.T, secret []byte, claims Claims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString(secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestAuthenticateValidToken(t *testing.T) {
	secret := []byte("jwt-test-secret")
	p := New(secret)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Roles: []string{"admin"},
	}
	raw := signToken(t, secret, claims)

	ctx, err := p.Authenticate(context.Background(), authgate.Credentials{"token": raw})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if !ctx.Authenticated || ctx.UserID != "u1" || !ctx.HasRole("admin") {
		t.Fatalf("unexpected context: %+v", ctx)
	}
}

func TestAuthenticateWrongSecretIsAnonymous(t *testing.T) {
	p := New([]byte("right-secret"))
	raw := signToken(t, []byte("wrong-secret"), Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"}})

	ctx, err := p.Authenticate(context.Background(), authgate.Credentials{"token": raw})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if ctx.Authenticated {
		t.Fatalf("expected anonymous for token signed with wrong secret")
	}
}

func TestAuthenticateNoTokenIsAnonymous(t *testing.T) {
	p := New([]byte("secret"))
	ctx, _ := p.Authenticate(context.Background(), authgate.Credentials{})
	if ctx.Authenticated {
		t.Fatalf("expected anonymous without a token")
	}
}
