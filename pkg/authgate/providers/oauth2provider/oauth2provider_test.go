package oauth2provider

import (
	"context"
	"net/http"
	"testing"

	"github.com/liveframe/live/pkg/authgate"
	"golang.org/x/oauth2"
)

func TestAuthenticateNoTokenIsAnonymous(t *testing.T) {
	p := New(&oauth2.Config{}, "https://example.invalid/userinfo", nil)
	ctx, err := p.Authenticate(context.Background(), authgate.Credentials{})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if ctx.Authenticated {
		t.Fatalf("expected anonymous without accessToken")
	}
}

func TestAuthenticateFetcherResolvesUser(t *testing.T) {
	fetch := func(ctx context.Context, client *http.Client, endpoint string) (*UserInfo, error) {
		return &UserInfo{Subject: "u1", Roles: []string{"user"}}, nil
	}
	p := New(&oauth2.Config{}, "https://example.invalid/userinfo", fetch)
	ctx, err := p.Authenticate(context.Background(), authgate.Credentials{"accessToken": "tok"})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if !ctx.Authenticated || ctx.UserID != "u1" || !ctx.HasRole("user") {
		t.Fatalf("unexpected context: %+v", ctx)
	}
}

func TestAuthenticateFetcherErrorIsAnonymous(t *testing.T) {
	fetch := func(ctx context.Context, client *http.Client, endpoint string) (*UserInfo, error) {
		return nil, context.DeadlineExceeded
	}
	p := New(&oauth2.Config{}, "https://example.invalid/userinfo", fetch)
	ctx, err := p.Authenticate(context.Background(), authgate.Credentials{"accessToken": "tok"})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if ctx.Authenticated {
		t.Fatalf("expected anonymous on fetch error")
	}
}
