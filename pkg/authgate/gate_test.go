package authgate

import (
	"context"
	"testing"
)

type stubProvider struct {
	name string
	ctx  *AuthContext
	err  error
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Authenticate(ctx context.Context, creds Credentials) (*AuthContext, error) {
	return s.ctx, s.err
}

func TestAuthenticateNoCredentialsIsAnonymous(t *testing.T) {
	g := New(nil)
	ctx, _ := g.Authenticate(context.Background(), nil, "")
	if ctx.Authenticated {
		t.Fatalf("expected anonymous context")
	}
}

func TestAuthenticateTriesDefaultFirst(t *testing.T) {
	g := New(nil)
	g.Register(&stubProvider{name: "a", ctx: Anonymous()})
	g.Register(&stubProvider{name: "b", ctx: NewAuthenticated("u1", []string{"user"}, nil, 0)})
	ctx, provider := g.Authenticate(context.Background(), Credentials{"token": "x"}, "")
	if !ctx.Authenticated || provider.Name() != "b" {
		t.Fatalf("expected provider b to authenticate, got %+v / %v", ctx, provider)
	}
}

func TestAuthorizeMountRequiresAuth(t *testing.T) {
	g := New(nil)
	decision := g.AuthorizeMount(Anonymous(), MountRule{Required: true, Roles: []string{"admin"}})
	if decision.Allowed {
		t.Fatalf("expected denial for unauthenticated required mount")
	}
}

func TestAuthorizeMountRolesOrMatched(t *testing.T) {
	g := New(nil)
	authCtx := NewAuthenticated("u1", []string{"user"}, nil, 0)
	decision := g.AuthorizeMount(authCtx, MountRule{Required: true, Roles: []string{"admin"}})
	if decision.Allowed {
		t.Fatalf("expected denial: user lacks admin role")
	}
	if decision.Reason != "Insufficient roles" {
		t.Fatalf("unexpected reason: %q", decision.Reason)
	}
}

func TestAuthorizeMountPermissionsAndMatched(t *testing.T) {
	g := New(nil)
	authCtx := NewAuthenticated("u1", nil, []string{"read"}, 0)
	decision := g.AuthorizeMount(authCtx, MountRule{Permissions: []string{"read", "write"}})
	if decision.Allowed {
		t.Fatalf("expected denial: missing write permission")
	}
}

func TestAuthorizeRoomNoHandlerAllowed(t *testing.T) {
	g := New(nil)
	decision := g.AuthorizeRoom(context.Background(), Anonymous(), &stubProvider{name: "a"}, "chat:7")
	if !decision.Allowed {
		t.Fatalf("expected room join allowed when provider has no RoomAuthorizer")
	}
}
