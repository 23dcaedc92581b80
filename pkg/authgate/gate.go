// Package authgate implements the Auth Gate (spec.md §4.B): a pluggable
// provider registry that authenticates credentials into an AuthContext and
// authorizes component mount, action calls, and room joins against
// declarative per-class rules. Grounded on the teacher's
// pkg/auth/sessionauth Provider adaptor pattern, generalized from a single
// cookie-session provider into a registry of named providers tried in
// order.
package authgate

import (
	"context"
	"fmt"
	"log/slog"
)

// AuthContext is either anonymous or authenticated (spec.md §3).
type AuthContext struct {
	Authenticated bool
	UserID        string
	Roles         map[string]struct{}
	Permissions   map[string]struct{}
	IssuedAt      int64
}

// Anonymous returns the unauthenticated context; every capability
// predicate on it fails.
func Anonymous() *AuthContext {
	return &AuthContext{Authenticated: false}
}

// NewAuthenticated builds an authenticated context from role/permission
// slices.
func NewAuthenticated(userID string, roles, permissions []string, issuedAt int64) *AuthContext {
	ctx := &AuthContext{
		Authenticated: true,
		UserID:        userID,
		Roles:         make(map[string]struct{}, len(roles)),
		Permissions:   make(map[string]struct{}, len(permissions)),
		IssuedAt:      issuedAt,
	}
	for _, r := range roles {
		ctx.Roles[r] = struct{}{}
	}
	for _, p := range permissions {
		ctx.Permissions[p] = struct{}{}
	}
	return ctx
}

func (a *AuthContext) HasRole(role string) bool {
	if a == nil || !a.Authenticated {
		return false
	}
	_, ok := a.Roles[role]
	return ok
}

func (a *AuthContext) HasAnyRole(roles []string) bool {
	if a == nil || !a.Authenticated || len(roles) == 0 {
		return len(roles) == 0
	}
	for _, r := range roles {
		if a.HasRole(r) {
			return true
		}
	}
	return false
}

func (a *AuthContext) HasAllRoles(roles []string) bool {
	if a == nil || !a.Authenticated {
		return len(roles) == 0
	}
	for _, r := range roles {
		if !a.HasRole(r) {
			return false
		}
	}
	return true
}

func (a *AuthContext) HasPermission(perm string) bool {
	if a == nil || !a.Authenticated {
		return false
	}
	_, ok := a.Permissions[perm]
	return ok
}

func (a *AuthContext) HasAnyPermission(perms []string) bool {
	if a == nil || !a.Authenticated || len(perms) == 0 {
		return len(perms) == 0
	}
	for _, p := range perms {
		if a.HasPermission(p) {
			return true
		}
	}
	return false
}

func (a *AuthContext) HasAllPermissions(perms []string) bool {
	if a == nil || !a.Authenticated {
		return len(perms) == 0
	}
	for _, p := range perms {
		if !a.HasPermission(p) {
			return false
		}
	}
	return true
}

// Credentials is the opaque bag passed to providers; transport-specific
// code (e.g. the gateway) populates it from a bearer token, a cookie, or
// a WebSocket query parameter.
type Credentials map[string]string

// Provider is the contract every auth backend implements (spec.md §4.B).
type Provider interface {
	Name() string
	Authenticate(ctx context.Context, creds Credentials) (*AuthContext, error)
}

// ActionAuthorizer is an optional extension a Provider may implement to
// add bespoke per-action authorization beyond role/permission rules.
type ActionAuthorizer interface {
	AuthorizeAction(ctx context.Context, authCtx *AuthContext, componentName, action string) (bool, string)
}

// RoomAuthorizer is an optional extension a Provider may implement to add
// bespoke room-join authorization.
type RoomAuthorizer interface {
	AuthorizeRoom(ctx context.Context, authCtx *AuthContext, roomID string) (bool, string)
}

// MountRule is the declarative mount authorization for a component class.
type MountRule struct {
	Required    bool
	Roles       []string
	Permissions []string
}

// ActionRule is the declarative per-action authorization for a component
// class.
type ActionRule struct {
	Roles       []string
	Permissions []string
}

// Decision is the outcome of an authorization check (spec.md §4.B: "All
// denials produce {allowed:false, reason:string}").
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason string) Decision { return Decision{Allowed: false, Reason: reason} }

// Gate is the Auth Gate: a registry of named providers plus the
// authorization rule evaluator.
type Gate struct {
	logger          *slog.Logger
	providers       []Provider
	providersByName map[string]Provider
	defaultProvider string
}

// New builds an empty Gate.
func New(logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		logger:          logger,
		providersByName: make(map[string]Provider),
	}
}

// Register adds a provider to the gate in registration order. The first
// registered provider becomes the default unless SetDefault is called.
func (g *Gate) Register(p Provider) {
	g.providers = append(g.providers, p)
	g.providersByName[p.Name()] = p
	if g.defaultProvider == "" {
		g.defaultProvider = p.Name()
	}
}

// SetDefault names the provider tried first when no explicit provider is
// requested.
func (g *Gate) SetDefault(name string) {
	g.defaultProvider = name
}

// Authenticate resolves credentials to an AuthContext per spec.md §4.B:
// no credentials -> anonymous; a named provider -> try only it; otherwise
// default first, then the rest in registration order, first
// authenticated context wins. Provider panics/errors never propagate.
func (g *Gate) Authenticate(ctx context.Context, creds Credentials, providerName string) (*AuthContext, Provider) {
	if len(creds) == 0 {
		return Anonymous(), nil
	}

	if providerName != "" {
		p, ok := g.providersByName[providerName]
		if !ok {
			return Anonymous(), nil
		}
		return g.tryProvider(ctx, p, creds), p
	}

	order := g.orderedProviders()
	for _, p := range order {
		authCtx := g.tryProvider(ctx, p, creds)
		if authCtx != nil && authCtx.Authenticated {
			return authCtx, p
		}
	}
	return Anonymous(), nil
}

func (g *Gate) orderedProviders() []Provider {
	if g.defaultProvider == "" {
		return g.providers
	}
	ordered := make([]Provider, 0, len(g.providers))
	if def, ok := g.providersByName[g.defaultProvider]; ok {
		ordered = append(ordered, def)
	}
	for _, p := range g.providers {
		if p.Name() != g.defaultProvider {
			ordered = append(ordered, p)
		}
	}
	return ordered
}

func (g *Gate) tryProvider(ctx context.Context, p Provider, creds Credentials) *AuthContext {
	authCtx, err := safeAuthenticate(ctx, p, creds)
	if err != nil {
		g.logger.Warn("auth provider raised an error, treating as anonymous", "provider", p.Name(), "error", err)
		return Anonymous()
	}
	if authCtx == nil {
		return Anonymous()
	}
	return authCtx
}

func safeAuthenticate(ctx context.Context, p Provider, creds Credentials) (authCtx *AuthContext, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider panicked: %v", r)
		}
	}()
	return p.Authenticate(ctx, creds)
}

// AuthorizeMount evaluates a component's mount rule (spec.md §4.B).
func (g *Gate) AuthorizeMount(authCtx *AuthContext, rule MountRule) Decision {
	if authCtx == nil {
		authCtx = Anonymous()
	}
	if rule.Required && !authCtx.Authenticated {
		return deny("Authentication required")
	}
	if len(rule.Roles) > 0 && !authCtx.HasAnyRole(rule.Roles) {
		return deny("Insufficient roles")
	}
	if len(rule.Permissions) > 0 && !authCtx.HasAllPermissions(rule.Permissions) {
		return deny("Insufficient permissions")
	}
	return allow()
}

// AuthorizeAction evaluates a component's per-action rule, then
// additionally consults the resolving provider's ActionAuthorizer if it
// implements one.
func (g *Gate) AuthorizeAction(ctx context.Context, authCtx *AuthContext, provider Provider, componentName, action string, rule ActionRule) Decision {
	if authCtx == nil {
		authCtx = Anonymous()
	}
	if len(rule.Roles) > 0 && !authCtx.HasAnyRole(rule.Roles) {
		return deny("Insufficient roles")
	}
	if len(rule.Permissions) > 0 && !authCtx.HasAllPermissions(rule.Permissions) {
		return deny("Insufficient permissions")
	}
	if provider != nil {
		if az, ok := provider.(ActionAuthorizer); ok {
			allowed, reason := az.AuthorizeAction(ctx, authCtx, componentName, action)
			if !allowed {
				return deny(reason)
			}
		}
	}
	return allow()
}

// AuthorizeRoom consults the resolving provider's RoomAuthorizer if
// present; absence of a handler means allowed.
func (g *Gate) AuthorizeRoom(ctx context.Context, authCtx *AuthContext, provider Provider, roomID string) Decision {
	if provider == nil {
		return allow()
	}
	az, ok := provider.(RoomAuthorizer)
	if !ok {
		return allow()
	}
	allowed, reason := az.AuthorizeRoom(ctx, authCtx, roomID)
	if !allowed {
		return deny(reason)
	}
	return allow()
}
