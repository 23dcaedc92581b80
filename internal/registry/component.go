package registry

import (
	"context"
	"encoding/json"

	"github.com/liveframe/live/pkg/authgate"
)

// LiveComponent is the contract every registered class implements
// (spec.md §3 "Component Instance", §4.F). The registry owns
// construction, state, and teardown; the component owns only its
// action semantics.
type LiveComponent interface {
	// InitialState returns the component's starting state, merged with
	// any client-supplied mount props by the registry.
	InitialState(props map[string]any) map[string]any

	// ExecuteAction runs a named action against the instance's current
	// state, returning a value forwarded to the dispatcher as the
	// action response (spec.md §4.F "Action dispatch").
	ExecuteAction(ctx *ActionContext, action string, payload json.RawMessage) (any, error)

	// Destroy releases any resources the instance holds. Called
	// exactly once, during unmount.
	Destroy()
}

// ActionContext carries per-call context into a component's action
// handler: the request's cancellation signal, the instance's live
// state (mutable in place — the registry holds the only reference),
// the caller's auth context, and a room-broadcast closure if the
// instance joined a room at mount.
type ActionContext struct {
	context.Context
	ComponentID string
	State       map[string]any
	Auth        *authgate.AuthContext
	Broadcast   func(event string, payload any) error
}

// Dependencies declares a component's service requirements (spec.md §4.F
// "Service container"). Required names missing at mount fail the mount;
// optional names are injected when available and silently omitted
// otherwise.
type Dependencies struct {
	Required []string
	Optional []string
}

// ServiceInjector is implemented by components that consume resolved
// services. The registry calls InjectServices once, after construction
// (and, on mount, after InitialState), with every dependency
// (required ∪ optional) that resolved successfully.
type ServiceInjector interface {
	InjectServices(services map[string]any)
}

// Factory constructs a fresh, unconfigured instance of a registered
// component class.
type Factory func() LiveComponent

// Definition is a class's registration record: its constructor, its
// declared dependencies, and its auth rules (spec.md §3 "Component
// Authorization Rules").
type Definition struct {
	Name         string
	Factory      Factory
	Dependencies Dependencies
	MountRule    authgate.MountRule
	ActionRules  map[string]authgate.ActionRule
}

// ruleFor returns a class's declared rule for the given action, or the
// zero rule (no roles/permissions required) if the class never
// declared one.
func (d Definition) ruleFor(action string) authgate.ActionRule {
	if d.ActionRules == nil {
		return authgate.ActionRule{}
	}
	return d.ActionRules[action]
}
