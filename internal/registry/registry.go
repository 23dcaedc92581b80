// Package registry's Registry type is the Component Registry of
// spec.md §4.F: class resolution, the service container, mount,
// rehydrate, action dispatch, property update, state migration, and
// periodic health supervision.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/liveframe/live/pkg/authgate"
	"github.com/liveframe/live/pkg/liveerr"
	"github.com/liveframe/live/pkg/rooms"
	"github.com/liveframe/live/pkg/signature"
)

const (
	healthCheckInterval = 30 * time.Second
	idleDegradedAfter   = 5 * time.Minute
	errorUnhealthyAt    = 10
	memoryDegradedBytes = 1 << 20 // 1 MiB estimate
)

// ServiceFactory constructs one named service. It is invoked on every
// resolve (spec.md §4.F "Service container"), not memoized — a factory
// that wants a singleton closes over one itself.
type ServiceFactory func() any

// MountResult is returned by Mount and carries everything the gateway
// needs to emit COMPONENT_MOUNTED / STATE_UPDATE to the client.
type MountResult struct {
	ComponentID  string
	ClassName    string
	InitialState map[string]any
	Envelope     *signature.Envelope
}

// RehydrateResult is returned by Rehydrate with the freshly minted
// instance id and re-signed envelope.
type RehydrateResult struct {
	NewComponentID string
	ClassName      string
	State          map[string]any
	Envelope       *signature.Envelope
}

// RecoveredFunc is invoked when an unhealthy instance's recovery pass
// succeeds, so the gateway can emit COMPONENT_RECOVERED.
type RecoveredFunc func(componentID string)

// Registry is the Component Registry.
type Registry struct {
	logger *slog.Logger
	signer *signature.Engine
	gate   *authgate.Gate
	rooms  *rooms.Manager

	defsMu sync.RWMutex
	defs   map[string]Definition

	servicesMu sync.RWMutex
	services   map[string]ServiceFactory

	instMu       sync.RWMutex
	instances    map[string]*Instance
	byConnection map[string]map[string]struct{}

	onRecovered RecoveredFunc

	done     chan struct{}
	stopOnce sync.Once
}

// New builds a Registry wired to the shared signature engine, auth
// gate, and room manager, and starts its health supervision loop.
func New(signer *signature.Engine, gate *authgate.Gate, roomMgr *rooms.Manager, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		logger:       logger.With("component", "registry"),
		signer:       signer,
		gate:         gate,
		rooms:        roomMgr,
		defs:         make(map[string]Definition),
		services:     make(map[string]ServiceFactory),
		instances:    make(map[string]*Instance),
		byConnection: make(map[string]map[string]struct{}),
		done:         make(chan struct{}),
	}
	go r.healthLoop()
	return r
}

// OnRecovered sets the callback invoked when an unhealthy instance
// recovers.
func (r *Registry) OnRecovered(fn RecoveredFunc) { r.onRecovered = fn }

// Register adds a component class definition under its canonical name.
func (r *Registry) Register(def Definition) {
	r.defsMu.Lock()
	defer r.defsMu.Unlock()
	r.defs[def.Name] = def
}

// RegisterService adds a named service factory to the container.
func (r *Registry) RegisterService(name string, factory ServiceFactory) {
	r.servicesMu.Lock()
	defer r.servicesMu.Unlock()
	r.services[name] = factory
}

// Stop halts the health supervision loop.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.done) })
}

// resolveClass tries the spec's name variations against the
// registration map (spec.md §4.F "Auto-discovery": "name variations
// (X, XComponent, capitalized) are all tried on lookup").
func (r *Registry) resolveClass(name string) (Definition, bool) {
	r.defsMu.RLock()
	defer r.defsMu.RUnlock()
	for _, candidate := range nameVariations(name) {
		if def, ok := r.defs[candidate]; ok {
			return def, true
		}
	}
	return Definition{}, false
}

func nameVariations(name string) []string {
	trimmed := strings.TrimSuffix(name, "Component")
	capitalized := capitalize(trimmed)
	return []string{
		name,
		name + "Component",
		trimmed,
		trimmed + "Component",
		capitalized,
		capitalized + "Component",
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// resolveServices resolves a class's required and optional dependencies
// from the service container. A missing required dependency is an
// error; a missing optional dependency is silently skipped.
func (r *Registry) resolveServices(deps Dependencies) (map[string]any, error) {
	r.servicesMu.RLock()
	defer r.servicesMu.RUnlock()

	resolved := make(map[string]any, len(deps.Required)+len(deps.Optional))
	for _, name := range deps.Required {
		factory, ok := r.services[name]
		if !ok {
			return nil, fmt.Errorf("registry: required service %q is not registered", name)
		}
		resolved[name] = factory()
	}
	for _, name := range deps.Optional {
		if factory, ok := r.services[name]; ok {
			resolved[name] = factory()
		}
	}
	return resolved, nil
}

// MountOptions carries a mount request's client-supplied inputs.
type MountOptions struct {
	ComponentName string
	Props         map[string]any
	ConnectionID  string
	UserID        string
	Auth          *authgate.AuthContext
	AuthProvider  authgate.Provider
	RoomID        string
	SignOptions   signature.Options
	Broadcast     func(event string, payload any) error
}

// Mount instantiates a component per spec.md §4.F "Mount": dependency
// validation, class resolution, mount authorization, construction,
// optional room join, metadata recording, and initial-state signing.
func (r *Registry) Mount(ctx context.Context, opts MountOptions) (*MountResult, error) {
	def, ok := r.resolveClass(opts.ComponentName)
	if !ok {
		return nil, liveerr.New("COMPONENT_NOT_FOUND", opts.ComponentName)
	}

	services, err := r.resolveServices(def.Dependencies)
	if err != nil {
		return nil, liveerr.Wrap("COMPONENT_NOT_FOUND", err.Error(), err)
	}

	decision := r.gate.AuthorizeMount(opts.Auth, def.MountRule)
	if !decision.Allowed {
		return nil, liveerr.AuthDenied(decision.Reason)
	}

	component := def.Factory()
	state := mergeState(component.InitialState(opts.Props), opts.Props)
	if injector, ok := component.(ServiceInjector); ok {
		injector.InjectServices(services)
	}

	if opts.RoomID != "" {
		roomDecision := r.gate.AuthorizeRoom(ctx, opts.Auth, opts.AuthProvider, opts.RoomID)
		if !roomDecision.Allowed {
			return nil, liveerr.AuthDenied(roomDecision.Reason)
		}
	}

	id := uuid.NewString()
	inst := &Instance{
		ID:           id,
		ClassName:    def.Name,
		Version:      1,
		ConnectionID: opts.ConnectionID,
		UserID:       opts.UserID,
		RoomID:       opts.RoomID,
		DebugLabel:   fmt.Sprintf("%s#%s", def.Name, id[:8]),
		component:    component,
		auth:         opts.Auth,
		authProvider: opts.AuthProvider,
		broadcast:    opts.Broadcast,
		state:        state,
		meta: Metadata{
			MountedAt:    time.Now(),
			LastActivity: time.Now(),
			State:        StateMounting,
			Health:       HealthHealthy,
			Dependencies: def.Dependencies,
			Services:     serviceNames(services),
		},
	}

	if opts.RoomID != "" {
		if _, err := r.rooms.Join(opts.RoomID, id, opts.ConnectionID); err != nil {
			return nil, liveerr.Wrap("COMPONENT_NOT_FOUND", "room join failed", err)
		}
	}

	r.instMu.Lock()
	r.instances[id] = inst
	if r.byConnection[opts.ConnectionID] == nil {
		r.byConnection[opts.ConnectionID] = make(map[string]struct{})
	}
	r.byConnection[opts.ConnectionID][id] = struct{}{}
	r.instMu.Unlock()

	inst.transition(StateActive)

	env, err := r.signer.Sign(id, def.Name, state, inst.Version, opts.SignOptions)
	if err != nil {
		return nil, fmt.Errorf("registry: sign initial state: %w", err)
	}

	return &MountResult{ComponentID: id, ClassName: def.Name, InitialState: state, Envelope: env}, nil
}

func mergeState(initial, props map[string]any) map[string]any {
	out := make(map[string]any, len(initial)+len(props))
	for k, v := range initial {
		out[k] = v
	}
	for k, v := range props {
		out[k] = v
	}
	return out
}

func serviceNames(services map[string]any) []string {
	names := make([]string, 0, len(services))
	for k := range services {
		names = append(names, k)
	}
	return names
}

// RehydrateOptions carries a rehydration request's inputs.
type RehydrateOptions struct {
	OldComponentID string
	ComponentName  string
	Envelope       *signature.Envelope
	ConnectionID   string
	UserID         string
	Auth           *authgate.AuthContext
	AuthProvider   authgate.Provider
	Broadcast      func(event string, payload any) error
}

// Rehydrate reconstructs an instance from a client-held signed envelope
// per spec.md §4.F "Rehydrate". The embedded envelope component name is
// authoritative (spec.md §9); a mismatch against the requested class is
// reported as CLASS_MISMATCH.
func (r *Registry) Rehydrate(ctx context.Context, opts RehydrateOptions) (*RehydrateResult, error) {
	result := r.signer.Validate(opts.Envelope, signature.ValidateOptions{})
	switch result {
	case signature.ResultExpired:
		return nil, liveerr.New("EXPIRED", "")
	case signature.ResultReplayed:
		return nil, liveerr.New("REPLAY", "State already consumed - replay attack detected")
	case signature.ResultKeyNotFound:
		return nil, liveerr.New("KEY_NOT_FOUND", "")
	case signature.ResultTampered:
		return nil, liveerr.New("INVALID_SIGNATURE", "")
	}

	if opts.Envelope.ComponentName != opts.ComponentName {
		return nil, liveerr.New("CLASS_MISMATCH", "Component class mismatch - state tampering detected")
	}

	def, ok := r.resolveClass(opts.ComponentName)
	if !ok {
		return nil, liveerr.New("COMPONENT_NOT_FOUND", opts.ComponentName)
	}

	decision := r.gate.AuthorizeMount(opts.Auth, def.MountRule)
	if !decision.Allowed {
		return nil, liveerr.AuthDenied(decision.Reason)
	}

	data, err := r.signer.Extract(opts.Envelope)
	if err != nil {
		return nil, liveerr.Wrap("INVALID_SIGNATURE", "could not extract state", err)
	}
	delete(data, "__componentName")

	services, err := r.resolveServices(def.Dependencies)
	if err != nil {
		return nil, liveerr.Wrap("COMPONENT_NOT_FOUND", err.Error(), err)
	}

	component := def.Factory()
	if injector, ok := component.(ServiceInjector); ok {
		injector.InjectServices(services)
	}

	id := uuid.NewString()
	inst := &Instance{
		ID:           id,
		ClassName:    def.Name,
		Version:      opts.Envelope.Version + 1,
		ConnectionID: opts.ConnectionID,
		UserID:       opts.UserID,
		DebugLabel:   fmt.Sprintf("%s#%s", def.Name, id[:8]),
		component:    component,
		auth:         opts.Auth,
		authProvider: opts.AuthProvider,
		broadcast:    opts.Broadcast,
		state:        data,
		meta: Metadata{
			MountedAt:    time.Now(),
			LastActivity: time.Now(),
			State:        StateActive,
			Health:       HealthHealthy,
			Dependencies: def.Dependencies,
			Services:     serviceNames(services),
		},
	}

	r.instMu.Lock()
	r.instances[id] = inst
	if r.byConnection[opts.ConnectionID] == nil {
		r.byConnection[opts.ConnectionID] = make(map[string]struct{})
	}
	r.byConnection[opts.ConnectionID][id] = struct{}{}
	r.instMu.Unlock()

	env, err := r.signer.Sign(id, def.Name, data, inst.Version, signature.Options{
		Compress: opts.Envelope.Compressed,
		Encrypt:  opts.Envelope.Encrypted,
	})
	if err != nil {
		return nil, fmt.Errorf("registry: sign rehydrated state: %w", err)
	}

	return &RehydrateResult{NewComponentID: id, ClassName: def.Name, State: data, Envelope: env}, nil
}

// Dispatch invokes a named action on a live instance per spec.md §4.F
// "Action dispatch": missing instance -> COMPONENT_REHYDRATION_REQUIRED,
// otherwise action-level authorization then serialized execution.
func (r *Registry) Dispatch(ctx context.Context, componentID, action string, payload json.RawMessage) (any, error) {
	inst, ok := r.get(componentID)
	if !ok {
		return nil, liveerr.RehydrationRequired(componentID)
	}

	def, ok := r.resolveClass(inst.ClassName)
	if !ok {
		return nil, liveerr.New("COMPONENT_NOT_FOUND", inst.ClassName)
	}
	decision := r.gate.AuthorizeAction(ctx, inst.auth, inst.authProvider, inst.ClassName, action, def.ruleFor(action))
	if !decision.Allowed {
		return nil, liveerr.AuthDenied(decision.Reason)
	}

	inst.actionMu.Lock()
	defer inst.actionMu.Unlock()

	start := time.Now()
	actionCtx := &ActionContext{
		Context:     ctx,
		ComponentID: componentID,
		State:       inst.state,
		Auth:        inst.auth,
		Broadcast:   inst.broadcast,
	}
	result, err := inst.component.ExecuteAction(actionCtx, action, payload)
	inst.recordAction(err, time.Since(start))
	return result, err
}

// SetProperty shallow-sets one state key on a live instance (spec.md
// §4.F "Property update") and returns the resulting state snapshot.
func (r *Registry) SetProperty(componentID, key string, value any) (map[string]any, error) {
	inst, ok := r.get(componentID)
	if !ok {
		return nil, liveerr.RehydrationRequired(componentID)
	}
	inst.actionMu.Lock()
	defer inst.actionMu.Unlock()
	state := inst.setProperty(key, value)
	inst.touch()
	return state, nil
}

// Sign signs an instance's current state at its current version — used
// by the gateway after an action or property update that must push a
// fresh STATE_UPDATE envelope to the client.
func (r *Registry) Sign(componentID string, opts signature.Options) (*signature.Envelope, error) {
	inst, ok := r.get(componentID)
	if !ok {
		return nil, liveerr.RehydrationRequired(componentID)
	}
	return r.signer.Sign(componentID, inst.ClassName, inst.State(), inst.Version, opts)
}

// Migrate rewrites a live instance's state in place (spec.md §4.F "State
// migration") and appends the outcome to its migration history.
func (r *Registry) Migrate(componentID string, from, to int, fn func(map[string]any) (map[string]any, error)) error {
	inst, ok := r.get(componentID)
	if !ok {
		return liveerr.RehydrationRequired(componentID)
	}

	inst.actionMu.Lock()
	defer inst.actionMu.Unlock()

	migrated, err := fn(inst.State())
	rec := MigrationRecord{From: from, To: to, At: time.Now(), Success: err == nil}
	if err != nil {
		rec.Error = err.Error()
		inst.recordMigration(rec)
		return err
	}
	inst.setState(migrated)
	inst.Version = to
	inst.recordMigration(rec)
	return nil
}

// Unmount tears down a live instance per spec.md §4.F "Cleanup": room
// subscriptions, the component's own Destroy, and registry bookkeeping.
func (r *Registry) Unmount(componentID string) {
	inst, ok := r.get(componentID)
	if !ok {
		return
	}
	inst.transition(StateDestroying)

	r.rooms.CleanupComponent(componentID)

	inst.actionMu.Lock()
	inst.component.Destroy()
	inst.actionMu.Unlock()

	inst.transition(StateDestroyed)

	r.instMu.Lock()
	delete(r.instances, componentID)
	if set, ok := r.byConnection[inst.ConnectionID]; ok {
		delete(set, componentID)
		if len(set) == 0 {
			delete(r.byConnection, inst.ConnectionID)
		}
	}
	r.instMu.Unlock()
}

// CleanupConnection unmounts every instance owned by a closing
// connection (spec.md §3 "death of the connection destroys the
// instance").
func (r *Registry) CleanupConnection(connectionID string) {
	r.instMu.RLock()
	ids := make([]string, 0, len(r.byConnection[connectionID]))
	for id := range r.byConnection[connectionID] {
		ids = append(ids, id)
	}
	r.instMu.RUnlock()
	for _, id := range ids {
		r.Unmount(id)
	}
}

// Touch reports whether a live instance exists and, if it does,
// refreshes its last-activity timestamp — used by
// COMPONENT_PING (spec.md §8: "never mutates state but always
// refreshes lastActivity").
func (r *Registry) Touch(componentID string) bool {
	inst, ok := r.get(componentID)
	if !ok {
		return false
	}
	inst.touch()
	return true
}

func (r *Registry) get(componentID string) (*Instance, bool) {
	r.instMu.RLock()
	defer r.instMu.RUnlock()
	inst, ok := r.instances[componentID]
	return inst, ok
}

// Stats summarizes registry-wide state for the HTTP management surface
// (spec.md §6 "GET /api/live/stats").
type Stats struct {
	TotalInstances int
	ByClass        map[string]int
	ByHealth       map[Health]int
}

func (r *Registry) Stats() Stats {
	r.instMu.RLock()
	defer r.instMu.RUnlock()
	stats := Stats{ByClass: map[string]int{}, ByHealth: map[Health]int{}}
	for _, inst := range r.instances {
		stats.TotalInstances++
		stats.ByClass[inst.ClassName]++
		stats.ByHealth[inst.Metadata().Health]++
	}
	return stats
}

// healthLoop runs the periodic supervision pass (spec.md §4.F "Health
// monitoring").
func (r *Registry) healthLoop() {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.checkHealth()
		case <-r.done:
			return
		}
	}
}

func (r *Registry) checkHealth() {
	r.instMu.RLock()
	insts := make([]*Instance, 0, len(r.instances))
	for _, inst := range r.instances {
		insts = append(insts, inst)
	}
	r.instMu.RUnlock()

	for _, inst := range insts {
		meta := inst.Metadata()
		switch {
		case meta.Metrics.ErrorCount > errorUnhealthyAt:
			r.recover(inst)
		case time.Since(meta.LastActivity) > idleDegradedAfter:
			inst.metaMu.Lock()
			inst.meta.Health = HealthDegraded
			inst.metaMu.Unlock()
		case inst.estimateMemory() > memoryDegradedBytes:
			inst.metaMu.Lock()
			inst.meta.Health = HealthDegraded
			inst.metaMu.Unlock()
		}
	}
}

// recover resets an unhealthy instance back to healthy: it clears the
// error count, marks the instance healthy, and reports
// COMPONENT_RECOVERED through onRecovered. The reset has no failing
// step, so recover never moves an instance to the error state.
func (r *Registry) recover(inst *Instance) {
	inst.metaMu.Lock()
	inst.meta.Metrics.ErrorCount = 0
	inst.meta.Health = HealthHealthy
	inst.metaMu.Unlock()

	if r.onRecovered != nil {
		r.onRecovered(inst.ID)
	}
}
