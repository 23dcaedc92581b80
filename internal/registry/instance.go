package registry

import (
	"sync"
	"time"

	"github.com/liveframe/live/pkg/authgate"
)

// Instance is one live, mounted component (spec.md §3 "Component
// Instance"). Every field outside the per-instance lock is immutable
// after construction, except Version, which Migrate rewrites while
// holding actionMu; state mutations and metadata updates go through
// the registry so they stay serialized with action dispatch (spec.md
// §5 "Per component: actions are serialized").
type Instance struct {
	ID            string
	ClassName     string
	Version       int
	ConnectionID  string
	UserID        string
	RoomID        string
	DebugLabel    string

	component    LiveComponent
	auth         *authgate.AuthContext
	authProvider authgate.Provider
	broadcast    func(event string, payload any) error

	// actionMu serializes ExecuteAction calls on this instance — the
	// spec.md §9 invariant that at most one action runs on a given
	// component at any time.
	actionMu sync.Mutex

	stateMu sync.Mutex
	state   map[string]any

	metaMu sync.Mutex
	meta   Metadata
}

// State returns a shallow copy of the instance's current state.
func (inst *Instance) State() map[string]any {
	inst.stateMu.Lock()
	defer inst.stateMu.Unlock()
	out := make(map[string]any, len(inst.state))
	for k, v := range inst.state {
		out[k] = v
	}
	return out
}

// setState replaces the instance's state wholesale (used by rehydration
// and migration, which both hold their own envelope-derived snapshot).
func (inst *Instance) setState(s map[string]any) {
	inst.stateMu.Lock()
	inst.state = s
	inst.stateMu.Unlock()
}

// setProperty shallow-sets a single state key (spec.md §4.F "Property
// update") and returns the resulting state snapshot.
func (inst *Instance) setProperty(key string, value any) map[string]any {
	inst.stateMu.Lock()
	inst.state[key] = value
	out := make(map[string]any, len(inst.state))
	for k, v := range inst.state {
		out[k] = v
	}
	inst.stateMu.Unlock()
	return out
}

// Metadata returns a copy of the instance's current metadata.
func (inst *Instance) Metadata() Metadata {
	inst.metaMu.Lock()
	defer inst.metaMu.Unlock()
	return inst.meta
}

func (inst *Instance) touch() {
	inst.metaMu.Lock()
	inst.meta.LastActivity = time.Now()
	inst.metaMu.Unlock()
}

func (inst *Instance) transition(s State) {
	inst.metaMu.Lock()
	inst.meta.State = s
	inst.metaMu.Unlock()
}

func (inst *Instance) recordAction(err error, d time.Duration) {
	inst.metaMu.Lock()
	inst.meta.LastActivity = time.Now()
	inst.meta.Metrics.ActionCount++
	inst.meta.Metrics.RenderCount++
	inst.meta.Metrics.TotalRenderTime += d
	inst.meta.Metrics.LastRenderTime = d
	if err != nil {
		inst.meta.Metrics.ErrorCount++
	}
	inst.metaMu.Unlock()
}

func (inst *Instance) recordMigration(rec MigrationRecord) {
	inst.metaMu.Lock()
	inst.meta.MigrationHistory = append(inst.meta.MigrationHistory, rec)
	inst.metaMu.Unlock()
}

func (inst *Instance) estimateMemory() int64 {
	inst.stateMu.Lock()
	n := int64(len(inst.state)) * 128
	inst.stateMu.Unlock()
	return n
}
