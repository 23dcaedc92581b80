package registry

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/liveframe/live/pkg/authgate"
	"github.com/liveframe/live/pkg/liveerr"
	"github.com/liveframe/live/pkg/rooms"
	"github.com/liveframe/live/pkg/signature"
)

type counterComponent struct {
	destroyed bool
}

func (c *counterComponent) InitialState(props map[string]any) map[string]any {
	start := 0
	if v, ok := props["start"].(float64); ok {
		start = int(v)
	}
	return map[string]any{"value": start}
}

func (c *counterComponent) ExecuteAction(ctx *ActionContext, action string, payload json.RawMessage) (any, error) {
	switch action {
	case "increment":
		var p struct{ By float64 }
		_ = json.Unmarshal(payload, &p)
		ctx.State["value"] = ctx.State["value"].(int) + int(p.By)
		return map[string]any{"value": ctx.State["value"]}, nil
	default:
		return nil, liveerr.New("COMPONENT_NOT_FOUND", "unknown action")
	}
}

func (c *counterComponent) Destroy() { c.destroyed = true }

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	signer := signature.New("test-secret-test-secret-test-secret", signature.DefaultConfig(), slog.Default())
	t.Cleanup(signer.Close)
	gate := authgate.New(slog.Default())
	roomMgr := rooms.New(slog.Default())
	reg := New(signer, gate, roomMgr, slog.Default())
	t.Cleanup(reg.Stop)
	reg.Register(Definition{Name: "Counter", Factory: func() LiveComponent { return &counterComponent{} }})
	return reg
}

func TestMountAndDispatch(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	mounted, err := reg.Mount(ctx, MountOptions{
		ComponentName: "Counter",
		Props:         map[string]any{"start": float64(5)},
		ConnectionID:  "conn-1",
		Auth:          authgate.Anonymous(),
	})
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if mounted.InitialState["value"] != 5 {
		t.Fatalf("initial state = %v", mounted.InitialState)
	}

	payload, _ := json.Marshal(map[string]any{"by": 3})
	result, err := reg.Dispatch(ctx, mounted.ComponentID, "increment", payload)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if result.(map[string]any)["value"] != 8 {
		t.Fatalf("action result = %v", result)
	}
}

func TestDispatchMissingInstanceRequiresRehydration(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := reg.Dispatch(context.Background(), "nonexistent", "increment", nil)
	if !liveerr.As(err, "COMPONENT_REHYDRATION_REQUIRED") {
		t.Fatalf("expected rehydration-required error, got %v", err)
	}
}

func TestNameVariationResolution(t *testing.T) {
	reg := newTestRegistry(t)
	for _, name := range []string{"Counter", "CounterComponent", "counter"} {
		if _, ok := reg.resolveClass(name); !ok {
			t.Errorf("resolveClass(%q) failed", name)
		}
	}
}

func TestRehydrateClassMismatchIsTampering(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	mounted, err := reg.Mount(ctx, MountOptions{ComponentName: "Counter", ConnectionID: "conn-1", Auth: authgate.Anonymous()})
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}

	_, err = reg.Rehydrate(ctx, RehydrateOptions{
		OldComponentID: mounted.ComponentID,
		ComponentName:  "Cart",
		Envelope:       mounted.Envelope,
		ConnectionID:   "conn-2",
		Auth:           authgate.Anonymous(),
	})
	if !liveerr.As(err, "CLASS_MISMATCH") {
		t.Fatalf("expected CLASS_MISMATCH, got %v", err)
	}
}

func TestRehydrateReplayIsRejectedOnSecondUse(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	mounted, err := reg.Mount(ctx, MountOptions{ComponentName: "Counter", ConnectionID: "conn-1", Auth: authgate.Anonymous()})
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}

	if _, err := reg.Rehydrate(ctx, RehydrateOptions{
		ComponentName: "Counter",
		Envelope:      mounted.Envelope,
		ConnectionID:  "conn-2",
		Auth:          authgate.Anonymous(),
	}); err != nil {
		t.Fatalf("first rehydrate: %v", err)
	}

	_, err = reg.Rehydrate(ctx, RehydrateOptions{
		ComponentName: "Counter",
		Envelope:      mounted.Envelope,
		ConnectionID:  "conn-3",
		Auth:          authgate.Anonymous(),
	})
	if !liveerr.As(err, "REPLAY") {
		t.Fatalf("expected REPLAY, got %v", err)
	}
}

func TestUnmountCallsDestroyAndRemovesInstance(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	mounted, err := reg.Mount(ctx, MountOptions{ComponentName: "Counter", ConnectionID: "conn-1", Auth: authgate.Anonymous()})
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}

	reg.Unmount(mounted.ComponentID)

	if _, err := reg.Dispatch(ctx, mounted.ComponentID, "increment", nil); !liveerr.As(err, "COMPONENT_REHYDRATION_REQUIRED") {
		t.Fatalf("expected instance gone after unmount, got %v", err)
	}
}
