// Package components holds the small set of Live Components registered
// by default at server startup, grounded on the registry's own test
// fixture (internal/registry/registry_test.go's counterComponent)
// generalized into components a real deployment would ship.
package components

import (
	"encoding/json"
	"fmt"

	"github.com/liveframe/live/internal/registry"
	"github.com/liveframe/live/pkg/liveerr"
)

// Counter is the minimal stateful component used throughout the wire
// protocol's literal scenarios: mount with a starting value, dispatch
// "increment" by an arbitrary delta.
type Counter struct{}

func (c *Counter) InitialState(props map[string]any) map[string]any {
	start := 0
	if v, ok := props["start"].(float64); ok {
		start = int(v)
	}
	return map[string]any{"value": start}
}

func (c *Counter) ExecuteAction(ctx *registry.ActionContext, action string, payload json.RawMessage) (any, error) {
	switch action {
	case "increment":
		var p struct {
			By float64 `json:"by"`
		}
		_ = json.Unmarshal(payload, &p)
		ctx.State["value"] = ctx.State["value"].(int) + int(p.By)
		return map[string]any{"value": ctx.State["value"]}, nil
	case "reset":
		ctx.State["value"] = 0
		return map[string]any{"value": 0}, nil
	default:
		return nil, liveerr.New(liveerr.KindComponentNotFound, fmt.Sprintf("unknown action %q", action))
	}
}

func (c *Counter) Destroy() {}

// ChatRoom is a room-aware component: every message it posts is
// broadcast to the room it mounted into, exercising the dual
// connected-client/bus delivery path (spec.md §4.D).
type ChatRoom struct{}

func (c *ChatRoom) InitialState(props map[string]any) map[string]any {
	name, _ := props["displayName"].(string)
	if name == "" {
		name = "anonymous"
	}
	return map[string]any{
		"displayName": name,
		"messages":    []any{},
	}
}

func (c *ChatRoom) ExecuteAction(ctx *registry.ActionContext, action string, payload json.RawMessage) (any, error) {
	switch action {
	case "post":
		var p struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, liveerr.New(liveerr.KindUploadRejected, "malformed post payload")
		}
		entry := map[string]any{
			"author": ctx.State["displayName"],
			"text":   p.Text,
		}
		messages, _ := ctx.State["messages"].([]any)
		ctx.State["messages"] = append(messages, entry)
		if ctx.Broadcast != nil {
			if err := ctx.Broadcast("message", entry); err != nil {
				return nil, err
			}
		}
		return entry, nil
	default:
		return nil, liveerr.New(liveerr.KindComponentNotFound, fmt.Sprintf("unknown action %q", action))
	}
}

func (c *ChatRoom) Destroy() {}

// Register installs the default component set into a Registry.
func Register(reg *registry.Registry) {
	reg.Register(registry.Definition{
		Name:    "Counter",
		Factory: func() registry.LiveComponent { return &Counter{} },
	})
	reg.Register(registry.Definition{
		Name:    "ChatRoom",
		Factory: func() registry.LiveComponent { return &ChatRoom{} },
	})
}
