package envconfig

import "testing"

func TestParseLiveLoggingBoolean(t *testing.T) {
	enabled, cats := parseLiveLogging("true")
	if !enabled {
		t.Fatalf("expected enabled")
	}
	if !cats[LogRooms] || !cats[LogWebSocket] {
		t.Fatalf("expected all categories enabled, got %v", cats)
	}
}

func TestParseLiveLoggingCSV(t *testing.T) {
	enabled, cats := parseLiveLogging("rooms,state")
	if !enabled {
		t.Fatalf("expected enabled")
	}
	if !cats[LogRooms] || !cats[LogState] {
		t.Fatalf("expected rooms+state enabled, got %v", cats)
	}
	if cats[LogWebSocket] {
		t.Fatalf("did not expect websocket category enabled")
	}
}

func TestValidateRequiresStateSecret(t *testing.T) {
	cfg := DefaultConfig()
	if _, err := cfg.Validate(); err == nil {
		t.Fatalf("expected error when STATE_SECRET is empty")
	}
}

func TestValidateWarnsOnShortSecret(t *testing.T) {
	cfg := DefaultConfig().WithStateSecret("short-secret")
	warnings, err := cfg.Validate()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(warnings) == 0 {
		t.Fatalf("expected a warning about short secret")
	}
}
