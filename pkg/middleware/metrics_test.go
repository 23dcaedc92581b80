package middleware

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewRegistersAgainstCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(WithRegistry(reg), WithNamespace("test"))
	c.ActiveConnections.Set(3)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "test_active_connections" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected test_active_connections metric to be registered")
	}
}

func TestGlobalIsSingleton(t *testing.T) {
	a := Global()
	b := Global()
	if a != b {
		t.Fatalf("expected Global() to return the same collector instance")
	}
}
