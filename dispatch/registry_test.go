package dispatch

import (
	"errors"
	"testing"
)

func TestSourceTypeRegistryRegisterAndLookup(t *testing.T) {
	registry := NewSourceTypeRegistry()

	if err := registry.Register("metric-alert", DefaultSourceTypeHandler); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	handler, err := registry.Lookup("metric-alert")
	if err != nil {
		t.Fatalf("Lookup() failed: %v", err)
	}
	if handler == nil {
		t.Fatal("Lookup() should return a non-nil handler")
	}

	got := handler.ExtractSourceID(DataPacket{SourceID: "query-9"})
	if got != "query-9" {
		t.Errorf("Default handler extracted %q, want query-9", got)
	}
}

func TestSourceTypeRegistryDuplicateRegistration(t *testing.T) {
	registry := NewSourceTypeRegistry()

	if err := registry.Register("test", DefaultSourceTypeHandler); err != nil {
		t.Fatalf("First Register() should succeed: %v", err)
	}
	if err := registry.Register("test", DefaultSourceTypeHandler); err == nil {
		t.Error("Second Register() with the same type should fail")
	}
}

func TestSourceTypeRegistryInvalidRegistration(t *testing.T) {
	registry := NewSourceTypeRegistry()

	if err := registry.Register("", DefaultSourceTypeHandler); err == nil {
		t.Error("Register() with an empty type should fail")
	}
	if err := registry.Register("test", nil); err == nil {
		t.Error("Register() with a nil handler should fail")
	}
}

func TestSourceTypeRegistryUnregisteredLookup(t *testing.T) {
	registry := NewSourceTypeRegistry()

	_, err := registry.Lookup("missing")
	if err == nil {
		t.Fatal("Lookup() should fail for an unregistered type")
	}
	if !errors.Is(err, ErrUnregisteredType) {
		t.Errorf("Expected ErrUnregisteredType, got %v", err)
	}
}

func TestSourceTypeRegistryTypes(t *testing.T) {
	registry := NewSourceTypeRegistry()

	for _, sourceType := range []string{"zeta", "alpha", "metric-alert"} {
		if err := registry.Register(sourceType, DefaultSourceTypeHandler); err != nil {
			t.Fatalf("Register(%s) failed: %v", sourceType, err)
		}
	}

	types := registry.Types()
	want := []string{"alpha", "metric-alert", "zeta"}
	if len(types) != len(want) {
		t.Fatalf("Types() = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("Types() = %v, want %v", types, want)
		}
	}
}
