package dispatch

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnregisteredType is returned when a source type has no registered
// handler. It indicates a configuration error upstream, not missing data.
var ErrUnregisteredType = errors.New("source type is not registered")

// SourceTypeHandler describes how packets of one source type are
// interpreted when resolving them against persisted data sources.
type SourceTypeHandler interface {
	// ExtractSourceID derives the data-source identity key from a packet.
	ExtractSourceID(p DataPacket) string
}

// SourceIDFunc adapts a plain function to a SourceTypeHandler.
type SourceIDFunc func(p DataPacket) string

func (f SourceIDFunc) ExtractSourceID(p DataPacket) string { return f(p) }

// DefaultSourceTypeHandler resolves packets by their SourceID as-is.
var DefaultSourceTypeHandler SourceTypeHandler = SourceIDFunc(func(p DataPacket) string {
	return p.SourceID
})

// SourceTypeRegistry maps a source type tag to its handler. It is an
// explicit, constructed object injected into the engine rather than a
// package-level singleton, so tests and multiple configurations can
// coexist in one process. Intended discipline is write-once during
// startup, read-many afterwards; the mutex makes violations safe, not
// fast.
type SourceTypeRegistry struct {
	handlers map[string]SourceTypeHandler
	mu       sync.RWMutex
}

// NewSourceTypeRegistry creates an empty registry.
func NewSourceTypeRegistry() *SourceTypeRegistry {
	return &SourceTypeRegistry{
		handlers: make(map[string]SourceTypeHandler),
	}
}

// Register adds a handler for the given source type. Registering the
// same type twice is an error.
func (r *SourceTypeRegistry) Register(sourceType string, h SourceTypeHandler) error {
	if sourceType == "" {
		return fmt.Errorf("source type must not be empty")
	}
	if h == nil {
		return fmt.Errorf("handler for source type %q must not be nil", sourceType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[sourceType]; exists {
		return fmt.Errorf("source type %q already registered", sourceType)
	}

	r.handlers[sourceType] = h
	return nil
}

// Lookup returns the handler for the given source type, or an error
// wrapping ErrUnregisteredType.
func (r *SourceTypeRegistry) Lookup(sourceType string) (SourceTypeHandler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[sourceType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnregisteredType, sourceType)
	}
	return h, nil
}

// Types returns the registered source types in sorted order.
func (r *SourceTypeRegistry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
