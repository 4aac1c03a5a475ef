package command

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pulse-protocol/pulse-go/pkg/errdefs"
	"github.com/pulse-protocol/pulse-go/pkg/packet"
	"github.com/pulse-protocol/pulse-go/pkg/version"
)

// Registry errors.
var (
	// ErrUnknownCommand indicates no handler for a (family, id, version) triple.
	ErrUnknownCommand = fmt.Errorf("%w: unknown command", errdefs.ErrProtocol)

	// ErrDuplicateHandler indicates a second registration for the same key.
	ErrDuplicateHandler = fmt.Errorf("%w: handler already registered", errdefs.ErrValidation)

	// ErrNilHandler indicates Register was called without a handler.
	ErrNilHandler = fmt.Errorf("%w: nil handler", errdefs.ErrValidation)
)

// Handler processes one received packet.
type Handler interface {
	HandlePacket(p packet.Packet) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(p packet.Packet) error

// HandlePacket calls f(p).
func (f HandlerFunc) HandlePacket(p packet.Packet) error {
	return f(p)
}

// Key identifies a handler registration.
type Key struct {
	Family  uint32
	ID      uint32
	Version version.Version
}

// String returns the key for logs.
func (k Key) String() string {
	return fmt.Sprintf("%s v%s", packet.Name(packet.Header(k.Family, k.ID)), k.Version)
}

// Registry maps (family, id, version) to handlers. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[Key]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[Key]Handler)}
}

// Register adds a handler. Registering the same key twice is an error.
func (r *Registry) Register(family, id uint32, v version.Version, h Handler) error {
	if h == nil {
		return ErrNilHandler
	}
	if family > packet.MaxFamily || id > packet.MaxID {
		return errdefs.Validationf("family %d id %d out of range", family, id)
	}

	key := Key{Family: family, ID: id, Version: v}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, key)
	}
	r.handlers[key] = h
	return nil
}

// MustRegister is like Register but panics on error. Use it for static
// handler tables built at startup.
func (r *Registry) MustRegister(family, id uint32, v version.Version, h Handler) {
	if err := r.Register(family, id, v, h); err != nil {
		panic(err)
	}
}

// Resolve returns the handler for the key or ErrUnknownCommand.
func (r *Registry) Resolve(family, id uint32, v version.Version) (Handler, error) {
	r.mu.RLock()
	h, ok := r.handlers[Key{Family: family, ID: id, Version: v}]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: family %d id %d version %s", ErrUnknownCommand, family, id, v)
	}
	return h, nil
}

// Len returns the number of registered handlers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Keys returns every registered key, ordered by family, id and version.
func (r *Registry) Keys() []Key {
	r.mu.RLock()
	keys := make([]Key, 0, len(r.handlers))
	for k := range r.handlers {
		keys = append(keys, k)
	}
	r.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Family != b.Family {
			return a.Family < b.Family
		}
		if a.ID != b.ID {
			return a.ID < b.ID
		}
		return a.Version.Less(b.Version)
	})
	return keys
}
