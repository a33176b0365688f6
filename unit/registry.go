package unit

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/beamline/forge/internal/util"
)

// Factory instantiates a fresh unit. Worker processes create their own
// instance through the registry; unit instances never cross the process
// boundary themselves.
type Factory func() Unit

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a unit type available to worker processes under a stable
// name. Registration is explicit: the runtime never discovers unit types by
// scanning. It must happen in both the coordinator and worker binary, which
// are the same executable, so an init() of the defining package is the usual
// place. Registering the same name twice panics.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		panic("unit: duplicate registration of " + name)
	}
	registry[name] = factory
}

// Create instantiates the unit registered under name.
func Create(name string) (Unit, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.Errorf("unit %q is not registered", name)
	}
	return factory(), nil
}

// Registered reports whether a unit name is known. The coordinator checks it
// before spawning workers that would fail their handshake.
func Registered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[name]
	return ok
}

// Named lets a unit override the name it is scheduled and registered under.
type Named interface {
	Name() string
}

// NameOf returns the unit's scheduling name: Named when implemented,
// otherwise the Go type name.
func NameOf(u Unit) string {
	if n, ok := u.(Named); ok {
		return n.Name()
	}
	return util.NameOfType(u)
}
