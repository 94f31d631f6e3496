package registry

import (
	"fmt"
	"strings"
	"sync"

	"github.com/cuemby/warren/pkg/hosterrors"
)

// ServiceEntry names which plugin provides a given service name.
type ServiceEntry struct {
	Name       string
	PluginName string
}

// ServiceRegistry is the strict registry named in spec §4.10: duplicate
// names and empty/whitespace names are rejected outright, and List returns
// an isolated snapshot copy.
type ServiceRegistry struct {
	mu       sync.RWMutex
	services map[string]ServiceEntry
}

// NewServiceRegistry constructs an empty service registry.
func NewServiceRegistry() *ServiceRegistry {
	return &ServiceRegistry{services: make(map[string]ServiceEntry)}
}

// Register adds one service-name -> providing-plugin mapping. Fails with
// hosterrors.KindServiceRegistration on an empty/whitespace name or a
// duplicate registration.
func (r *ServiceRegistry) Register(name, pluginName string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return hosterrors.New(hosterrors.KindServiceRegistration, pluginName, "Register",
			fmt.Errorf("service name must not be empty or whitespace"))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, exists := r.services[trimmed]; exists {
		return hosterrors.New(hosterrors.KindServiceRegistration, pluginName, "Register",
			fmt.Errorf("service %q already provided by plugin %q", trimmed, existing.PluginName))
	}
	r.services[trimmed] = ServiceEntry{Name: trimmed, PluginName: pluginName}
	return nil
}

// Unregister removes every service entry provided by pluginName. The run
// command calls it on each load, initial or restart, just before the
// plugin's services are registered again.
func (r *ServiceRegistry) Unregister(pluginName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, entry := range r.services {
		if entry.PluginName == pluginName {
			delete(r.services, name)
		}
	}
}

// Get returns the plugin providing name, if any.
func (r *ServiceRegistry) Get(name string) (ServiceEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.services[name]
	return e, ok
}

// List returns a snapshot copy of every registered service (spec §4.10:
// "list() returns a snapshot copy so external mutation is isolated").
func (r *ServiceRegistry) List() []ServiceEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ServiceEntry, 0, len(r.services))
	for _, e := range r.services {
		out = append(out, e)
	}
	return out
}
