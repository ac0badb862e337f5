// Package registry holds the services known to a runtime, local and remote,
// keyed by fullname.
package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/morezero/servicebus/pkg/service"
)

const logPrefix = "registry:registry"

// Registry is a concurrency-safe map of fullname to service.
type Registry struct {
	mu       sync.RWMutex
	services map[string]service.Interface
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{services: make(map[string]service.Interface)}
}

// Register stores svc under key, replacing any previous entry.
func (r *Registry) Register(key string, svc service.Interface) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[key] = svc
	slog.Debug(fmt.Sprintf("%s - Registered %s", logPrefix, key))
}

// RegisterIfAbsent stores svc under key unless an entry already exists.
// It returns the entry now stored and whether svc was added.
func (r *Registry) RegisterIfAbsent(key string, svc service.Interface) (service.Interface, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.services[key]; ok {
		return existing, false
	}
	r.services[key] = svc
	slog.Debug(fmt.Sprintf("%s - Registered %s", logPrefix, key))
	return svc, true
}

// Release removes key and reports whether it was present.
func (r *Registry) Release(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.services[key]; !ok {
		return false
	}
	delete(r.services, key)
	slog.Debug(fmt.Sprintf("%s - Released %s", logPrefix, key))
	return true
}

// GetService looks up a service by fullname.
func (r *Registry) GetService(key string) (service.Interface, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	svc, ok := r.services[key]
	return svc, ok
}

// GetRegistry returns a snapshot of every entry.
func (r *Registry) GetRegistry() map[string]service.Interface {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]service.Interface, len(r.services))
	for k, v := range r.services {
		out[k] = v
	}
	return out
}

// GetServiceNames returns the registered fullnames, sorted.
func (r *Registry) GetServiceNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.services))
	for k := range r.services {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.services)
}
