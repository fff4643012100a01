package subagent

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownAgent is returned when a label is not registered.
var ErrUnknownAgent = errors.New("unknown agent")

// Registration pairs a descriptor with its implementation.
type Registration struct {
	Descriptor Descriptor
	Agent      Agent
}

// Registry maps capability names to agents. Registrations happen during
// initialization; the registry is read-only afterwards.
type Registry struct {
	entries map[string]Registration
	mu      sync.RWMutex
	sealed  bool
}

// NewRegistry creates an empty agent registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]Registration),
	}
}

// Register adds an agent under its descriptor name.
func (r *Registry) Register(reg Registration) error {
	if reg.Descriptor.Name == "" {
		return fmt.Errorf("agent name is required")
	}
	if reg.Agent == nil {
		return fmt.Errorf("agent %s: implementation is required", reg.Descriptor.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("registry is sealed")
	}
	if _, exists := r.entries[reg.Descriptor.Name]; exists {
		return fmt.Errorf("agent already registered: %s", reg.Descriptor.Name)
	}

	r.entries[reg.Descriptor.Name] = reg
	return nil
}

// Seal marks initialization complete. Further Register calls fail.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// Resolve returns the registration for a label.
func (r *Registry) Resolve(label string) (Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, exists := r.entries[label]
	if !exists {
		return Registration{}, fmt.Errorf("%w: %s", ErrUnknownAgent, label)
	}

	return reg, nil
}

// List returns all descriptors sorted by name, for exposure to the
// reasoning engine when it must choose among agents.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descriptors := make([]Descriptor, 0, len(r.entries))
	for _, reg := range r.entries {
		descriptors = append(descriptors, reg.Descriptor)
	}
	sort.Slice(descriptors, func(i, j int) bool {
		return descriptors[i].Name < descriptors[j].Name
	})

	return descriptors
}

// Labels returns all registered capability names sorted alphabetically.
func (r *Registry) Labels() []string {
	descriptors := r.List()
	labels := make([]string, len(descriptors))
	for i, d := range descriptors {
		labels[i] = d.Name
	}
	return labels
}

// Count returns the number of registered agents.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries)
}
