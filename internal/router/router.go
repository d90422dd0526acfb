// ABOUTME: Capability routing tables mapping names to providing connections.
// ABOUTME: Deterministic selection: weight 1.0 first, then registration order.

package router

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrCapabilityNotFound indicates no connection provides the requested name.
var ErrCapabilityNotFound = errors.New("capability not found")

// Class identifies which routing table an entry belongs to.
type Class string

// Routing classes. Tools and prompts route by capability name; resources
// route by URI, using the same selection rules.
const (
	ClassTools     Class = "tools"
	ClassPrompts   Class = "prompts"
	ClassResources Class = "resources"
)

// provider is one connection offering a capability name.
type provider struct {
	connection string
	weight     float64
	seq        uint64
}

// Router maintains name-to-connections mappings and selects a connection
// when several qualify.
type Router struct {
	mu     sync.RWMutex
	tables map[Class]map[string][]provider
	seq    uint64
	logger *slog.Logger
}

// NewRouter creates an empty Router.
func NewRouter(logger *slog.Logger) *Router {
	return &Router{
		tables: map[Class]map[string][]provider{
			ClassTools:     make(map[string][]provider),
			ClassPrompts:   make(map[string][]provider),
			ClassResources: make(map[string][]provider),
		},
		logger: logger,
	}
}

// Register records that a connection provides the named capabilities.
// Registration order is preserved and used as the selection tie-break.
func (r *Router) Register(class Class, connection string, weight float64, names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	table, ok := r.tables[class]
	if !ok {
		table = make(map[string][]provider)
		r.tables[class] = table
	}

	r.seq++
	entry := provider{connection: connection, weight: weight, seq: r.seq}
	for _, name := range names {
		table[name] = append(table[name], entry)
	}

	r.logger.Debug("registered capabilities",
		"class", string(class),
		"connection", connection,
		"weight", weight,
		"count", len(names),
	)
}

// Unregister removes every entry owned by the connection, in all classes.
func (r *Router) Unregister(connection string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, table := range r.tables {
		for name, providers := range table {
			kept := providers[:0]
			for _, p := range providers {
				if p.connection != connection {
					kept = append(kept, p)
				}
			}
			if len(kept) == 0 {
				delete(table, name)
			} else {
				table[name] = kept
			}
		}
	}
}

// Select picks the connection that serves the named capability.
// When several connections provide it, primaries (weight 1.0) are preferred
// over backups, and the first-registered wins among equals.
func (r *Router) Select(class Class, name string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := r.tables[class][name]
	if len(providers) == 0 {
		return "", fmt.Errorf("%w: %s %q", ErrCapabilityNotFound, class, name)
	}

	best := providers[0]
	for _, p := range providers[1:] {
		if betterProvider(p, best) {
			best = p
		}
	}
	return best.connection, nil
}

// Providers returns the connection names offering the capability, in
// selection-preference order. Mainly useful for introspection and tests.
func (r *Router) Providers(class Class, name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := r.tables[class][name]
	if len(providers) == 0 {
		return nil
	}

	sorted := make([]provider, len(providers))
	copy(sorted, providers)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && betterProvider(sorted[j], sorted[j-1]); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}

	out := make([]string, len(sorted))
	for i, p := range sorted {
		out[i] = p.connection
	}
	return out
}

// Offers reports whether the connection provides the named capability.
func (r *Router) Offers(class Class, connection, name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.tables[class][name] {
		if p.connection == connection {
			return true
		}
	}
	return false
}

// betterProvider reports whether a should be selected over b.
// Primary (weight 1.0) beats backup; earlier registration beats later.
func betterProvider(a, b provider) bool {
	aPrimary := a.weight >= 1.0
	bPrimary := b.weight >= 1.0
	if aPrimary != bPrimary {
		return aPrimary
	}
	return a.seq < b.seq
}
