// ABOUTME: Thread-safe registry of per-connection root URI boundaries.
// ABOUTME: Normalizes URIs and validates resource access against prefixes.

package roots

import (
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"
)

// ErrAccessDenied indicates a URI falls outside a connection's root boundaries.
var ErrAccessDenied = errors.New("access denied")

// Root is one registered URI-prefix boundary for a connection.
type Root struct {
	URI  string
	Name string
	// Capabilities lists the capability classes this root restricts.
	// Empty means resources, the only class that carries URIs.
	Capabilities []string
}

// Registry maintains root boundaries keyed by connection name.
type Registry struct {
	mu     sync.RWMutex
	roots  map[string][]Root
	logger *slog.Logger
}

// NewRegistry creates an empty root boundary registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		roots:  make(map[string][]Root),
		logger: logger,
	}
}

// Register stores the root boundaries for a connection, replacing any
// previous registration. Root URIs are normalized once here so ValidateAccess
// compares canonical forms.
func (r *Registry) Register(connection string, roots []Root) {
	normalized := make([]Root, 0, len(roots))
	for _, root := range roots {
		root.URI = normalizeURI(root.URI)
		normalized = append(normalized, root)
	}

	r.mu.Lock()
	r.roots[connection] = normalized
	r.mu.Unlock()

	r.logger.Debug("registered roots",
		"connection", connection,
		"root_count", len(normalized),
	)
}

// Unregister removes all root boundaries for a connection.
func (r *Registry) Unregister(connection string) {
	r.mu.Lock()
	delete(r.roots, connection)
	r.mu.Unlock()
}

// Roots returns a copy of the registered boundaries for a connection.
func (r *Registry) Roots(connection string) []Root {
	r.mu.RLock()
	defer r.mu.RUnlock()

	registered := r.roots[connection]
	out := make([]Root, len(registered))
	copy(out, registered)
	return out
}

// ValidateAccess reports whether the connection may be asked about the URI.
// A connection with zero registered roots has full access. Matching is
// segment-aware: a root admits itself and URIs below it, never siblings that
// merely share a string prefix.
func (r *Registry) ValidateAccess(connection, uri string) bool {
	r.mu.RLock()
	registered := r.roots[connection]
	r.mu.RUnlock()

	if len(registered) == 0 {
		return true
	}

	candidate := normalizeURI(uri)
	for _, root := range registered {
		if candidate == root.URI || strings.HasPrefix(candidate, root.URI+"/") {
			return true
		}
	}
	return false
}

// normalizeURI lowercases the scheme and host and trims a trailing slash so
// prefix comparison is not defeated by cosmetic differences.
func normalizeURI(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" {
		return strings.TrimSuffix(raw, "/")
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	return strings.TrimSuffix(parsed.String(), "/")
}
