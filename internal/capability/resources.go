// ABOUTME: Resource manager: URI-keyed registration, listing, and reads.
// ABOUTME: Reads validate root boundaries before the connection is contacted.

package capability

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/2389/fold-host/internal/filter"
	"github.com/2389/fold-host/internal/protocol"
	"github.com/2389/fold-host/internal/roots"
	"github.com/2389/fold-host/internal/router"
)

// ResourceDescriptor is the host-side record of one registered resource.
type ResourceDescriptor struct {
	URI         string
	Name        string
	Description string
	MimeType    string
	Connection  string
	Weight      float64
}

// ResourceManager maintains resource registrations and serves reads.
// Resources are keyed by URI; the static exclusion list matches on the
// resource name, same as tools and prompts.
type ResourceManager struct {
	mu     sync.RWMutex
	byConn map[string][]ResourceDescriptor

	router   *router.Router
	filter   *filter.Filter
	roots    *roots.Registry
	sessions SessionSource
	logger   *slog.Logger
}

// NewResourceManager creates an empty resource manager.
func NewResourceManager(rt *router.Router, f *filter.Filter, boundaries *roots.Registry, sessions SessionSource, logger *slog.Logger) *ResourceManager {
	return &ResourceManager{
		byConn:   make(map[string][]ResourceDescriptor),
		router:   rt,
		filter:   f,
		roots:    boundaries,
		sessions: sessions,
		logger:   logger,
	}
}

// Register records the resources a connection advertised, minus those whose
// names are excluded, and feeds the kept URIs to the router.
func (m *ResourceManager) Register(connection string, weight float64, exclude map[string]struct{}, resources []protocol.ResourceInfo) {
	kept := make([]ResourceDescriptor, 0, len(resources))
	uris := make([]string, 0, len(resources))
	for _, r := range resources {
		if _, drop := exclude[r.Name]; drop {
			continue
		}
		kept = append(kept, ResourceDescriptor{
			URI:         r.URI,
			Name:        r.Name,
			Description: r.Description,
			MimeType:    r.MimeType,
			Connection:  connection,
			Weight:      weight,
		})
		uris = append(uris, r.URI)
	}

	m.mu.Lock()
	m.byConn[connection] = kept
	m.mu.Unlock()

	m.router.Register(router.ClassResources, connection, weight, uris)

	m.logger.Info("resources registered",
		"connection", connection,
		"advertised", len(resources),
		"registered", len(kept),
		"excluded", len(resources)-len(kept),
	)
}

// Unregister drops all resource descriptors for a connection.
func (m *ResourceManager) Unregister(connection string) {
	m.mu.Lock()
	delete(m.byConn, connection)
	m.mu.Unlock()
}

// List returns the resources visible for the given task context.
func (m *ResourceManager) List(taskContext string) []ResourceDescriptor {
	m.mu.RLock()
	conns := make([]string, 0, len(m.byConn))
	for conn := range m.byConn {
		conns = append(conns, conn)
	}
	sort.Strings(conns)

	all := make([]ResourceDescriptor, 0)
	for _, conn := range conns {
		all = append(all, m.byConn[conn]...)
	}
	m.mu.RUnlock()

	candidates := make([]filter.Candidate, len(all))
	for i, d := range all {
		candidates[i] = filter.Candidate{
			Name:        d.Name,
			Description: d.Description,
			Connection:  d.Connection,
			Weight:      d.Weight,
		}
	}

	mask := m.filter.Keep(taskContext, candidates)
	out := make([]ResourceDescriptor, 0, len(all))
	for i, keep := range mask {
		if keep {
			out = append(out, all[i])
		}
	}
	return out
}

// Read retrieves resource contents by URI. Before the connection is
// contacted the URI is validated against the connection's root boundaries;
// a URI outside them is refused without any traffic leaving the host.
func (m *ResourceManager) Read(ctx context.Context, connection, uri string) (*protocol.ReadResourceResult, error) {
	if connection == "" {
		selected, err := m.router.Select(router.ClassResources, uri)
		if err != nil {
			return nil, err
		}
		connection = selected
	}

	sess, err := m.sessions.ReadySession(connection)
	if err != nil {
		return nil, err
	}

	if !m.offers(connection, uri) {
		return nil, fmt.Errorf("%w: resource %q on connection %q", router.ErrCapabilityNotFound, uri, connection)
	}

	if !m.roots.ValidateAccess(connection, uri) {
		m.logger.Warn("resource read refused by root boundary",
			"connection", connection,
			"uri", uri,
		)
		return nil, fmt.Errorf("%w: %q outside roots of connection %q", roots.ErrAccessDenied, uri, connection)
	}

	m.logger.Debug("reading resource", "uri", uri, "connection", connection)
	return sess.ReadResource(ctx, uri)
}

func (m *ResourceManager) offers(connection, uri string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, d := range m.byConn[connection] {
		if d.URI == uri {
			return true
		}
	}
	return false
}
