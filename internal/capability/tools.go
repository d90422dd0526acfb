// ABOUTME: Tool manager: registration with static exclusion, listing, execution.
// ABOUTME: Unscoped executes resolve through the router with a registry re-check.

package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/2389/fold-host/internal/filter"
	"github.com/2389/fold-host/internal/protocol"
	"github.com/2389/fold-host/internal/router"
)

// ToolDescriptor is the host-side record of one registered tool.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Connection  string
	// Weight is the owning connection's routing weight.
	Weight float64
}

// ToolManager maintains tool registrations and dispatches executions.
type ToolManager struct {
	mu     sync.RWMutex
	byConn map[string][]ToolDescriptor

	router   *router.Router
	filter   *filter.Filter
	sessions SessionSource
	logger   *slog.Logger
}

// NewToolManager creates an empty tool manager.
func NewToolManager(rt *router.Router, f *filter.Filter, sessions SessionSource, logger *slog.Logger) *ToolManager {
	return &ToolManager{
		byConn:   make(map[string][]ToolDescriptor),
		router:   rt,
		filter:   f,
		sessions: sessions,
		logger:   logger,
	}
}

// Register records the tools a connection advertised, minus the excluded
// names, and feeds the kept names to the router. Replaces any previous
// registration for the connection.
func (m *ToolManager) Register(connection string, weight float64, exclude map[string]struct{}, tools []protocol.ToolInfo) {
	kept := make([]ToolDescriptor, 0, len(tools))
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		if _, drop := exclude[t.Name]; drop {
			continue
		}
		kept = append(kept, ToolDescriptor{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
			Connection:  connection,
			Weight:      weight,
		})
		names = append(names, t.Name)
	}

	m.mu.Lock()
	m.byConn[connection] = kept
	m.mu.Unlock()

	m.router.Register(router.ClassTools, connection, weight, names)

	m.logger.Info("tools registered",
		"connection", connection,
		"advertised", len(tools),
		"registered", len(kept),
		"excluded", len(tools)-len(kept),
	)
}

// Unregister drops all tool descriptors for a connection. Routing table
// cleanup happens separately via router.Unregister, which covers all classes.
func (m *ToolManager) Unregister(connection string) {
	m.mu.Lock()
	delete(m.byConn, connection)
	m.mu.Unlock()
}

// List returns the tools visible for the given task context, connections in
// name order and tools in registration order within each. An empty task
// context disables relevance filtering and returns everything.
func (m *ToolManager) List(taskContext string) []ToolDescriptor {
	m.mu.RLock()
	conns := make([]string, 0, len(m.byConn))
	for conn := range m.byConn {
		conns = append(conns, conn)
	}
	sort.Strings(conns)

	all := make([]ToolDescriptor, 0)
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
	out := make([]ToolDescriptor, 0, len(all))
	for i, keep := range mask {
		if keep {
			out = append(out, all[i])
		}
	}
	return out
}

// Execute runs a tool. An empty connection name routes through the router;
// a named connection must actually provide the tool. The connection's
// session is resolved before the registry lookup: a connection that failed
// to start or has closed is unavailable, whatever it might have offered.
// The registry re-check after resolution means a routing answer that went
// stale between selection and execution surfaces as not-found rather than a
// misdirected call.
func (m *ToolManager) Execute(ctx context.Context, connection, name string, args json.RawMessage) (*protocol.CallToolResult, error) {
	if connection == "" {
		selected, err := m.router.Select(router.ClassTools, name)
		if err != nil {
			return nil, err
		}
		connection = selected
	}

	sess, err := m.sessions.ReadySession(connection)
	if err != nil {
		return nil, err
	}

	if _, ok := m.lookup(connection, name); !ok {
		return nil, fmt.Errorf("%w: tool %q on connection %q", router.ErrCapabilityNotFound, name, connection)
	}

	m.logger.Debug("executing tool", "tool", name, "connection", connection)
	return sess.CallTool(ctx, name, args)
}

func (m *ToolManager) lookup(connection, name string) (ToolDescriptor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, d := range m.byConn[connection] {
		if d.Name == name {
			return d, true
		}
	}
	return ToolDescriptor{}, false
}
