// ABOUTME: Prompt manager: registration with static exclusion, listing, rendering.
// ABOUTME: Mirrors the tool manager; prompts/get replaces tools/call.

package capability

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/2389/fold-host/internal/filter"
	"github.com/2389/fold-host/internal/protocol"
	"github.com/2389/fold-host/internal/router"
)

// PromptDescriptor is the host-side record of one registered prompt template.
type PromptDescriptor struct {
	Name        string
	Description string
	Arguments   []protocol.PromptArgument
	Connection  string
	Weight      float64
}

// PromptManager maintains prompt registrations and renders templates.
type PromptManager struct {
	mu     sync.RWMutex
	byConn map[string][]PromptDescriptor

	router   *router.Router
	filter   *filter.Filter
	sessions SessionSource
	logger   *slog.Logger
}

// NewPromptManager creates an empty prompt manager.
func NewPromptManager(rt *router.Router, f *filter.Filter, sessions SessionSource, logger *slog.Logger) *PromptManager {
	return &PromptManager{
		byConn:   make(map[string][]PromptDescriptor),
		router:   rt,
		filter:   f,
		sessions: sessions,
		logger:   logger,
	}
}

// Register records the prompts a connection advertised, minus the excluded
// names, and feeds the kept names to the router.
func (m *PromptManager) Register(connection string, weight float64, exclude map[string]struct{}, prompts []protocol.PromptInfo) {
	kept := make([]PromptDescriptor, 0, len(prompts))
	names := make([]string, 0, len(prompts))
	for _, p := range prompts {
		if _, drop := exclude[p.Name]; drop {
			continue
		}
		kept = append(kept, PromptDescriptor{
			Name:        p.Name,
			Description: p.Description,
			Arguments:   p.Arguments,
			Connection:  connection,
			Weight:      weight,
		})
		names = append(names, p.Name)
	}

	m.mu.Lock()
	m.byConn[connection] = kept
	m.mu.Unlock()

	m.router.Register(router.ClassPrompts, connection, weight, names)

	m.logger.Info("prompts registered",
		"connection", connection,
		"advertised", len(prompts),
		"registered", len(kept),
		"excluded", len(prompts)-len(kept),
	)
}

// Unregister drops all prompt descriptors for a connection.
func (m *PromptManager) Unregister(connection string) {
	m.mu.Lock()
	delete(m.byConn, connection)
	m.mu.Unlock()
}

// List returns the prompts visible for the given task context.
func (m *PromptManager) List(taskContext string) []PromptDescriptor {
	m.mu.RLock()
	conns := make([]string, 0, len(m.byConn))
	for conn := range m.byConn {
		conns = append(conns, conn)
	}
	sort.Strings(conns)

	all := make([]PromptDescriptor, 0)
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
	out := make([]PromptDescriptor, 0, len(all))
	for i, keep := range mask {
		if keep {
			out = append(out, all[i])
		}
	}
	return out
}

// Get renders a prompt template with the supplied arguments. Resolution
// follows the same rules as tool execution: the router answers unscoped
// requests, an unavailable connection wins over an unknown name, and the
// registry is re-checked before dispatch.
func (m *PromptManager) Get(ctx context.Context, connection, name string, args map[string]string) (*protocol.GetPromptResult, error) {
	if connection == "" {
		selected, err := m.router.Select(router.ClassPrompts, name)
		if err != nil {
			return nil, err
		}
		connection = selected
	}

	sess, err := m.sessions.ReadySession(connection)
	if err != nil {
		return nil, err
	}

	if !m.offers(connection, name) {
		return nil, fmt.Errorf("%w: prompt %q on connection %q", router.ErrCapabilityNotFound, name, connection)
	}

	m.logger.Debug("rendering prompt", "prompt", name, "connection", connection)
	return sess.GetPrompt(ctx, name, args)
}

func (m *PromptManager) offers(connection, name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, d := range m.byConn[connection] {
		if d.Name == name {
			return true
		}
	}
	return false
}
