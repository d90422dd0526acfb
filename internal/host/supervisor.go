// ABOUTME: Per-connection supervisor: open, handshake, discover, register, park.
// ABOUTME: The same goroutine that opens a session is the one that closes it.

package host

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/2389/fold-host/internal/config"
	"github.com/2389/fold-host/internal/protocol"
	"github.com/2389/fold-host/internal/roots"
	"github.com/2389/fold-host/internal/session"
)

// State is a connection's position in its lifecycle.
type State string

// Connection lifecycle states.
const (
	StatePending State = "pending"
	StateReady   State = "ready"
	StateFailed  State = "failed"
	StateClosed  State = "closed"
)

// StartupReport is the aggregated outcome of Host.Start.
type StartupReport struct {
	// Ready lists connections that completed startup, in configuration order.
	Ready []string
	// Failed maps connection names to their startup error.
	Failed map[string]error
}

// AllFailed reports whether not a single connection came up.
func (r *StartupReport) AllFailed() bool {
	return len(r.Ready) == 0 && len(r.Failed) > 0
}

// ConnectionStatus is one row of the host's connection listing.
type ConnectionStatus struct {
	Name      string
	Transport string
	State     State
	Err       error
}

// supervisor tracks one connection's goroutine and state.
type supervisor struct {
	conn config.Connection

	mu      sync.Mutex
	state   State
	sess    session.Session
	upErr   error
	downErr error

	// startupDone closes when startup succeeded or failed.
	startupDone chan struct{}
	// stopOnce/stopCh ask the supervisor goroutine to unwind.
	stopOnce sync.Once
	stopCh   chan struct{}
	// exited closes after the session is closed and state is final.
	exited chan struct{}
}

func newSupervisor(conn config.Connection) *supervisor {
	return &supervisor{
		conn:        conn,
		state:       StatePending,
		startupDone: make(chan struct{}),
		stopCh:      make(chan struct{}),
		exited:      make(chan struct{}),
	}
}

func (s *supervisor) current() (State, session.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.sess
}

func (s *supervisor) startupErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upErr
}

func (s *supervisor) closeErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.downErr
}

func (s *supervisor) stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *supervisor) setReady(sess session.Session) {
	s.mu.Lock()
	s.state = StateReady
	s.sess = sess
	s.mu.Unlock()
}

func (s *supervisor) setFailed(err error) {
	s.mu.Lock()
	s.state = StateFailed
	s.upErr = err
	s.mu.Unlock()
}

func (s *supervisor) setClosed(err error) {
	s.mu.Lock()
	s.state = StateClosed
	s.sess = nil
	s.downErr = err
	s.mu.Unlock()
}

// runSupervisor is the whole life of one connection. It runs on its own
// goroutine and never hands its session to another goroutine for closing.
func (h *Host) runSupervisor(ctx context.Context, sup *supervisor) {
	defer close(sup.exited)

	name := sup.conn.Name
	logger := h.logger.With("connection", name, "transport", sup.conn.Transport)

	sess, err := h.open(ctx, sup.conn, logger)
	if err != nil {
		sup.setFailed(fmt.Errorf("%w: %v", ErrConnectionOpenFailed, err))
		logger.Error("=== CONNECTION FAILED ===", "stage", "open", "error", err)
		close(sup.startupDone)
		return
	}

	if err := sess.Initialize(ctx); err != nil {
		sup.setFailed(fmt.Errorf("%w: handshake: %v", ErrConnectionOpenFailed, err))
		logger.Error("=== CONNECTION FAILED ===", "stage", "initialize", "error", err)
		_ = sess.Close()
		close(sup.startupDone)
		return
	}

	discovered, err := h.discover(ctx, sup.conn, sess)
	if err != nil {
		sup.setFailed(fmt.Errorf("%w: %v", ErrDiscoveryFailed, err))
		logger.Error("=== CONNECTION FAILED ===", "stage", "discovery", "error", err)
		_ = sess.Close()
		close(sup.startupDone)
		return
	}

	h.register(sup.conn, discovered)
	sup.setReady(sess)
	logger.Info("=== CONNECTION READY ===",
		"tools", len(discovered.tools),
		"prompts", len(discovered.prompts),
		"resources", len(discovered.resources),
	)
	close(sup.startupDone)

	select {
	case <-sup.stopCh:
	case <-h.done:
	}

	h.unregister(name)
	closeErr := sess.Close()
	sup.setClosed(closeErr)
	logger.Info("=== CONNECTION CLOSED ===", "error", closeErr)
}

// discovered holds everything a connection advertised during startup.
type discovered struct {
	tools     []protocol.ToolInfo
	prompts   []protocol.PromptInfo
	resources []protocol.ResourceInfo
}

// discover queries the capability classes the connection is allowed to
// expose. A server that does not implement a list method contributes an
// empty class rather than failing discovery.
func (h *Host) discover(ctx context.Context, conn config.Connection, sess session.Session) (*discovered, error) {
	var d discovered
	var err error

	if conn.AllowsClass(config.ClassTools) {
		d.tools, err = sess.ListTools(ctx)
		if err != nil && !isMethodNotFound(err) {
			return nil, fmt.Errorf("listing tools: %w", err)
		}
	}
	if conn.AllowsClass(config.ClassPrompts) {
		d.prompts, err = sess.ListPrompts(ctx)
		if err != nil && !isMethodNotFound(err) {
			return nil, fmt.Errorf("listing prompts: %w", err)
		}
	}
	if conn.AllowsClass(config.ClassResources) {
		d.resources, err = sess.ListResources(ctx)
		if err != nil && !isMethodNotFound(err) {
			return nil, fmt.Errorf("listing resources: %w", err)
		}
	}
	return &d, nil
}

// register wires everything a ready connection contributes into the shared
// registries. Runs on the supervisor goroutine before readiness is signaled,
// so a connection is never ready with half its capabilities registered.
func (h *Host) register(conn config.Connection, d *discovered) {
	boundaries := make([]roots.Root, 0, len(conn.Roots))
	for _, r := range conn.Roots {
		boundaries = append(boundaries, roots.Root{
			URI:          r.URI,
			Name:         r.Name,
			Capabilities: r.Capabilities,
		})
	}
	h.rootReg.Register(conn.Name, boundaries)

	if len(conn.CredentialTypes) > 0 {
		h.credentials.Grant(conn.Name, conn.CredentialTypes...)
	}

	exclude := make(map[string]struct{}, len(conn.Exclude))
	for _, name := range conn.Exclude {
		exclude[name] = struct{}{}
	}

	h.tools.Register(conn.Name, conn.RoutingWeight, exclude, d.tools)
	h.prompts.Register(conn.Name, conn.RoutingWeight, exclude, d.prompts)
	h.resources.Register(conn.Name, conn.RoutingWeight, exclude, d.resources)
}

// unregister removes a connection from every registry before its session
// closes, so in-flight routing answers fail the managers' re-check instead
// of reaching a dead session.
func (h *Host) unregister(name string) {
	h.tools.Unregister(name)
	h.prompts.Unregister(name)
	h.resources.Unregister(name)
	h.router.Unregister(name)
	h.rootReg.Unregister(name)
}

// isMethodNotFound reports whether an error is the JSON-RPC "method not
// found" answer.
func isMethodNotFound(err error) bool {
	var rpcErr *protocol.Error
	return errors.As(err, &rpcErr) && rpcErr.Code == protocol.CodeMethodNotFound
}
