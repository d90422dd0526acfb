// ABOUTME: Host orchestrator: builds the registries, fans out supervisors,
// ABOUTME: and exposes the aggregated tool/prompt/resource surface.

package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/2389/fold-host/internal/capability"
	"github.com/2389/fold-host/internal/config"
	"github.com/2389/fold-host/internal/creds"
	"github.com/2389/fold-host/internal/filter"
	"github.com/2389/fold-host/internal/protocol"
	"github.com/2389/fold-host/internal/roots"
	"github.com/2389/fold-host/internal/router"
	"github.com/2389/fold-host/internal/session"
)

// Host errors.
var (
	// ErrConnectionOpenFailed indicates the transport could not be opened or
	// the protocol handshake failed.
	ErrConnectionOpenFailed = errors.New("connection open failed")
	// ErrDiscoveryFailed indicates the connection opened but capability
	// discovery did not complete.
	ErrDiscoveryFailed = errors.New("capability discovery failed")
)

// ErrConnectionUnavailable is returned when a call targets a connection that
// is not ready. Re-exported so callers need not import the capability layer.
var ErrConnectionUnavailable = capability.ErrConnectionUnavailable

// OpenFunc establishes a session for one connection descriptor. The default
// is session.Open; tests substitute in-process fakes.
type OpenFunc func(ctx context.Context, conn config.Connection, logger *slog.Logger) (session.Session, error)

// Options configures optional host collaborators.
type Options struct {
	Logger *slog.Logger
	// Scorer enables dynamic relevance filtering. Nil disables it.
	Scorer filter.Scorer
	// Credentials is the credential store. Nil gets an in-memory store with
	// a process-local key.
	Credentials creds.Store
	// Open overrides transport establishment.
	Open OpenFunc
}

// Host owns all connections and the capability surface built from them.
type Host struct {
	connections []config.Connection
	logger      *slog.Logger
	open        OpenFunc

	router      *router.Router
	rootReg     *roots.Registry
	credentials creds.Store
	tools       *capability.ToolManager
	prompts     *capability.PromptManager
	resources   *capability.ResourceManager

	mu          sync.Mutex
	supervisors map[string]*supervisor
	order       []string

	shutdownOnce sync.Once
	shutdownErr  error
	done         chan struct{}
}

// New builds a host from validated configuration. Nothing connects until
// Start is called.
func New(cfg *config.Config, opts Options) (*Host, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	credStore := opts.Credentials
	if credStore == nil {
		store, err := creds.NewMemoryStore(creds.MemoryStoreConfig{
			TokenTTL: cfg.Credentials.TokenTTL,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("building credential store: %w", err)
		}
		credStore = store
	}

	open := opts.Open
	if open == nil {
		open = session.Open
	}

	h := &Host{
		connections: cfg.Connections,
		logger:      logger,
		open:        open,
		router:      router.NewRouter(logger),
		rootReg:     roots.NewRegistry(logger),
		credentials: credStore,
		supervisors: make(map[string]*supervisor),
		done:        make(chan struct{}),
	}

	f := filter.New(opts.Scorer, cfg.Filter.Threshold, logger)
	h.tools = capability.NewToolManager(h.router, f, h, logger)
	h.prompts = capability.NewPromptManager(h.router, f, h, logger)
	h.resources = capability.NewResourceManager(h.router, f, h.rootReg, h, logger)

	return h, nil
}

// Start opens every configured connection concurrently and waits for each to
// become ready or fail. Failures are per-connection: the report carries them
// and the surviving connections keep serving.
func (h *Host) Start(ctx context.Context) *StartupReport {
	h.mu.Lock()
	for _, conn := range h.connections {
		sup := newSupervisor(conn)
		h.supervisors[conn.Name] = sup
		h.order = append(h.order, conn.Name)

		go h.runSupervisor(ctx, sup)
	}
	h.mu.Unlock()

	// Supervisors signal startupDone whether they succeed or fail; the
	// goroutines of ready connections keep running past this point.
	report := &StartupReport{Failed: make(map[string]error)}
	h.mu.Lock()
	ordered := append([]string(nil), h.order...)
	h.mu.Unlock()

	for _, name := range ordered {
		sup := h.supervisor(name)
		<-sup.startupDone
		if err := sup.startupErr(); err != nil {
			report.Failed[name] = err
		} else {
			report.Ready = append(report.Ready, name)
		}
	}

	h.logger.Info("=== HOST STARTED ===",
		"ready", len(report.Ready),
		"failed", len(report.Failed),
	)
	return report
}

// ReadySession returns the live session for a ready connection. It is the
// capability managers' session source.
func (h *Host) ReadySession(connection string) (session.Session, error) {
	sup := h.supervisor(connection)
	if sup == nil {
		return nil, fmt.Errorf("%w: unknown connection %q", ErrConnectionUnavailable, connection)
	}

	state, sess := sup.current()
	if state != StateReady {
		return nil, fmt.Errorf("%w: connection %q is %s", ErrConnectionUnavailable, connection, state)
	}
	return sess, nil
}

// Credentials exposes the host's credential store.
func (h *Host) Credentials() creds.Store {
	return h.credentials
}

// Roots exposes the root boundary registry.
func (h *Host) Roots() *roots.Registry {
	return h.rootReg
}

// ListTools returns the visible tools for a task context, aggregated across
// all ready connections. An empty context lists everything.
func (h *Host) ListTools(taskContext string) []capability.ToolDescriptor {
	return h.tools.List(taskContext)
}

// ExecuteTool runs a tool. Empty connection routes automatically.
func (h *Host) ExecuteTool(ctx context.Context, connection, name string, args json.RawMessage) (*protocol.CallToolResult, error) {
	return h.tools.Execute(ctx, connection, name, args)
}

// ListPrompts returns the visible prompts for a task context.
func (h *Host) ListPrompts(taskContext string) []capability.PromptDescriptor {
	return h.prompts.List(taskContext)
}

// GetPrompt renders a prompt template. Empty connection routes automatically.
func (h *Host) GetPrompt(ctx context.Context, connection, name string, args map[string]string) (*protocol.GetPromptResult, error) {
	return h.prompts.Get(ctx, connection, name, args)
}

// ListResources returns the visible resources for a task context.
func (h *Host) ListResources(taskContext string) []capability.ResourceDescriptor {
	return h.resources.List(taskContext)
}

// GetResource reads resource contents by URI. Empty connection routes
// automatically; reads are validated against root boundaries first.
func (h *Host) GetResource(ctx context.Context, connection, uri string) (*protocol.ReadResourceResult, error) {
	return h.resources.Read(ctx, connection, uri)
}

// Connections returns the status of every configured connection, in
// configuration order.
func (h *Host) Connections() []ConnectionStatus {
	h.mu.Lock()
	ordered := append([]string(nil), h.order...)
	h.mu.Unlock()

	out := make([]ConnectionStatus, 0, len(ordered))
	for _, name := range ordered {
		sup := h.supervisor(name)
		state, _ := sup.current()
		out = append(out, ConnectionStatus{
			Name:      name,
			Transport: sup.conn.Transport,
			State:     state,
			Err:       sup.startupErr(),
		})
	}
	return out
}

// Shutdown stops every connection, unwinding in reverse registration order,
// and closes the credential store. Idempotent: later calls return the first
// result.
func (h *Host) Shutdown(ctx context.Context) error {
	h.shutdownOnce.Do(func() {
		close(h.done)

		h.mu.Lock()
		ordered := append([]string(nil), h.order...)
		h.mu.Unlock()

		var errs []error
		for i := len(ordered) - 1; i >= 0; i-- {
			sup := h.supervisor(ordered[i])
			sup.stop()
			select {
			case <-sup.exited:
			case <-ctx.Done():
				errs = append(errs, fmt.Errorf("waiting for connection %q: %w", sup.conn.Name, ctx.Err()))
				continue
			}
			if err := sup.closeErr(); err != nil {
				errs = append(errs, fmt.Errorf("closing connection %q: %w", sup.conn.Name, err))
			}
		}

		if err := h.credentials.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing credential store: %w", err))
		}

		h.shutdownErr = errors.Join(errs...)
		h.logger.Info("=== HOST STOPPED ===", "connections", len(ordered))
	})
	return h.shutdownErr
}

func (h *Host) supervisor(name string) *supervisor {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.supervisors[name]
}
