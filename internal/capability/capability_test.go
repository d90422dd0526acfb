// ABOUTME: Tests for the tool, prompt, and resource managers with fake sessions.
// ABOUTME: Covers exclusion, routed dispatch, boundary checks, and unavailability.

package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/fold-host/internal/filter"
	"github.com/2389/fold-host/internal/protocol"
	"github.com/2389/fold-host/internal/roots"
	"github.com/2389/fold-host/internal/router"
	"github.com/2389/fold-host/internal/session"
)

// fakeSession satisfies session.Session and records which connection served
// each call so dispatch decisions are observable.
type fakeSession struct {
	name string

	callTool     func(name string, args json.RawMessage) (*protocol.CallToolResult, error)
	getPrompt    func(name string, args map[string]string) (*protocol.GetPromptResult, error)
	readResource func(uri string) (*protocol.ReadResourceResult, error)
}

func (s *fakeSession) Initialize(context.Context) error { return nil }
func (s *fakeSession) Close() error                     { return nil }

func (s *fakeSession) ListTools(context.Context) ([]protocol.ToolInfo, error)         { return nil, nil }
func (s *fakeSession) ListPrompts(context.Context) ([]protocol.PromptInfo, error)     { return nil, nil }
func (s *fakeSession) ListResources(context.Context) ([]protocol.ResourceInfo, error) { return nil, nil }

func (s *fakeSession) CallTool(_ context.Context, name string, args json.RawMessage) (*protocol.CallToolResult, error) {
	if s.callTool != nil {
		return s.callTool(name, args)
	}
	return &protocol.CallToolResult{
		Content: []protocol.Content{{Type: "text", Text: "served by " + s.name}},
	}, nil
}

func (s *fakeSession) GetPrompt(_ context.Context, name string, args map[string]string) (*protocol.GetPromptResult, error) {
	if s.getPrompt != nil {
		return s.getPrompt(name, args)
	}
	return &protocol.GetPromptResult{Description: "from " + s.name}, nil
}

func (s *fakeSession) ReadResource(_ context.Context, uri string) (*protocol.ReadResourceResult, error) {
	if s.readResource != nil {
		return s.readResource(uri)
	}
	return &protocol.ReadResourceResult{
		Contents: []protocol.ResourceContents{{URI: uri, Text: "from " + s.name}},
	}, nil
}

// fakeSource hands out fake sessions by connection name.
type fakeSource map[string]session.Session

func (f fakeSource) ReadySession(connection string) (session.Session, error) {
	sess, ok := f[connection]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrConnectionUnavailable, connection)
	}
	return sess, nil
}

// substringScorer scores 1.0 when the task context contains the capability
// name, 0.0 otherwise.
type substringScorer struct{}

func (substringScorer) Score(c filter.Candidate, taskContext string) float64 {
	if c.Name != "" && strings.Contains(taskContext, c.Name) {
		return 1.0
	}
	return 0.0
}

func passFilter() *filter.Filter {
	return filter.New(nil, 0, slog.Default())
}

func TestToolManager_ExclusionInvisible(t *testing.T) {
	rt := router.NewRouter(slog.Default())
	source := fakeSource{"alpha": &fakeSession{name: "alpha"}}
	tm := NewToolManager(rt, passFilter(), source, slog.Default())

	tm.Register("alpha", 1.0, map[string]struct{}{"hidden": {}}, []protocol.ToolInfo{
		{Name: "visible"},
		{Name: "hidden"},
	})

	listed := tm.List("")
	require.Len(t, listed, 1)
	assert.Equal(t, "visible", listed[0].Name)

	// The excluded name is unknown everywhere, including direct execution.
	_, err := tm.Execute(context.Background(), "", "hidden", nil)
	assert.ErrorIs(t, err, router.ErrCapabilityNotFound)

	_, err = tm.Execute(context.Background(), "alpha", "hidden", nil)
	assert.ErrorIs(t, err, router.ErrCapabilityNotFound)
}

func TestToolManager_RoutedExecutePrefersPrimary(t *testing.T) {
	rt := router.NewRouter(slog.Default())
	source := fakeSource{
		"backup":  &fakeSession{name: "backup"},
		"primary": &fakeSession{name: "primary"},
	}
	tm := NewToolManager(rt, passFilter(), source, slog.Default())

	// Backup registers first; the primary must still win.
	tm.Register("backup", 0.5, nil, []protocol.ToolInfo{{Name: "lookup"}})
	tm.Register("primary", 1.0, nil, []protocol.ToolInfo{{Name: "lookup"}})

	result, err := tm.Execute(context.Background(), "", "lookup", nil)
	require.NoError(t, err)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "served by primary", result.Content[0].Text)
}

func TestToolManager_ScopedExecute(t *testing.T) {
	rt := router.NewRouter(slog.Default())
	source := fakeSource{
		"backup":  &fakeSession{name: "backup"},
		"primary": &fakeSession{name: "primary"},
	}
	tm := NewToolManager(rt, passFilter(), source, slog.Default())

	tm.Register("primary", 1.0, nil, []protocol.ToolInfo{{Name: "lookup"}})
	tm.Register("backup", 0.5, nil, []protocol.ToolInfo{{Name: "lookup"}})

	// Naming a connection overrides routing.
	result, err := tm.Execute(context.Background(), "backup", "lookup", nil)
	require.NoError(t, err)
	assert.Equal(t, "served by backup", result.Content[0].Text)
}

func TestToolManager_UnavailableConnection(t *testing.T) {
	rt := router.NewRouter(slog.Default())
	tm := NewToolManager(rt, passFilter(), fakeSource{}, slog.Default())

	tm.Register("alpha", 1.0, nil, []protocol.ToolInfo{{Name: "lookup"}})

	_, err := tm.Execute(context.Background(), "", "lookup", nil)
	assert.ErrorIs(t, err, ErrConnectionUnavailable)
}

func TestManagers_ScopedCallOnUnavailableConnection(t *testing.T) {
	// A connection that never came up has no registered capabilities. A
	// scoped call must still report the connection as unavailable, not
	// pretend the capability does not exist.
	rt := router.NewRouter(slog.Default())
	source := fakeSource{}

	tm := NewToolManager(rt, passFilter(), source, slog.Default())
	_, err := tm.Execute(context.Background(), "down", "lookup", nil)
	assert.ErrorIs(t, err, ErrConnectionUnavailable)
	assert.NotErrorIs(t, err, router.ErrCapabilityNotFound)

	pm := NewPromptManager(rt, passFilter(), source, slog.Default())
	_, err = pm.Get(context.Background(), "down", "greeting", nil)
	assert.ErrorIs(t, err, ErrConnectionUnavailable)

	boundaries := roots.NewRegistry(slog.Default())
	rm := NewResourceManager(rt, passFilter(), boundaries, source, slog.Default())
	_, err = rm.Read(context.Background(), "down", "file:///data/x")
	assert.ErrorIs(t, err, ErrConnectionUnavailable)
}

func TestToolManager_StaleRouterEntry(t *testing.T) {
	rt := router.NewRouter(slog.Default())
	source := fakeSource{"alpha": &fakeSession{name: "alpha"}}
	tm := NewToolManager(rt, passFilter(), source, slog.Default())

	tm.Register("alpha", 1.0, nil, []protocol.ToolInfo{{Name: "lookup"}})

	// Descriptors dropped but the routing entry still points at alpha.
	tm.Unregister("alpha")

	_, err := tm.Execute(context.Background(), "", "lookup", nil)
	assert.ErrorIs(t, err, router.ErrCapabilityNotFound)
}

func TestToolManager_DynamicFilterByContext(t *testing.T) {
	rt := router.NewRouter(slog.Default())
	tm := NewToolManager(rt, filter.New(substringScorer{}, 0.5, slog.Default()), fakeSource{}, slog.Default())

	tm.Register("alpha", 0.5, nil, []protocol.ToolInfo{
		{Name: "forecast"},
		{Name: "translate"},
	})

	relevant := tm.List("what is the forecast for tomorrow")
	require.Len(t, relevant, 1)
	assert.Equal(t, "forecast", relevant[0].Name)

	// Empty context keeps everything.
	assert.Len(t, tm.List(""), 2)
}

func TestToolManager_PrimaryBypassesFilter(t *testing.T) {
	rt := router.NewRouter(slog.Default())
	tm := NewToolManager(rt, filter.New(substringScorer{}, 0.5, slog.Default()), fakeSource{}, slog.Default())

	tm.Register("primary", 1.0, nil, []protocol.ToolInfo{{Name: "translate"}})
	tm.Register("backup", 0.5, nil, []protocol.ToolInfo{{Name: "summarize"}})

	listed := tm.List("unrelated context")
	require.Len(t, listed, 1)
	assert.Equal(t, "translate", listed[0].Name)
}

func TestToolManager_ReRegisterReplaces(t *testing.T) {
	rt := router.NewRouter(slog.Default())
	tm := NewToolManager(rt, passFilter(), fakeSource{}, slog.Default())

	tm.Register("alpha", 1.0, nil, []protocol.ToolInfo{{Name: "old"}})
	tm.Register("alpha", 1.0, nil, []protocol.ToolInfo{{Name: "new"}})

	listed := tm.List("")
	require.Len(t, listed, 1)
	assert.Equal(t, "new", listed[0].Name)
}

func TestPromptManager_GetRoutedAndScoped(t *testing.T) {
	rt := router.NewRouter(slog.Default())
	source := fakeSource{
		"alpha": &fakeSession{name: "alpha"},
		"beta":  &fakeSession{name: "beta"},
	}
	pm := NewPromptManager(rt, passFilter(), source, slog.Default())

	pm.Register("alpha", 1.0, nil, []protocol.PromptInfo{{Name: "greeting"}})
	pm.Register("beta", 1.0, nil, []protocol.PromptInfo{{Name: "greeting"}})

	// Equal weights: first registration wins unscoped.
	result, err := pm.Get(context.Background(), "", "greeting", map[string]string{"who": "there"})
	require.NoError(t, err)
	assert.Equal(t, "from alpha", result.Description)

	result, err = pm.Get(context.Background(), "beta", "greeting", nil)
	require.NoError(t, err)
	assert.Equal(t, "from beta", result.Description)
}

func TestPromptManager_UnknownPrompt(t *testing.T) {
	rt := router.NewRouter(slog.Default())
	pm := NewPromptManager(rt, passFilter(), fakeSource{}, slog.Default())

	_, err := pm.Get(context.Background(), "", "missing", nil)
	assert.ErrorIs(t, err, router.ErrCapabilityNotFound)
}

func TestResourceManager_ReadByURI(t *testing.T) {
	rt := router.NewRouter(slog.Default())
	boundaries := roots.NewRegistry(slog.Default())
	source := fakeSource{"files": &fakeSession{name: "files"}}
	rm := NewResourceManager(rt, passFilter(), boundaries, source, slog.Default())

	rm.Register("files", 1.0, nil, []protocol.ResourceInfo{
		{URI: "file:///data/report.txt", Name: "report"},
	})

	result, err := rm.Read(context.Background(), "", "file:///data/report.txt")
	require.NoError(t, err)
	require.Len(t, result.Contents, 1)
	assert.Equal(t, "from files", result.Contents[0].Text)
}

func TestResourceManager_RootBoundaryDenied(t *testing.T) {
	rt := router.NewRouter(slog.Default())
	boundaries := roots.NewRegistry(slog.Default())
	source := fakeSource{"files": &fakeSession{name: "files"}}
	rm := NewResourceManager(rt, passFilter(), boundaries, source, slog.Default())

	boundaries.Register("files", []roots.Root{{URI: "file:///data"}})
	rm.Register("files", 1.0, nil, []protocol.ResourceInfo{
		{URI: "file:///data/report.txt"},
		{URI: "file:///etc/passwd"},
	})

	_, err := rm.Read(context.Background(), "", "file:///data/report.txt")
	require.NoError(t, err)

	_, err = rm.Read(context.Background(), "", "file:///etc/passwd")
	assert.ErrorIs(t, err, roots.ErrAccessDenied)
}

func TestResourceManager_ZeroRootsPermissive(t *testing.T) {
	rt := router.NewRouter(slog.Default())
	boundaries := roots.NewRegistry(slog.Default())
	source := fakeSource{"files": &fakeSession{name: "files"}}
	rm := NewResourceManager(rt, passFilter(), boundaries, source, slog.Default())

	rm.Register("files", 1.0, nil, []protocol.ResourceInfo{
		{URI: "file:///anywhere/at/all"},
	})

	_, err := rm.Read(context.Background(), "", "file:///anywhere/at/all")
	require.NoError(t, err)
}

func TestResourceManager_ExclusionByName(t *testing.T) {
	rt := router.NewRouter(slog.Default())
	boundaries := roots.NewRegistry(slog.Default())
	rm := NewResourceManager(rt, passFilter(), boundaries, fakeSource{}, slog.Default())

	rm.Register("files", 1.0, map[string]struct{}{"secrets": {}}, []protocol.ResourceInfo{
		{URI: "file:///data/public.txt", Name: "public"},
		{URI: "file:///data/secrets.txt", Name: "secrets"},
	})

	listed := rm.List("")
	require.Len(t, listed, 1)
	assert.Equal(t, "public", listed[0].Name)

	_, err := rm.Read(context.Background(), "", "file:///data/secrets.txt")
	assert.ErrorIs(t, err, router.ErrCapabilityNotFound)
}
