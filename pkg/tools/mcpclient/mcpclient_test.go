package mcpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/germanamz/toolplex/pkg/asyncout"
	"github.com/germanamz/toolplex/pkg/tools/session"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var objectSchema = json.RawMessage(`{"type":"object"}`)

// newTestServer builds an MCP server exposing an echo tool, a failing tool,
// and a tool that reports progress before answering.
func newTestServer() *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "test-server", Version: "1.0.0"}, nil)

	server.AddTool(&mcp.Tool{
		Name:        "echo",
		Description: "Echo input",
		InputSchema: objectSchema,
	}, func(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(req.Params.Arguments)}},
		}, nil
	})

	server.AddTool(&mcp.Tool{
		Name:        "fail",
		Description: "Always fails",
		InputSchema: objectSchema,
	}, func(_ context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: "something went wrong"}},
			IsError: true,
		}, nil
	})

	server.AddTool(&mcp.Tool{
		Name:        "slow",
		Description: "Reports progress",
		InputSchema: objectSchema,
	}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if token := req.Params.GetProgressToken(); token != nil {
			_ = req.Session.NotifyProgress(ctx, &mcp.ProgressNotificationParams{
				ProgressToken: token,
				Message:       "halfway",
				Progress:      1,
				Total:         2,
			})
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: "done"}},
		}, nil
	})

	return server
}

// inMemoryDialer connects every dial to a fresh session on server.
func inMemoryDialer(t *testing.T, server *mcp.Server) Dialer {
	t.Helper()

	return func(ctx context.Context) (mcp.Transport, error) {
		serverTransport, clientTransport := mcp.NewInMemoryTransports()
		if _, err := server.Connect(ctx, serverTransport, nil); err != nil {
			return nil, err
		}
		return clientTransport, nil
	}
}

func connectedClient(t *testing.T, opts Options) *Client {
	t.Helper()

	c := NewWithDialer(Params{Name: "test", Kind: KindStdio}, inMemoryDialer(t, newTestServer()), opts)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { _ = c.Disconnect(context.Background()) })

	return c
}

type recordingSink struct {
	mu     sync.Mutex
	writes map[string]string
}

func (s *recordingSink) Write(taskID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writes == nil {
		s.writes = make(map[string]string)
	}
	s.writes[taskID] += text
	return nil
}

func (s *recordingSink) get(taskID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes[taskID]
}

func TestListTools(t *testing.T) {
	c := connectedClient(t, Options{})

	tools, err := c.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 3)

	byName := make(map[string]session.Capability, len(tools))
	for _, tool := range tools {
		byName[tool.Name] = tool
	}

	echo, ok := byName["echo"]
	require.True(t, ok)
	assert.Equal(t, "Echo input", echo.Description)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(echo.InputSchema, &schema))
	assert.Equal(t, "object", schema["type"])
}

func TestCallToolSuccess(t *testing.T) {
	c := connectedClient(t, Options{})

	result, err := c.CallTool(context.Background(), "echo", json.RawMessage(`{"msg":"hello"}`))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.JSONEq(t, `{"msg":"hello"}`, result.Text())
}

func TestCallToolErrorResultIsNotAnError(t *testing.T) {
	c := connectedClient(t, Options{})

	result, err := c.CallTool(context.Background(), "fail", nil)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, "something went wrong", result.Text())
}

func TestCallUnknownToolIsTransportError(t *testing.T) {
	c := connectedClient(t, Options{})

	_, err := c.CallTool(context.Background(), "missing", nil)
	if err != nil {
		var terr *session.TransportError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, "test", terr.Toolbox)
	}
}

func TestOperationsRequireConnection(t *testing.T) {
	c := NewWithDialer(Params{Name: "test"}, inMemoryDialer(t, newTestServer()), Options{})

	_, err := c.ListTools(context.Background())
	require.ErrorIs(t, err, ErrNotConnected)

	_, err = c.CallTool(context.Background(), "echo", nil)
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestConnectIsIdempotentAndDisconnectReleases(t *testing.T) {
	dials := 0
	server := newTestServer()
	base := inMemoryDialer(t, server)
	c := NewWithDialer(Params{Name: "test"}, func(ctx context.Context) (mcp.Transport, error) {
		dials++
		return base(ctx)
	}, Options{})

	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))
	require.NoError(t, c.Connect(ctx))
	assert.Equal(t, 1, dials)

	require.NoError(t, c.Disconnect(ctx))
	require.NoError(t, c.Disconnect(ctx))

	_, err := c.ListTools(ctx)
	require.ErrorIs(t, err, ErrNotConnected)

	require.NoError(t, c.Connect(ctx))
	assert.Equal(t, 2, dials)
	require.NoError(t, c.Disconnect(ctx))
}

func TestProgressRoutedToTask(t *testing.T) {
	sink := &recordingSink{}
	c := connectedClient(t, Options{Progress: sink})

	ctx := asyncout.WithTask(context.Background(), "task-1")
	result, err := c.CallTool(ctx, "slow", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "done", result.Text())

	assert.Eventually(t, func() bool {
		return sink.get("task-1") == "halfway\n"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStreamableTransportSendsHeaders(t *testing.T) {
	server := newTestServer()

	var mu sync.Mutex
	var seen []string
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Get("Authorization"))
		mu.Unlock()
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)

	c, err := New(Params{
		Name:    "remote",
		Kind:    KindStreamable,
		URL:     ts.URL,
		Headers: map[string]string{"Authorization": "Bearer abc"},
	}, Options{})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))
	t.Cleanup(func() { _ = c.Disconnect(ctx) })

	result, err := c.CallTool(ctx, "echo", json.RawMessage(`{"n":1}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, result.Text())

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	for _, h := range seen {
		assert.Equal(t, "Bearer abc", h)
	}
}

func TestSSETransport(t *testing.T) {
	server := newTestServer()
	ts := httptest.NewServer(mcp.NewSSEHandler(func(*http.Request) *mcp.Server { return server }, nil))
	t.Cleanup(ts.Close)

	c, err := New(Params{Name: "sse", Kind: KindSSE, URL: ts.URL, Timeout: time.Second}, Options{})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))
	t.Cleanup(func() { _ = c.Disconnect(ctx) })

	tools, err := c.ListTools(ctx)
	require.NoError(t, err)
	assert.Len(t, tools, 3)
}

func TestConnectUnreachableEndpoint(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, err := New(Params{Name: "gone", Kind: KindSSE, URL: "http://127.0.0.1:1/invalid"}, Options{})
	require.NoError(t, err)

	err = c.Connect(ctx)
	var terr *session.TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "connect", terr.Op)
}

func TestNewRejectsIncompleteParams(t *testing.T) {
	tests := []struct {
		name   string
		params Params
	}{
		{name: "stdio without command", params: Params{Name: "a", Kind: KindStdio}},
		{name: "sse without url", params: Params{Name: "b", Kind: KindSSE}},
		{name: "streamable without url", params: Params{Name: "c", Kind: KindStreamable}},
		{name: "unknown kind", params: Params{Name: "d", Kind: "websocket", URL: "ws://x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.params, Options{})
			assert.Error(t, err)
		})
	}
}

func TestStdioDialerBuildsCommand(t *testing.T) {
	dial, err := dialerFor(Params{
		Name:    "local",
		Kind:    KindStdio,
		Command: "my-server",
		Args:    []string{"--flag"},
		Env:     map[string]string{"B": "2", "A": "1"},
	})
	require.NoError(t, err)

	transport, err := dial(context.Background())
	require.NoError(t, err)

	ct, ok := transport.(*mcp.CommandTransport)
	require.True(t, ok)
	assert.Equal(t, []string{"my-server", "--flag"}, ct.Command.Args)
	assert.Subset(t, ct.Command.Env, []string{"A=1", "B=2"})
}

func TestKindValid(t *testing.T) {
	assert.True(t, KindStdio.Valid())
	assert.True(t, KindSSE.Valid())
	assert.True(t, KindStreamable.Valid())
	assert.False(t, Kind("grpc").Valid())
}

func TestFlattenEnvSorted(t *testing.T) {
	assert.Equal(t, []string{"A=1", "B=2"}, flattenEnv(map[string]string{"B": "2", "A": "1"}))
}
