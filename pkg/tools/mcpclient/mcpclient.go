package mcpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"sync"
	"time"

	"github.com/germanamz/toolplex/pkg/asyncout"
	"github.com/germanamz/toolplex/pkg/tools/session"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Kind selects the transport used to reach a toolbox backend.
type Kind string

const (
	// KindStdio runs the backend as a subprocess speaking over its stdio pipes.
	KindStdio Kind = "stdio"
	// KindSSE holds one long-lived server-sent-events session open.
	KindSSE Kind = "sse"
	// KindStreamable issues one HTTP request per message with streamed replies.
	KindStreamable Kind = "streamable"
)

// Valid reports whether k names a supported transport.
func (k Kind) Valid() bool {
	switch k {
	case KindStdio, KindSSE, KindStreamable:
		return true
	}
	return false
}

// DefaultTimeout is applied to HTTP connection setup when Params.Timeout is
// zero.
const DefaultTimeout = 5 * time.Second

// ErrNotConnected is returned by ListTools and CallTool before Connect.
var ErrNotConnected = errors.New("mcpclient: not connected")

// Params are the fully resolved transport parameters of one toolbox.
type Params struct {
	Name string
	Kind Kind

	// stdio
	Command string
	Args    []string
	Env     map[string]string

	// sse and streamable
	URL     string
	Headers map[string]string
	Timeout time.Duration

	// SessionTimeout bounds each list or call. Zero leaves the transport
	// default in place.
	SessionTimeout time.Duration
}

// ProgressSink receives progress messages reported by a backend for calls
// issued under an async task id.
type ProgressSink interface {
	Write(taskID, text string) error
}

// Options configures a Client.
type Options struct {
	Logger   *slog.Logger
	Progress ProgressSink
	// Version is advertised to backends during initialization.
	Version string
}

// Dialer creates a fresh transport for every Connect.
type Dialer func(ctx context.Context) (mcp.Transport, error)

// Client is a session.Session backed by the official MCP Go SDK.
type Client struct {
	params Params
	dial   Dialer
	log    *slog.Logger
	client *mcp.Client

	mu      sync.Mutex
	session *mcp.ClientSession
}

var _ session.Session = (*Client)(nil)

// New builds an unconnected client for p. The transport is selected by
// p.Kind; an unsupported kind yields an error.
func New(p Params, opts Options) (*Client, error) {
	dial, err := dialerFor(p)
	if err != nil {
		return nil, err
	}

	return NewWithDialer(p, dial, opts), nil
}

// NewWithDialer builds an unconnected client that obtains its transport from
// dial. It is used by New and by tests with in-memory transports.
func NewWithDialer(p Params, dial Dialer, opts Options) *Client {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	version := opts.Version
	if version == "" {
		version = "0.1.0"
	}

	c := &Client{
		params: p,
		dial:   dial,
		log:    log.With("toolbox", p.Name),
	}

	c.client = mcp.NewClient(&mcp.Implementation{
		Name:    "toolplex",
		Version: version,
	}, &mcp.ClientOptions{
		ProgressNotificationHandler: progressHandler(opts.Progress, c.log),
	})

	return c
}

// Name implements session.Session.
func (c *Client) Name() string { return c.params.Name }

// Params returns the transport parameters the client was built from.
func (c *Client) Params() Params { return c.params }

// Connect dials the transport and runs MCP initialization. Connecting an
// already connected client is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return nil
	}

	transport, err := c.dial(ctx)
	if err != nil {
		return c.fail("connect", err)
	}

	cs, err := c.client.Connect(ctx, transport, nil)
	if err != nil {
		return c.fail("connect", err)
	}

	c.session = cs
	c.log.DebugContext(ctx, "mcp session connected", "kind", c.params.Kind)

	return nil
}

// Disconnect closes the session. For stdio backends the SDK closes stdin,
// waits, and escalates through SIGTERM/SIGKILL.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	cs := c.session
	c.session = nil
	c.mu.Unlock()

	if cs == nil {
		return nil
	}

	if err := cs.Close(); err != nil {
		return c.fail("disconnect", err)
	}

	c.log.DebugContext(ctx, "mcp session closed")

	return nil
}

// ListTools fetches every page of the backend's tool list.
func (c *Client) ListTools(ctx context.Context) ([]session.Capability, error) {
	cs, err := c.current()
	if err != nil {
		return nil, err
	}

	ctx, cancel := c.withSessionTimeout(ctx)
	defer cancel()

	var caps []session.Capability
	for tool, err := range cs.Tools(ctx, nil) {
		if err != nil {
			return nil, c.fail("list tools", err)
		}

		capability, err := fromSDKTool(tool)
		if err != nil {
			return nil, c.fail("list tools", fmt.Errorf("convert tool %q: %w", tool.Name, err))
		}
		caps = append(caps, capability)
	}

	return caps, nil
}

// CallTool calls a named tool with a JSON object of arguments. A result the
// backend flags as an error is returned as a result, not as an error.
func (c *Client) CallTool(ctx context.Context, name string, args json.RawMessage) (*session.Result, error) {
	cs, err := c.current()
	if err != nil {
		return nil, err
	}

	ctx, cancel := c.withSessionTimeout(ctx)
	defer cancel()

	params := &mcp.CallToolParams{Name: name}
	if len(args) > 0 {
		params.Arguments = args
	}
	if taskID, ok := asyncout.TaskFromContext(ctx); ok {
		params.SetProgressToken(taskID)
	}

	result, err := cs.CallTool(ctx, params)
	if err != nil {
		return nil, c.fail("call tool", err)
	}

	return fromSDKResult(result), nil
}

func (c *Client) current() (*mcp.ClientSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return nil, c.fail("session", ErrNotConnected)
	}
	return c.session, nil
}

func (c *Client) withSessionTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.params.SessionTimeout > 0 {
		return context.WithTimeout(ctx, c.params.SessionTimeout)
	}
	return ctx, func() {}
}

func (c *Client) fail(op string, err error) error {
	return &session.TransportError{Toolbox: c.params.Name, Op: op, Err: err}
}

func dialerFor(p Params) (Dialer, error) {
	switch p.Kind {
	case KindStdio:
		if p.Command == "" {
			return nil, fmt.Errorf("mcpclient: %s: command is required", p.Name)
		}
		return func(_ context.Context) (mcp.Transport, error) {
			cmd := exec.Command(p.Command, slices.Clone(p.Args)...) //nolint:gosec // command is operator configuration
			if len(p.Env) > 0 {
				cmd.Env = append(os.Environ(), flattenEnv(p.Env)...)
			}
			return &mcp.CommandTransport{Command: cmd}, nil
		}, nil
	case KindSSE:
		if p.URL == "" {
			return nil, fmt.Errorf("mcpclient: %s: url is required", p.Name)
		}
		return func(_ context.Context) (mcp.Transport, error) {
			return &mcp.SSEClientTransport{
				Endpoint:   p.URL,
				HTTPClient: newHTTPClient(p.Headers, p.Timeout),
			}, nil
		}, nil
	case KindStreamable:
		if p.URL == "" {
			return nil, fmt.Errorf("mcpclient: %s: url is required", p.Name)
		}
		return func(_ context.Context) (mcp.Transport, error) {
			return &mcp.StreamableClientTransport{
				Endpoint:             p.URL,
				HTTPClient:           newHTTPClient(p.Headers, p.Timeout),
				MaxRetries:           -1,
				DisableStandaloneSSE: true,
			}, nil
		}, nil
	default:
		return nil, fmt.Errorf("mcpclient: %s: unsupported transport %q", p.Name, p.Kind)
	}
}

func progressHandler(sink ProgressSink, log *slog.Logger) func(context.Context, *mcp.ProgressNotificationClientRequest) {
	if sink == nil {
		return nil
	}

	return func(ctx context.Context, req *mcp.ProgressNotificationClientRequest) {
		taskID, ok := req.Params.ProgressToken.(string)
		if !ok || req.Params.Message == "" {
			return
		}
		if err := sink.Write(taskID, req.Params.Message+"\n"); err != nil {
			log.WarnContext(ctx, "dropping progress message", "task", taskID, "error", err)
		}
	}
}

func flattenEnv(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	out := make([]string, 0, len(values))
	for _, key := range keys {
		out = append(out, key+"="+values[key])
	}
	return out
}
