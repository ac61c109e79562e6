// Package namespace exposes one toolbox's tools under a unique name prefix and
// serializes every backend operation issued through it.
package namespace

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/germanamz/toolplex/pkg/tools/confirm"
	"github.com/germanamz/toolplex/pkg/tools/session"
)

// Prefix returns the namespace prefix for a toolbox name: uppercased, spaces
// replaced by underscores, followed by one underscore.
func Prefix(toolbox string) string {
	return strings.ReplaceAll(strings.ToUpper(toolbox), " ", "_") + "_"
}

// Adapter wraps one session. It is safe for concurrent use; at most one
// ListTools or CallTool is in flight against the wrapped session.
type Adapter struct {
	inner        session.Session
	gate         *confirm.Gate
	prefix       string
	serverPrompt string

	mu sync.Mutex
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithGate routes calls through g before they reach the backend.
func WithGate(g *confirm.Gate) Option {
	return func(a *Adapter) { a.gate = g }
}

// WithServerPrompt attaches the toolbox's server prompt.
func WithServerPrompt(prompt string) Option {
	return func(a *Adapter) { a.serverPrompt = prompt }
}

// New wraps inner under the prefix derived from its name.
func New(inner session.Session, opts ...Option) *Adapter {
	a := &Adapter{
		inner:  inner,
		prefix: Prefix(inner.Name()),
	}
	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Name returns the wrapped session's toolbox name.
func (a *Adapter) Name() string { return a.inner.Name() }

// Prefix returns the adapter's namespace prefix.
func (a *Adapter) Prefix() string { return a.prefix }

// ServerPrompt returns the opaque prompt configured for the toolbox.
func (a *Adapter) ServerPrompt() string { return a.serverPrompt }

// Owns reports whether a namespaced tool name carries this adapter's prefix.
func (a *Adapter) Owns(name string) bool {
	return strings.HasPrefix(name, a.prefix)
}

// Connect passes through to the wrapped session once no other operation is
// in flight.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.inner.Connect(ctx)
}

// Disconnect waits for any in-flight operation, then passes through to the
// wrapped session.
func (a *Adapter) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.inner.Disconnect(ctx)
}

// ListTools returns the wrapped session's tools with prefixed names.
func (a *Adapter) ListTools(ctx context.Context) ([]session.Capability, error) {
	caps, err := a.list(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]session.Capability, len(caps))
	for i, c := range caps {
		c.Name = a.prefix + c.Name
		out[i] = c
	}

	return out, nil
}

// CallTool strips the prefix once from the left and forwards the call. Gated
// tools are approved before the lock is taken so a pending prompt does not
// hold the backend.
func (a *Adapter) CallTool(ctx context.Context, name string, args json.RawMessage) (*session.Result, error) {
	tool := a.Strip(name)

	denied, err := a.gate.Check(ctx, tool, args)
	if err != nil {
		return nil, err
	}
	if denied != nil {
		return denied, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	return a.inner.CallTool(ctx, tool, args)
}

func (a *Adapter) list(ctx context.Context) ([]session.Capability, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.inner.ListTools(ctx)
}

// Strip removes the prefix once from the left. Names without the prefix are
// returned unchanged.
func (a *Adapter) Strip(name string) string {
	return strings.TrimPrefix(name, a.prefix)
}
