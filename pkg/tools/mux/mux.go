// Package mux owns the namespace adapters of one run, aggregates their tools
// into one registry, and routes each call to the adapter whose prefix it
// carries.
package mux

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/germanamz/toolplex/pkg/observe"
	"github.com/germanamz/toolplex/pkg/toolconfig"
	"github.com/germanamz/toolplex/pkg/tools/confirm"
	"github.com/germanamz/toolplex/pkg/tools/mcpclient"
	"github.com/germanamz/toolplex/pkg/tools/namespace"
	"github.com/germanamz/toolplex/pkg/tools/reconnect"
	"github.com/germanamz/toolplex/pkg/tools/session"
	"github.com/germanamz/toolplex/pkg/tools/toolbox"
	"github.com/germanamz/toolplex/pkg/tools/worker"
)

// ErrToolNotFound is returned by Call when no adapter owns the tool name.
var ErrToolNotFound = errors.New("mux: tool not found")

// SessionFactory builds the base session for one resolved toolbox.
type SessionFactory func(r toolconfig.Resolved) (session.Session, error)

// Options configures a Mux.
type Options struct {
	Logger *slog.Logger
	// Approver answers confirmation prompts for gated tools. Without one,
	// gated tools fail with confirm.ErrNoApprover.
	Approver confirm.Approver
	Observer *observe.Observer
	// Progress receives progress messages for calls made under an async
	// task id.
	Progress mcpclient.ProgressSink
	// QueueSize bounds the request queue of isolated toolboxes.
	QueueSize int
	Version   string
	// NewSession overrides how base sessions are built. Defaults to
	// mcpclient.New.
	NewSession SessionFactory
}

// Mux is the toolbox multiplexer for one run.
type Mux struct {
	adapters []*namespace.Adapter
	log      *slog.Logger
	obs      *observe.Observer
}

// Open resolves the requested toolboxes from c and builds a Mux. Nothing is
// constructed if any requested toolbox is unknown or fails to resolve.
func Open(c *toolconfig.Catalog, requested []string, opts Options) (*Mux, error) {
	resolved, err := c.Resolve(requested, opts.Logger)
	if err != nil {
		return nil, err
	}
	return New(resolved, opts)
}

// New builds one adapter per resolved toolbox. Each base session is wrapped
// by reconnect when Reconnecting is set and then by worker when Isolated is
// set. A construction failure discards everything built so far.
func New(resolved []toolconfig.Resolved, opts Options) (*Mux, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	factory := opts.NewSession
	if factory == nil {
		factory = func(r toolconfig.Resolved) (session.Session, error) {
			return mcpclient.New(r.Params, mcpclient.Options{
				Logger:   log,
				Progress: opts.Progress,
				Version:  opts.Version,
			})
		}
	}

	adapters := make([]*namespace.Adapter, 0, len(resolved))
	for _, r := range resolved {
		s, err := factory(r)
		if err != nil {
			return nil, fmt.Errorf("mux: build %s: %w", r.Params.Name, err)
		}
		if r.Reconnecting {
			s = reconnect.New(s, log)
		}
		if r.Isolated {
			s = worker.New(s, opts.QueueSize, log)
		}

		name := r.Params.Name
		gate := confirm.New(r.Confirm, opts.Approver)
		gate.OnDecision(func(ctx context.Context, tool string, approved bool) {
			log.InfoContext(ctx, "confirmation decision", "toolbox", name, "tool", tool, "approved", approved)
			opts.Observer.Decision(ctx, name, tool, approved)
		})

		adapters = append(adapters, namespace.New(s,
			namespace.WithGate(gate),
			namespace.WithServerPrompt(r.ServerPrompt),
		))
	}

	return FromAdapters(adapters, opts), nil
}

// FromAdapters builds a Mux over prebuilt adapters.
func FromAdapters(adapters []*namespace.Adapter, opts Options) *Mux {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Mux{
		adapters: adapters,
		log:      log,
		obs:      opts.Observer,
	}
}

// Adapters returns the adapters in configuration order.
func (m *Mux) Adapters() []*namespace.Adapter {
	return append([]*namespace.Adapter(nil), m.adapters...)
}

// Connect connects every adapter concurrently. If any connect fails, every
// adapter is released again, including those whose connect failed or was
// cut short, and the first error is returned. Disconnect is a no-op on a
// session that never connected.
func (m *Mux) Connect(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, a := range m.adapters {
		g.Go(func() error {
			if err := a.Connect(gctx); err != nil {
				return fmt.Errorf("mux: connect %s: %w", a.Name(), err)
			}
			m.log.DebugContext(gctx, "toolbox connected", "toolbox", a.Name())
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		return nil
	}

	if rerr := release(context.WithoutCancel(ctx), m.adapters, m.log); rerr != nil {
		m.log.WarnContext(ctx, "rollback after failed connect", "error", rerr)
	}

	return err
}

// Tools lists every adapter's tools concurrently and concatenates them in
// configuration order.
func (m *Mux) Tools(ctx context.Context) ([]session.Capability, error) {
	lists := make([][]session.Capability, len(m.adapters))

	g, gctx := errgroup.WithContext(ctx)
	for i, a := range m.adapters {
		g.Go(func() error {
			caps, err := a.ListTools(gctx)
			if err != nil {
				return fmt.Errorf("mux: list tools %s: %w", a.Name(), err)
			}
			lists[i] = caps
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []session.Capability
	for _, caps := range lists {
		out = append(out, caps...)
	}

	return out, nil
}

// Route returns the adapter owning a namespaced tool name. When several
// prefixes match, the longest wins.
func (m *Mux) Route(name string) (*namespace.Adapter, bool) {
	var best *namespace.Adapter
	for _, a := range m.adapters {
		if a.Owns(name) && (best == nil || len(a.Prefix()) > len(best.Prefix())) {
			best = a
		}
	}
	return best, best != nil
}

// Call routes one invocation. A result the backend or the confirmation gate
// flags as an error is returned as a result.
func (m *Mux) Call(ctx context.Context, name string, args json.RawMessage) (*session.Result, error) {
	a, ok := m.Route(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	log := m.log.With("call_id", uuid.NewString(), "toolbox", a.Name(), "tool", name)
	log.DebugContext(ctx, "tool call started")

	ctx, inv := m.obs.Start(ctx, a.Name(), name)
	start := time.Now()
	result, err := a.CallTool(ctx, name, args)
	inv.End(ctx, err == nil && result != nil && !result.IsError, err)

	if err != nil {
		log.WarnContext(ctx, "tool call failed", "duration", time.Since(start), "error", err)
		return nil, err
	}
	log.DebugContext(ctx, "tool call finished", "duration", time.Since(start), "is_error", result.IsError)

	return result, nil
}

// ToolBox snapshots the current tools into a flat registry whose handlers
// call back into the Mux.
func (m *Mux) ToolBox(ctx context.Context) (*toolbox.ToolBox, error) {
	caps, err := m.Tools(ctx)
	if err != nil {
		return nil, err
	}

	tb := toolbox.New()
	for _, c := range caps {
		name := c.Name
		tb.Register(toolbox.Tool{
			Name:        name,
			Description: c.Description,
			InputSchema: c.InputSchema,
			Handler: func(ctx context.Context, input json.RawMessage) (*session.Result, error) {
				return m.Call(ctx, name, input)
			},
		})
	}

	return tb, nil
}

// ServerPrompts returns the non-empty server prompts in configuration order.
func (m *Mux) ServerPrompts() []string {
	var prompts []string
	for _, a := range m.adapters {
		if p := strings.TrimSpace(a.ServerPrompt()); p != "" {
			prompts = append(prompts, p)
		}
	}
	return prompts
}

// Close disconnects every adapter. Each release is attempted independently;
// failures are logged and joined.
func (m *Mux) Close(ctx context.Context) error {
	return release(ctx, m.adapters, m.log)
}

func release(ctx context.Context, adapters []*namespace.Adapter, log *slog.Logger) error {
	errs := make([]error, len(adapters))

	var wg sync.WaitGroup
	for i, a := range adapters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.Disconnect(ctx); err != nil {
				log.WarnContext(ctx, "toolbox release failed", "toolbox", a.Name(), "error", err)
				errs[i] = fmt.Errorf("mux: release %s: %w", a.Name(), err)
			}
		}()
	}
	wg.Wait()

	return errors.Join(errs...)
}
