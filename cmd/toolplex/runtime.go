package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/germanamz/toolplex/pkg/ask"
	"github.com/germanamz/toolplex/pkg/asyncout"
	"github.com/germanamz/toolplex/pkg/observe"
	"github.com/germanamz/toolplex/pkg/toolconfig"
	"github.com/germanamz/toolplex/pkg/tools/confirm"
	"github.com/germanamz/toolplex/pkg/tools/mux"
)

// runtime is everything one subcommand invocation needs: the connected
// multiplexer plus the shared output and approval plumbing.
type runtime struct {
	log       *slog.Logger
	mux       *mux.Mux
	out       *asyncout.Aggregator
	responder *ask.Responder
}

type openOptions struct {
	// stdinBusy is set when stdin carries protocol traffic and cannot be
	// used for line prompts.
	stdinBusy bool
	// httpApprovals is set when an approvals endpoint will be served.
	httpApprovals bool
}

func loadCatalog(cmd *cobra.Command) (*toolconfig.Catalog, error) {
	path, _ := cmd.Flags().GetString("config")

	catalog, err := toolconfig.Load(path)
	if err != nil {
		return nil, exitError(exitConfig, "%v", err)
	}
	if err := catalog.Validate(); err != nil {
		return nil, exitError(exitConfig, "%v", err)
	}

	return catalog, nil
}

// openRuntime resolves the requested toolboxes, builds the multiplexer and
// connects it. The caller must Close the runtime.
func openRuntime(cmd *cobra.Command, toolboxes []string, opts openOptions) (*runtime, error) {
	log, err := newLogger(cmd)
	if err != nil {
		return nil, err
	}

	catalog, err := loadCatalog(cmd)
	if err != nil {
		return nil, err
	}

	resolved, err := catalog.Resolve(toolboxes, log)
	if err != nil {
		var cerr *toolconfig.ConfigError
		if errors.As(err, &cerr) {
			return nil, exitError(exitConfig, "%v", err)
		}
		return nil, exitError(exitRuntime, "%v", err)
	}

	rt := &runtime{
		log: log,
		out: asyncout.New(cmd.OutOrStdout(), asyncout.WithLogger(log)),
	}

	headless, _ := cmd.Flags().GetBool("headless")
	if headless {
		for i := range resolved {
			resolved[i].Confirm = nil
		}
	}

	approver, err := rt.approver(cmd, resolved, opts)
	if err != nil {
		return nil, err
	}

	obs, err := observe.NewGlobal()
	if err != nil {
		return nil, exitError(exitRuntime, "observer: %v", err)
	}

	m, err := mux.New(resolved, mux.Options{
		Logger:   log,
		Approver: approver,
		Observer: obs,
		Progress: rt.out,
		Version:  version,
	})
	if err != nil {
		return nil, exitError(exitConfig, "%v", err)
	}

	if err := m.Connect(cmd.Context()); err != nil {
		return nil, exitError(exitRuntime, "%v", err)
	}
	rt.mux = m

	return rt, nil
}

func (rt *runtime) approver(cmd *cobra.Command, resolved []toolconfig.Resolved, opts openOptions) (confirm.Approver, error) {
	kind, _ := cmd.Flags().GetString("approver")

	gated := ""
	for _, r := range resolved {
		if len(r.Confirm) > 0 {
			gated = r.Params.Name
			break
		}
	}

	switch kind {
	case "line":
		if gated != "" && opts.stdinBusy {
			return nil, exitError(exitConfig,
				"toolbox %q requires confirmation but stdin carries MCP traffic; use --approver http with --http, or --headless", gated)
		}
		return confirm.NewLineApprover(cmd.InOrStdin(), cmd.ErrOrStderr()), nil
	case "form":
		if gated != "" && opts.stdinBusy {
			return nil, exitError(exitConfig,
				"toolbox %q requires confirmation but stdin carries MCP traffic; use --approver http with --http, or --headless", gated)
		}
		return confirm.NewFormApprover(), nil
	case "http":
		if !opts.httpApprovals {
			return nil, exitError(exitConfig, "--approver http is only available with serve --http")
		}
		rt.responder = ask.NewResponder(func(ctx context.Context, q ask.Question) {
			rt.log.InfoContext(ctx, "approval pending", "id", q.ID, "question", q.Text)
		})
		return confirm.NewResponderApprover(rt.responder), nil
	default:
		return nil, exitError(exitConfig, "unknown --approver %q", kind)
	}
}

// Close releases every toolbox, even when the command context is already
// cancelled.
func (rt *runtime) Close(ctx context.Context) {
	if rt == nil || rt.mux == nil {
		return
	}
	if err := rt.mux.Close(context.WithoutCancel(ctx)); err != nil {
		rt.log.WarnContext(ctx, "release toolboxes", "error", err)
	}
}
