package toolconfig

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/germanamz/toolplex/pkg/envtmpl"
	"github.com/germanamz/toolplex/pkg/tools/mcpclient"
)

// Resolved is one requested toolbox with every placeholder resolved.
type Resolved struct {
	Params       mcpclient.Params
	Reconnecting bool
	Isolated     bool
	Confirm      []string
	ServerPrompt string
}

// Resolve turns the requested toolbox names into resolved parameters, in
// request order. Repeated names are resolved once. Any unknown name fails
// the whole request before anything is resolved.
//
// Placeholders in stdio env values that cannot be resolved drop that entry;
// placeholders in args or headers that cannot be resolved are fatal.
func (c *Catalog) Resolve(requested []string, log *slog.Logger) ([]Resolved, error) {
	if log == nil {
		log = slog.Default()
	}

	var configs []ToolboxConfig
	seen := make(map[string]struct{}, len(requested))
	for _, name := range requested {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		tb, ok := c.Lookup(name)
		if !ok {
			return nil, configErr(name, ErrUnknownToolbox)
		}
		configs = append(configs, tb)
	}

	out := make([]Resolved, 0, len(configs))
	for _, tb := range configs {
		r, err := resolveOne(tb, log.With("toolbox", tb.Name))
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}

	return out, nil
}

func resolveOne(tb ToolboxConfig, log *slog.Logger) (Resolved, error) {
	if err := tb.Validate(); err != nil {
		return Resolved{}, err
	}

	p := mcpclient.Params{
		Name:           tb.Name,
		Kind:           tb.TransportKind(),
		SessionTimeout: seconds(tb.SessionTimeout),
	}

	switch p.Kind {
	case mcpclient.KindStdio:
		p.Command = tb.Command
		p.Env = resolveEnv(tb.Env, log)

		args := make([]string, len(tb.Args))
		for i, arg := range tb.Args {
			v, err := envtmpl.Resolve(arg)
			if err != nil {
				return Resolved{}, configErr(tb.Name, fmt.Errorf("args[%d]: %w", i, err))
			}
			args[i] = v
		}
		p.Args = args
		log.Debug("resolved stdio toolbox", "command", p.Command, "args", p.Args, "env_keys", slices.Sorted(maps.Keys(p.Env)))
	default:
		p.URL = tb.URL
		p.Timeout = seconds(tb.Timeout)

		headers := make(map[string]string, len(tb.Headers))
		for k, v := range tb.Headers {
			resolved, err := envtmpl.Resolve(v)
			if err != nil {
				return Resolved{}, configErr(tb.Name, fmt.Errorf("header %s: %w", k, err))
			}
			headers[k] = resolved
		}
		p.Headers = headers
		log.Debug("resolved stream toolbox", "kind", p.Kind, "url", p.URL, "timeout", p.Timeout)
	}

	return Resolved{
		Params:       p,
		Reconnecting: tb.Reconnecting,
		Isolated:     tb.Isolated,
		Confirm:      slices.Clone(tb.Confirm),
		ServerPrompt: tb.ServerPrompt,
	}, nil
}

func resolveEnv(env map[string]string, log *slog.Logger) map[string]string {
	out := make(map[string]string, len(env))
	for k, v := range env {
		resolved, err := envtmpl.Resolve(v)
		if err != nil {
			log.Warn("dropping env entry, assuming toolbox has a default", "key", k, "error", err)
			continue
		}
		out[k] = resolved
	}
	return out
}
