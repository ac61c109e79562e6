package main

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/germanamz/toolplex/pkg/tools/mcpserver"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve <toolbox>...",
		Short: "Expose the namespaced tools of the given toolboxes as one MCP server",
		Long: "By default the server speaks MCP over stdio. With --http it serves streamable HTTP on\n" +
			"the given address; --approver http then also serves pending confirmations under /approvals.",
		Args: cobra.MinimumNArgs(1),
		RunE: runServe,
	}

	cmd.Flags().String("http", "", "Serve streamable HTTP on this address instead of stdio (e.g. 127.0.0.1:8080)")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("http")

	rt, err := openRuntime(cmd, args, openOptions{
		stdinBusy:     addr == "",
		httpApprovals: addr != "",
	})
	if err != nil {
		return err
	}
	defer rt.Close(cmd.Context())

	tb, err := rt.mux.ToolBox(cmd.Context())
	if err != nil {
		return exitError(exitRuntime, "%v", err)
	}

	srv := mcpserver.New("toolplex", version, rt.log)
	srv.Register(tb.Tools()...)

	if addr == "" {
		err := srv.Serve(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
			return exitError(exitRuntime, "serve: %v", err)
		}
		return nil
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return exitError(exitRuntime, "listen %s: %v", addr, err)
	}

	var h http.Handler = srv.Handler()
	if rt.responder != nil {
		routes := http.NewServeMux()
		mountApprovals(routes, rt.responder, rt.log)
		routes.Handle("/", h)
		h = routes
	}

	if err := mcpserver.RunHTTP(cmd.Context(), ln, h, rt.log); err != nil {
		return exitError(exitRuntime, "serve: %v", err)
	}

	return nil
}
