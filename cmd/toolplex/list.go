package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/germanamz/toolplex/pkg/tools/session"
)

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <toolbox>...",
		Short: "List the namespaced tools offered by the given toolboxes",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runList,
	}

	cmd.Flags().Bool("json", false, "Print capabilities as JSON")

	return cmd
}

func runList(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	rt, err := openRuntime(cmd, args, openOptions{})
	if err != nil {
		return err
	}
	defer rt.Close(cmd.Context())

	caps, err := rt.mux.Tools(cmd.Context())
	if err != nil {
		return exitError(exitRuntime, "%v", err)
	}

	if asJSON {
		if caps == nil {
			caps = []session.Capability{}
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(caps); err != nil {
			return exitError(exitRuntime, "encode capabilities: %v", err)
		}
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TOOL\tDESCRIPTION")
	for _, c := range caps {
		fmt.Fprintf(w, "%s\t%s\n", c.Name, firstLine(c.Description))
	}

	return w.Flush()
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
