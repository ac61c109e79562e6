package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/germanamz/toolplex/pkg/tools/namespace"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the toolbox configuration without connecting",
		Args:  cobra.NoArgs,
		RunE:  runValidate,
	}
}

func runValidate(cmd *cobra.Command, _ []string) error {
	catalog, err := loadCatalog(cmd)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TOOLBOX\tKIND\tPREFIX\tCONFIRM")
	for _, tb := range catalog.Toolboxes {
		confirm := "-"
		if len(tb.Confirm) > 0 {
			confirm = strings.Join(tb.Confirm, ",")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", tb.Name, tb.TransportKind(), namespace.Prefix(tb.Name), confirm)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render(fmt.Sprintf("%d toolboxes OK", len(catalog.Toolboxes))))

	return nil
}
