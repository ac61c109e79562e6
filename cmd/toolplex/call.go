package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/germanamz/toolplex/pkg/asyncout"
	"github.com/germanamz/toolplex/pkg/tools/mux"
)

func newCallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call <toolbox>...",
		Short: "Invoke one namespaced tool",
		Example: `  toolplex call github --tool GITHUB_search_issues --args '{"query":"is:open"}'
  toolplex call github docs --tool DOCS_fetch --args '{"url":"https://go.dev"}' --raw`,
		Args: cobra.MinimumNArgs(1),
		RunE: runCall,
	}

	cmd.Flags().String("tool", "", "Namespaced tool name (required)")
	cmd.Flags().String("args", "{}", "Tool arguments as a JSON object")
	cmd.Flags().Bool("raw", false, "Print result text without markdown rendering")
	cmd.Flags().String("task", "", "Gather output under this async task id and print it when the call completes")
	_ = cmd.MarkFlagRequired("tool")

	return cmd
}

func runCall(cmd *cobra.Command, args []string) error {
	tool, _ := cmd.Flags().GetString("tool")
	rawArgs, _ := cmd.Flags().GetString("args")
	raw, _ := cmd.Flags().GetBool("raw")
	taskID, _ := cmd.Flags().GetString("task")

	callArgs, err := parseArgs(rawArgs)
	if err != nil {
		return exitError(exitConfig, "--args: %v", err)
	}

	rt, err := openRuntime(cmd, args, openOptions{})
	if err != nil {
		return err
	}
	defer rt.Close(cmd.Context())

	ctx := cmd.Context()
	if taskID != "" {
		ctx = asyncout.WithTask(ctx, taskID)
	}

	res, err := rt.mux.Call(ctx, tool, callArgs)
	if err != nil {
		if errors.Is(err, mux.ErrToolNotFound) {
			return exitError(exitConfig, "%v", err)
		}
		return exitError(exitRuntime, "%v", err)
	}

	text := resultText(res)
	if taskID != "" {
		if err := rt.out.Write(taskID, text+"\n"); err != nil {
			return exitError(exitRuntime, "%v", err)
		}
		if err := rt.out.Emit(taskID); err != nil {
			return exitError(exitRuntime, "%v", err)
		}
	} else {
		out := text
		if !raw && !res.IsError {
			out = renderMarkdown(text, defaultWrapWidth)
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
	}

	if res.IsError {
		fmt.Fprintln(cmd.ErrOrStderr(), errorStyle.Render("✗ "+tool+" reported an error"))
		return exitError(exitToolError, "tool %s reported an error", tool)
	}

	return nil
}

// parseArgs checks that s is a JSON object.
func parseArgs(s string) (json.RawMessage, error) {
	if s == "" {
		return json.RawMessage("{}"), nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, fmt.Errorf("must be a JSON object: %w", err)
	}
	if obj == nil {
		return nil, errors.New("must be a JSON object, got null")
	}

	return json.RawMessage(s), nil
}
