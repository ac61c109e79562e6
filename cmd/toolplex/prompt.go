package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/germanamz/toolplex/pkg/prompt"
)

func newPromptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompt <toolbox>...",
		Short: "Print the system prompt assembled from the given toolboxes",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runPrompt,
	}

	f := cmd.Flags()
	f.String("system", "", "Opening system text")
	f.String("system-file", "", "Read the opening system text from a file")
	f.String("task", "", "Primary task appended at the end")
	f.StringArray("guideline", nil, "Important guideline (repeatable)")
	f.StringArray("resource", nil, "Available resource line (repeatable)")
	f.Bool("render", false, "Render the prompt as markdown for the terminal")

	cmd.MarkFlagsMutuallyExclusive("system", "system-file")

	return cmd
}

func runPrompt(cmd *cobra.Command, args []string) error {
	system, _ := cmd.Flags().GetString("system")
	systemFile, _ := cmd.Flags().GetString("system-file")
	task, _ := cmd.Flags().GetString("task")
	guidelines, _ := cmd.Flags().GetStringArray("guideline")
	resources, _ := cmd.Flags().GetStringArray("resource")
	render, _ := cmd.Flags().GetBool("render")

	if systemFile != "" {
		data, err := os.ReadFile(systemFile) //nolint:gosec // path is operator input
		if err != nil {
			return exitError(exitConfig, "read --system-file: %v", err)
		}
		system = string(data)
	}

	rt, err := openRuntime(cmd, args, openOptions{})
	if err != nil {
		return err
	}
	defer rt.Close(cmd.Context())

	caps, err := rt.mux.Tools(cmd.Context())
	if err != nil {
		return exitError(exitRuntime, "%v", err)
	}

	text := prompt.Build(prompt.Sections{
		System:        system,
		Task:          task,
		Tools:         prompt.ToolLines(caps),
		Resources:     resources,
		Guidelines:    guidelines,
		ServerPrompts: rt.mux.ServerPrompts(),
	})

	if render {
		text = renderMarkdown(text, defaultWrapWidth)
	}
	fmt.Fprintln(cmd.OutOrStdout(), text)

	return nil
}
