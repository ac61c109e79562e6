package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/germanamz/toolplex/pkg/asyncout"
)

// DefaultParallel bounds concurrent calls in a batch.
const DefaultParallel = 4

// BatchFile is a list of calls run against a set of toolboxes. JSON is valid
// YAML, so both formats parse.
type BatchFile struct {
	Toolboxes []string    `yaml:"toolboxes"`
	Calls     []BatchCall `yaml:"calls"`
}

// BatchCall is one tool invocation. Task defaults to a random id.
type BatchCall struct {
	Task string         `yaml:"task"`
	Tool string         `yaml:"tool"`
	Args map[string]any `yaml:"args"`
}

func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch <file>",
		Short: "Run a file of tool calls concurrently and print each result in order",
		Long: "Each call runs as an async task: its progress and result are gathered silently while\n" +
			"the batch runs, then printed under the task id in file order.",
		Args: cobra.ExactArgs(1),
		RunE: runBatch,
	}

	cmd.Flags().Int("parallel", DefaultParallel, "Maximum concurrent calls")

	return cmd
}

func runBatch(cmd *cobra.Command, args []string) error {
	parallel, _ := cmd.Flags().GetInt("parallel")
	if parallel < 1 {
		return exitError(exitConfig, "--parallel must be at least 1")
	}

	batch, err := loadBatch(args[0])
	if err != nil {
		return exitError(exitConfig, "%v", err)
	}

	rt, err := openRuntime(cmd, batch.Toolboxes, openOptions{})
	if err != nil {
		return err
	}
	defer rt.Close(cmd.Context())

	failed := make([]bool, len(batch.Calls))

	g, gctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(parallel)
	for i, call := range batch.Calls {
		g.Go(func() error {
			if call.Args == nil {
				call.Args = map[string]any{}
			}
			args, err := json.Marshal(call.Args)
			if err != nil {
				return fmt.Errorf("call %d: encode args: %w", i, err)
			}

			ctx := asyncout.WithTask(gctx, call.Task)
			res, err := rt.mux.Call(ctx, call.Tool, args)

			var text string
			switch {
			case err != nil:
				failed[i] = true
				text = "error: " + err.Error()
			case res.IsError:
				failed[i] = true
				text = resultText(res)
			default:
				text = resultText(res)
			}

			return rt.out.Write(call.Task, text+"\n")
		})
	}
	if err := g.Wait(); err != nil {
		return exitError(exitRuntime, "%v", err)
	}

	var errs []error
	for i, call := range batch.Calls {
		if err := rt.out.Emit(call.Task); err != nil {
			return exitError(exitRuntime, "%v", err)
		}
		if failed[i] {
			errs = append(errs, fmt.Errorf("task %s (%s) failed", call.Task, call.Tool))
		}
	}

	if err := errors.Join(errs...); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), errorStyle.Render(strconv.Itoa(len(errs))+" of "+strconv.Itoa(len(batch.Calls))+" calls failed"))
		return exitError(exitToolError, "%v", err)
	}

	return nil
}

// loadBatch reads and validates a batch file, assigning task ids to calls
// that have none.
func loadBatch(path string) (*BatchFile, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator input
	if err != nil {
		return nil, fmt.Errorf("batch: %w", err)
	}

	var batch BatchFile
	if err := yaml.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("batch: parse %s: %w", path, err)
	}

	if len(batch.Toolboxes) == 0 {
		return nil, errors.New("batch: toolboxes is required")
	}
	if len(batch.Calls) == 0 {
		return nil, errors.New("batch: no calls")
	}

	seen := make(map[string]struct{}, len(batch.Calls))
	for i := range batch.Calls {
		c := &batch.Calls[i]
		if c.Tool == "" {
			return nil, fmt.Errorf("batch: call %d: tool is required", i)
		}
		if c.Task == "" {
			c.Task = uuid.NewString()
		}
		if _, dup := seen[c.Task]; dup {
			return nil, fmt.Errorf("batch: duplicate task id %q", c.Task)
		}
		seen[c.Task] = struct{}{}
	}

	return &batch, nil
}
