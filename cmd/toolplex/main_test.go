package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/germanamz/toolplex/pkg/asyncout"
	"github.com/germanamz/toolplex/pkg/tools/mcpserver"
	"github.com/germanamz/toolplex/pkg/tools/session"
	"github.com/germanamz/toolplex/pkg/tools/toolbox"
)

func executeCommand(root *cobra.Command, stdin io.Reader, args ...string) (stdout, stderr string, err error) {
	outBuf := new(bytes.Buffer)
	errBuf := new(bytes.Buffer)
	root.SetOut(outBuf)
	root.SetErr(errBuf)
	if stdin != nil {
		root.SetIn(stdin)
	}
	root.SetArgs(append([]string{"--env", ""}, args...))
	err = root.ExecuteContext(context.Background())
	return outBuf.String(), errBuf.String(), err
}

func requireExitCode(t *testing.T, err error, code int) {
	t.Helper()
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr), "expected ExitError, got %v", err)
	assert.Equal(t, code, exitErr.Code)
}

// startBackend serves an echo and a fail tool over streamable HTTP.
func startBackend(t *testing.T) string {
	t.Helper()

	srv := mcpserver.New("backend", "1.0.0", nil)
	srv.Register(
		toolbox.Tool{
			Name:        "echo",
			Description: "Echoes input.",
			InputSchema: json.RawMessage(`{"type":"object"}`),
			Handler: func(_ context.Context, input json.RawMessage) (*session.Result, error) {
				return session.TextResult(string(input), false), nil
			},
		},
		toolbox.Tool{
			Name:        "fail",
			Description: "Always reports an error.",
			Handler: func(_ context.Context, _ json.RawMessage) (*session.Result, error) {
				return session.TextResult("backend refused", true), nil
			},
		},
	)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return ts.URL
}

// writeConfig writes a catalog with an ungated "echo" toolbox and a "gated"
// toolbox whose echo tool needs confirmation, both backed by url.
func writeConfig(t *testing.T, url string) string {
	t.Helper()

	cfg := `toolboxes:
  - name: echo
    kind: streamable
    url: ` + url + `
    server_prompt: Use echo wisely.
  - name: gated
    kind: per-call-stream
    url: ` + url + `
    confirm: [echo]
`
	path := filepath.Join(t.TempDir(), "toolplex.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))

	return path
}

func TestList(t *testing.T) {
	cfg := writeConfig(t, startBackend(t))

	out, _, err := executeCommand(newRootCmd(), nil, "--config", cfg, "list", "echo")
	require.NoError(t, err)

	assert.Contains(t, out, "TOOL")
	assert.Contains(t, out, "ECHO_echo")
	assert.Contains(t, out, "Echoes input.")
	assert.Contains(t, out, "ECHO_fail")
	assert.NotContains(t, out, "GATED_")
}

func TestListJSON(t *testing.T) {
	cfg := writeConfig(t, startBackend(t))

	out, _, err := executeCommand(newRootCmd(), nil, "--config", cfg, "list", "echo", "gated", "--json")
	require.NoError(t, err)

	var caps []session.Capability
	require.NoError(t, json.Unmarshal([]byte(out), &caps))

	names := make([]string, 0, len(caps))
	for _, c := range caps {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"ECHO_echo", "ECHO_fail", "GATED_echo", "GATED_fail"}, names)
}

func TestListUnknownToolbox(t *testing.T) {
	cfg := writeConfig(t, startBackend(t))

	_, _, err := executeCommand(newRootCmd(), nil, "--config", cfg, "list", "echo", "nope")
	requireExitCode(t, err, exitConfig)
	assert.Contains(t, err.Error(), "nope")
}

func TestCallRaw(t *testing.T) {
	cfg := writeConfig(t, startBackend(t))

	out, _, err := executeCommand(newRootCmd(), nil,
		"--config", cfg, "call", "echo", "--tool", "ECHO_echo", "--args", `{"msg":"hi"}`, "--raw")
	require.NoError(t, err)
	assert.JSONEq(t, `{"msg":"hi"}`, strings.TrimSpace(out))
}

func TestCallRendered(t *testing.T) {
	cfg := writeConfig(t, startBackend(t))

	out, _, err := executeCommand(newRootCmd(), nil,
		"--config", cfg, "call", "echo", "--tool", "ECHO_echo", "--args", `{"msg":"rendered"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "rendered")
}

func TestCallToolError(t *testing.T) {
	cfg := writeConfig(t, startBackend(t))

	out, stderr, err := executeCommand(newRootCmd(), nil,
		"--config", cfg, "call", "echo", "--tool", "ECHO_fail")
	requireExitCode(t, err, exitToolError)
	assert.Contains(t, out, "backend refused")
	assert.Contains(t, stderr, "ECHO_fail reported an error")
}

func TestCallTask(t *testing.T) {
	cfg := writeConfig(t, startBackend(t))

	out, _, err := executeCommand(newRootCmd(), nil,
		"--config", cfg, "call", "echo", "--tool", "ECHO_echo", "--task", "job-1")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, asyncout.Placeholder), out)
	assert.Contains(t, out, "** Output for async task: job-1\n\n{}")
}

func TestCallInvalidArgs(t *testing.T) {
	tests := []struct {
		name string
		args string
	}{
		{name: "array", args: `[1]`},
		{name: "null", args: `null`},
		{name: "malformed", args: `{"a":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := executeCommand(newRootCmd(), nil,
				"--config", "does-not-matter.yaml", "call", "echo", "--tool", "ECHO_echo", "--args", tt.args)
			requireExitCode(t, err, exitConfig)
		})
	}
}

func TestCallUnroutableTool(t *testing.T) {
	cfg := writeConfig(t, startBackend(t))

	_, _, err := executeCommand(newRootCmd(), nil, "--config", cfg, "call", "echo", "--tool", "OTHER_echo")
	requireExitCode(t, err, exitConfig)
	assert.Contains(t, err.Error(), "OTHER_echo")
}

func TestCallGated(t *testing.T) {
	cfg := writeConfig(t, startBackend(t))

	t.Run("denied", func(t *testing.T) {
		out, stderr, err := executeCommand(newRootCmd(), strings.NewReader("no\n"),
			"--config", cfg, "call", "gated", "--tool", "GATED_echo", "--raw")
		requireExitCode(t, err, exitToolError)
		assert.Contains(t, out, "Tool call not allowed.")
		assert.Contains(t, stderr, "requires confirmation")
	})

	t.Run("approved after retry", func(t *testing.T) {
		out, stderr, err := executeCommand(newRootCmd(), strings.NewReader("maybe\ny\n"),
			"--config", cfg, "call", "gated", "--tool", "GATED_echo", "--args", `{"go":1}`, "--raw")
		require.NoError(t, err)
		assert.JSONEq(t, `{"go":1}`, strings.TrimSpace(out))
		assert.Contains(t, stderr, "Please answer yes or no.")
	})

	t.Run("headless", func(t *testing.T) {
		out, _, err := executeCommand(newRootCmd(), strings.NewReader(""),
			"--config", cfg, "--headless", "call", "gated", "--tool", "GATED_echo", "--raw")
		require.NoError(t, err)
		assert.JSONEq(t, `{}`, strings.TrimSpace(out))
	})

	t.Run("ungated tool skips the prompt", func(t *testing.T) {
		_, stderr, err := executeCommand(newRootCmd(), strings.NewReader(""),
			"--config", cfg, "call", "gated", "--tool", "GATED_fail", "--raw")
		requireExitCode(t, err, exitToolError)
		assert.NotContains(t, stderr, "requires confirmation")
	})
}

func TestBatch(t *testing.T) {
	cfg := writeConfig(t, startBackend(t))

	batch := `toolboxes: [echo]
calls:
  - task: first
    tool: ECHO_echo
    args: {n: 1}
  - task: second
    tool: ECHO_echo
    args: {n: 2}
  - tool: ECHO_echo
`
	path := filepath.Join(t.TempDir(), "batch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(batch), 0o600))

	out, _, err := executeCommand(newRootCmd(), nil, "--config", cfg, "batch", path, "--parallel", "2")
	require.NoError(t, err)

	assert.Equal(t, 3, strings.Count(out, asyncout.Placeholder))

	first := strings.Index(out, "** Output for async task: first")
	second := strings.Index(out, "** Output for async task: second")
	require.GreaterOrEqual(t, first, 0)
	require.GreaterOrEqual(t, second, 0)
	assert.Less(t, first, second)
	assert.Contains(t, out[first:second], `{"n":1}`)
	assert.Contains(t, out[second:], `{"n":2}`)
	assert.Equal(t, 3, strings.Count(out, "** Output for async task: "))
}

func TestBatchFailure(t *testing.T) {
	cfg := writeConfig(t, startBackend(t))

	batch := `{"toolboxes": ["echo"], "calls": [{"task": "ok", "tool": "ECHO_echo"}, {"task": "bad", "tool": "ECHO_fail"}, {"task": "lost", "tool": "NOPE_x"}]}`
	path := filepath.Join(t.TempDir(), "batch.json")
	require.NoError(t, os.WriteFile(path, []byte(batch), 0o600))

	out, stderr, err := executeCommand(newRootCmd(), nil, "--config", cfg, "batch", path)
	requireExitCode(t, err, exitToolError)

	assert.Contains(t, out, "backend refused")
	assert.Contains(t, out, "error: ")
	assert.Contains(t, stderr, "2 of 3 calls failed")
	assert.Contains(t, err.Error(), "task bad (ECHO_fail) failed")
	assert.Contains(t, err.Error(), "task lost (NOPE_x) failed")
}

func TestLoadBatch(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "no toolboxes", content: "calls: [{tool: A_x}]", wantErr: "toolboxes is required"},
		{name: "no calls", content: "toolboxes: [a]", wantErr: "no calls"},
		{name: "missing tool", content: "toolboxes: [a]\ncalls: [{task: t}]", wantErr: "tool is required"},
		{name: "duplicate task", content: "toolboxes: [a]\ncalls: [{task: t, tool: A_x}, {task: t, tool: A_y}]", wantErr: "duplicate task id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "batch.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			_, err := loadBatch(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("assigns task ids", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "batch.yaml")
		require.NoError(t, os.WriteFile(path, []byte("toolboxes: [a]\ncalls: [{tool: A_x}, {tool: A_y}]"), 0o600))

		b, err := loadBatch(path)
		require.NoError(t, err)
		require.Len(t, b.Calls, 2)
		assert.NotEmpty(t, b.Calls[0].Task)
		assert.NotEqual(t, b.Calls[0].Task, b.Calls[1].Task)
	})
}

func TestPrompt(t *testing.T) {
	cfg := writeConfig(t, startBackend(t))

	out, _, err := executeCommand(newRootCmd(), nil,
		"--config", cfg, "prompt", "echo",
		"--system", "You are helpful.",
		"--task", "Summarize the repo.",
		"--guideline", "Never guess.")
	require.NoError(t, err)

	assert.Contains(t, out, "\nYou are helpful.\n")
	assert.Contains(t, out, "# Available Tools")
	assert.Contains(t, out, "- ECHO_echo: Echoes input.")
	assert.Contains(t, out, "- IMPORTANT: Never guess.")
	assert.Contains(t, out, "# Additional Guidelines\n\nUse echo wisely.")
	assert.Contains(t, out, "# Primary Task to Complete\n\nSummarize the repo.")
}

func TestServeStdioRejectsLinePrompts(t *testing.T) {
	cfg := writeConfig(t, startBackend(t))

	_, _, err := executeCommand(newRootCmd(), nil, "--config", cfg, "serve", "gated")
	requireExitCode(t, err, exitConfig)
	assert.Contains(t, err.Error(), "stdin carries MCP traffic")
}

func TestHTTPApproverRequiresServeHTTP(t *testing.T) {
	cfg := writeConfig(t, startBackend(t))

	_, _, err := executeCommand(newRootCmd(), nil,
		"--config", cfg, "--approver", "http", "call", "echo", "--tool", "ECHO_echo")
	requireExitCode(t, err, exitConfig)
}

func TestUnknownApprover(t *testing.T) {
	cfg := writeConfig(t, startBackend(t))

	_, _, err := executeCommand(newRootCmd(), nil,
		"--config", cfg, "--approver", "carrier-pigeon", "list", "echo")
	requireExitCode(t, err, exitConfig)
}

func TestInvalidLogLevel(t *testing.T) {
	_, _, err := executeCommand(newRootCmd(), nil, "--log-level", "loud", "list", "echo")
	requireExitCode(t, err, exitConfig)
}

func TestValidate(t *testing.T) {
	cfg := writeConfig(t, "http://127.0.0.1:1")

	out, _, err := executeCommand(newRootCmd(), nil, "--config", cfg, "validate")
	require.NoError(t, err)

	assert.Contains(t, out, "echo")
	assert.Contains(t, out, "ECHO_")
	assert.Contains(t, out, "GATED_")
	assert.Contains(t, out, "streamable")
	assert.Contains(t, out, "2 toolboxes OK")
}

func TestValidateRejectsBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "toolplex.yaml")
	require.NoError(t, os.WriteFile(path, []byte("toolboxes:\n  - name: x\n    kind: pigeon\n"), 0o600))

	_, _, err := executeCommand(newRootCmd(), nil, "--config", path, "validate")
	requireExitCode(t, err, exitConfig)
}

func TestLoadDotEnv(t *testing.T) {
	t.Run("missing file is ignored", func(t *testing.T) {
		assert.NoError(t, loadDotEnv(filepath.Join(t.TempDir(), ".env")))
	})

	t.Run("loads variables", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(path, []byte("TOOLPLEX_TEST_DOTENV=loaded\n"), 0o600))
		t.Cleanup(func() { _ = os.Unsetenv("TOOLPLEX_TEST_DOTENV") })

		require.NoError(t, loadDotEnv(path))
		assert.Equal(t, "loaded", os.Getenv("TOOLPLEX_TEST_DOTENV"))
	})
}

func TestResultText(t *testing.T) {
	res := &session.Result{Content: []session.Content{
		{Type: session.ContentText, Text: "hello"},
		{Type: session.ContentImage, MIMEType: "image/png", Data: []byte{1, 2, 3}},
		{Type: session.ContentLink, URI: "file:///tmp/x"},
	}}

	assert.Equal(t, "hello\n[image image/png, 3 bytes]\n[resource_link file:///tmp/x]", resultText(res))
	assert.Empty(t, resultText(nil))
}
