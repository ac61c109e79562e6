package main

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeStdio(t *testing.T) {
	cfg := writeConfig(t, startBackend(t))

	toServerR, toServerW := io.Pipe()
	fromServerR, fromServerW := io.Pipe()
	t.Cleanup(func() {
		_ = fromServerW.Close()
		_ = toServerR.Close()
	})

	root := newRootCmd()
	root.SetIn(toServerR)
	root.SetOut(fromServerW)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"--env", "", "--config", cfg, "serve", "echo", "gated", "--headless"})

	done := make(chan error, 1)
	go func() { done <- root.ExecuteContext(context.Background()) }()

	ctx := context.Background()
	client := mcp.NewClient(&mcp.Implementation{Name: "orchestrator", Version: "1.0.0"}, nil)
	cs, err := client.Connect(ctx, &mcp.IOTransport{Reader: fromServerR, Writer: toServerW}, nil)
	require.NoError(t, err)

	var names []string
	for tool, err := range cs.Tools(ctx, nil) {
		require.NoError(t, err)
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"ECHO_echo", "ECHO_fail", "GATED_echo", "GATED_fail"}, names)

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{Name: "GATED_echo", Arguments: map[string]any{"via": "stdio"}})
	require.NoError(t, err)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	assert.JSONEq(t, `{"via":"stdio"}`, text.Text)
	assert.False(t, res.IsError)

	res, err = cs.CallTool(ctx, &mcp.CallToolParams{Name: "ECHO_fail"})
	require.NoError(t, err)
	assert.True(t, res.IsError)

	require.NoError(t, cs.Close())

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after the client hung up")
	}
}
