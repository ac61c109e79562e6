// Package tools provides toolbox sessions and their multiplexing over MCP (Model Context Protocol).
//
// It is organized into sub-packages:
//   - [github.com/germanamz/toolplex/pkg/tools/session] : Session contract plus the Capability and Result types shared by every layer
//   - [github.com/germanamz/toolplex/pkg/tools/mcpclient] : Session backed by the official MCP Go SDK over stdio, SSE or streamable HTTP
//   - [github.com/germanamz/toolplex/pkg/tools/reconnect] : decorator that connects around every list and call
//   - [github.com/germanamz/toolplex/pkg/tools/worker] : decorator that runs every operation on one dedicated goroutine
//   - [github.com/germanamz/toolplex/pkg/tools/confirm] : confirmation gate and its line, form and responder approvers
//   - [github.com/germanamz/toolplex/pkg/tools/namespace] : adapter that prefixes tool names, gates calls and serializes access
//   - [github.com/germanamz/toolplex/pkg/tools/mux] : multiplexer that builds, connects, routes and releases adapters
//   - [github.com/germanamz/toolplex/pkg/tools/toolbox] : flat Tool registry used to re-serve the multiplexed tools
//   - [github.com/germanamz/toolplex/pkg/tools/mcpserver] : MCP server over stdio or streamable HTTP
//
// Sessions compose from the inside out: mcpclient, then reconnect, then
// worker, then namespace. The mcpclient and mcpserver packages are thin
// wrappers around the official MCP Go SDK (github.com/modelcontextprotocol/go-sdk).
package tools
