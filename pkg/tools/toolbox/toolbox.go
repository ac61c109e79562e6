// Package toolbox is a flat, in-process tool registry. Orchestrators that
// want plain "call tool X" semantics use it instead of talking to backends.
package toolbox

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/germanamz/toolplex/pkg/tools/session"
)

// Call is one requested invocation.
type Call struct {
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Result is the outcome of a Call.
type Result struct {
	CallID string `json:"call_id,omitempty"`
	session.Result
}

// ToolBox orchestrates a collection of tools. It allows registering, retrieving,
// listing, and calling tools. It is not safe for concurrent registration.
type ToolBox struct {
	tools map[string]Tool
}

// New creates a new ToolBox ready for use.
func New() *ToolBox {
	return &ToolBox{
		tools: make(map[string]Tool),
	}
}

// Register adds one or more tools to the ToolBox. If a tool with the same name
// already exists, it is replaced.
func (tb *ToolBox) Register(tools ...Tool) {
	for _, t := range tools {
		tb.tools[t.Name] = t
	}
}

// Get returns a tool by name and a boolean indicating whether it was found.
func (tb *ToolBox) Get(name string) (Tool, bool) {
	t, ok := tb.tools[name]
	return t, ok
}

// Merge registers all tools from another ToolBox into this one. If a tool
// with the same name already exists, it is replaced.
func (tb *ToolBox) Merge(other *ToolBox) {
	for _, t := range other.tools {
		tb.tools[t.Name] = t
	}
}

// Tools returns all registered tools sorted by name.
func (tb *ToolBox) Tools() []Tool {
	result := make([]Tool, 0, len(tb.tools))
	for _, t := range tb.tools {
		result = append(result, t)
	}
	slices.SortFunc(result, func(a, b Tool) int { return cmp.Compare(a.Name, b.Name) })
	return result
}

// Call executes a tool call. If the tool is not found or the handler returns
// an error, the result carries the error text and has IsError set.
func (tb *ToolBox) Call(ctx context.Context, c Call) Result {
	t, ok := tb.tools[c.Name]
	if !ok {
		return errorResult(c.ID, fmt.Sprintf("tool not found: %s", c.Name))
	}

	res, err := t.Handler(ctx, c.Arguments)
	if err != nil {
		return errorResult(c.ID, err.Error())
	}
	if res == nil {
		res = &session.Result{}
	}

	return Result{CallID: c.ID, Result: *res}
}

func errorResult(id, text string) Result {
	return Result{CallID: id, Result: *session.TextResult(text, true)}
}
