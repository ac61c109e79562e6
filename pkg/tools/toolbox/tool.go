package toolbox

import (
	"context"
	"encoding/json"

	"github.com/germanamz/toolplex/pkg/tools/session"
)

// Handler executes a tool with the given JSON input.
type Handler func(ctx context.Context, input json.RawMessage) (*session.Result, error)

// Tool represents an executable tool with a name, description, JSON Schema, and handler.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Handler     Handler
}

// Capability returns the tool's descriptor without its handler.
func (t Tool) Capability() session.Capability {
	return session.Capability{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: t.InputSchema,
	}
}
