// Package session defines the contract every toolbox backend connection
// satisfies, along with the capability and result value types that flow
// through the decorators layered on top of it.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Session is one connection to one toolbox backend. Implementations are not
// required to be safe for concurrent use; callers serialize access.
type Session interface {
	// Name returns the toolbox name the session was configured with.
	Name() string
	// Connect establishes backend readiness.
	Connect(ctx context.Context) error
	// Disconnect releases any held resources.
	Disconnect(ctx context.Context) error
	// ListTools returns the current capability set.
	ListTools(ctx context.Context) ([]Capability, error)
	// CallTool performs one invocation. args is a JSON object.
	CallTool(ctx context.Context, name string, args json.RawMessage) (*Result, error)
}

// Capability is a named, schema-described operation offered by a backend.
type Capability struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// Content types understood by Result consumers.
const (
	ContentText     = "text"
	ContentImage    = "image"
	ContentAudio    = "audio"
	ContentResource = "resource"
	ContentLink     = "resource_link"
)

// Content is one block of an invocation result.
type Content struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	MIMEType string `json:"mimeType,omitempty"`
	Data     []byte `json:"data,omitempty"`
	URI      string `json:"uri,omitempty"`
}

// Result is the outcome of one invocation. Backends own its shape.
type Result struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// TextResult builds a result holding a single text block.
func TextResult(text string, isError bool) *Result {
	return &Result{
		Content: []Content{{Type: ContentText, Text: text}},
		IsError: isError,
	}
}

// Text joins all text blocks with newlines.
func (r *Result) Text() string {
	if r == nil {
		return ""
	}

	var texts []string
	for _, c := range r.Content {
		if c.Type == ContentText {
			texts = append(texts, c.Text)
		}
	}

	return strings.Join(texts, "\n")
}

// TransportError is a connect, list, call, or disconnect failure reported by a
// backend. It is never retried by this layer.
type TransportError struct {
	Toolbox string
	Op      string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Toolbox, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
