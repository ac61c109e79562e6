// Package confirm implements the confirmation gate: calls to designated tools
// must be approved by an Approver before they reach the backend.
package confirm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/germanamz/toolplex/pkg/tools/session"
)

// DeniedText is the text of the result fabricated for a denied call.
const DeniedText = "Tool call not allowed."

// ErrNoApprover is returned when a gated tool is called and no Approver is
// configured.
var ErrNoApprover = errors.New("confirm: no approver configured")

// Approver obtains a binary decision for one tool call. Implementations block
// until the decision is unambiguous or ctx ends.
type Approver interface {
	Approve(ctx context.Context, tool string, args json.RawMessage) (bool, error)
}

// ApproverFunc adapts a function to the Approver interface.
type ApproverFunc func(ctx context.Context, tool string, args json.RawMessage) (bool, error)

// Approve implements Approver.
func (f ApproverFunc) Approve(ctx context.Context, tool string, args json.RawMessage) (bool, error) {
	return f(ctx, tool, args)
}

// DecisionFunc is notified of every decision the gate obtains.
type DecisionFunc func(ctx context.Context, tool string, approved bool)

// Gate holds the confirm set of one toolbox.
type Gate struct {
	tools      map[string]struct{}
	approver   Approver
	onDecision DecisionFunc
}

// New builds a gate for the given tool names. An empty list yields a gate
// that passes every call through.
func New(tools []string, approver Approver) *Gate {
	set := make(map[string]struct{}, len(tools))
	for _, t := range tools {
		set[t] = struct{}{}
	}

	return &Gate{tools: set, approver: approver}
}

// OnDecision registers fn to be notified of every decision.
func (g *Gate) OnDecision(fn DecisionFunc) {
	g.onDecision = fn
}

// Requires reports whether tool needs approval. A nil gate requires nothing.
func (g *Gate) Requires(tool string) bool {
	if g == nil || len(g.tools) == 0 {
		return false
	}
	_, ok := g.tools[tool]
	return ok
}

// Check decides whether a call may proceed. It returns a nil result when the
// call may be forwarded, or the denial result the caller must return instead
// of contacting the backend.
func (g *Gate) Check(ctx context.Context, tool string, args json.RawMessage) (*session.Result, error) {
	if !g.Requires(tool) {
		return nil, nil
	}
	if g.approver == nil {
		return nil, ErrNoApprover
	}

	approved, err := g.approver.Approve(ctx, tool, args)
	if err != nil {
		return nil, err
	}
	if g.onDecision != nil {
		g.onDecision(ctx, tool, approved)
	}
	if !approved {
		return Denied(), nil
	}

	return nil, nil
}

// Denied returns the result fabricated for a denied call.
func Denied() *session.Result {
	return session.TextResult(DeniedText, true)
}

// ParseAnswer interprets an operator answer. ok is false when the answer is
// neither affirmative nor negative.
func ParseAnswer(answer string) (approved, ok bool) {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "yes", "y":
		return true, true
	case "no", "n":
		return false, true
	}
	return false, false
}
