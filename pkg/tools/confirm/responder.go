package confirm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/germanamz/toolplex/pkg/ask"
)

// ResponderApprover routes approval questions through an ask.Responder so a
// non-terminal frontend can answer them. Ambiguous responses are asked again.
type ResponderApprover struct {
	responder *ask.Responder
	width     int
}

// NewResponderApprover creates a ResponderApprover backed by r.
func NewResponderApprover(r *ask.Responder) *ResponderApprover {
	return &ResponderApprover{responder: r, width: DefaultPreviewWidth}
}

// Approve implements Approver.
func (a *ResponderApprover) Approve(ctx context.Context, tool string, args json.RawMessage) (bool, error) {
	question := fmt.Sprintf("Allow call to %s?", tool)
	if preview := Preview(args, a.width); preview != "" {
		question += "\n\n" + preview
	}

	for {
		resp, err := a.responder.Ask(ctx, question, []string{"yes", "no"})
		if err != nil {
			return false, fmt.Errorf("confirm: %w", err)
		}
		if approved, ok := ParseAnswer(resp); ok {
			return approved, nil
		}
	}
}
