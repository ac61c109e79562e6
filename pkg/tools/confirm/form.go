package confirm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/charmbracelet/huh"
)

// FormApprover asks with an interactive huh confirm form. It needs a
// terminal.
type FormApprover struct {
	mu    sync.Mutex
	width int
}

// NewFormApprover creates a FormApprover.
func NewFormApprover() *FormApprover {
	return &FormApprover{width: DefaultPreviewWidth}
}

// Approve implements Approver.
func (a *FormApprover) Approve(ctx context.Context, tool string, args json.RawMessage) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var approved bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(fmt.Sprintf("Allow call to %s?", tool)).
			Description(Preview(args, a.width)).
			Affirmative("Yes").
			Negative("No").
			Value(&approved),
	))

	if err := form.RunWithContext(ctx); err != nil {
		return false, fmt.Errorf("confirm: form: %w", err)
	}

	return approved, nil
}
