package confirm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

// DefaultPreviewWidth bounds the display width of the argument preview.
const DefaultPreviewWidth = 120

var (
	promptTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3"))
	promptArgsStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	promptRetryStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

// LineApprover asks on a line-oriented terminal. It re-prompts until it reads
// yes, y, no or n. Concurrent prompts are serialized.
type LineApprover struct {
	mu    sync.Mutex
	in    *bufio.Reader
	out   io.Writer
	width int
}

// NewLineApprover reads answers from in and writes prompts to out.
func NewLineApprover(in io.Reader, out io.Writer) *LineApprover {
	return &LineApprover{
		in:    bufio.NewReader(in),
		out:   out,
		width: DefaultPreviewWidth,
	}
}

// WithPreviewWidth sets the display width of the argument preview.
func (a *LineApprover) WithPreviewWidth(width int) *LineApprover {
	a.width = width
	return a
}

// Approve implements Approver. Reading stops at ctx cancellation only between
// lines; an exhausted input is an error.
func (a *LineApprover) Approve(ctx context.Context, tool string, args json.RawMessage) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	fmt.Fprintln(a.out, promptTitleStyle.Render("Tool call requires confirmation: "+tool))
	if preview := Preview(args, a.width); preview != "" {
		fmt.Fprintln(a.out, promptArgsStyle.Render("  args: "+preview))
	}

	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		fmt.Fprint(a.out, "Allow this call? [yes/no]: ")

		line, err := a.in.ReadString('\n')
		if approved, ok := ParseAnswer(line); ok {
			return approved, nil
		}
		if err != nil {
			return false, fmt.Errorf("confirm: read answer: %w", err)
		}

		fmt.Fprintln(a.out, promptRetryStyle.Render("Please answer yes or no."))
	}
}

// Preview renders args on one line, truncated to width display cells.
func Preview(args json.RawMessage, width int) string {
	text := strings.Join(strings.Fields(string(args)), " ")
	if width <= 0 || runewidth.StringWidth(text) <= width {
		return text
	}
	return runewidth.Truncate(text, width, "…")
}
