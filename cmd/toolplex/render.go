package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/germanamz/toolplex/pkg/tools/session"
)

const defaultWrapWidth = 100

var (
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// renderMarkdown converts markdown text to terminal-formatted output using
// glamour. Falls back to plain text if the renderer is unavailable.
func renderMarkdown(text string, width int) string {
	if width <= 0 {
		width = defaultWrapWidth
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return text
	}
	out, err := r.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}

// resultText flattens a result for display. Text blocks are kept verbatim;
// other blocks are summarized on their own line.
func resultText(res *session.Result) string {
	if res == nil {
		return ""
	}

	parts := make([]string, 0, len(res.Content))
	for _, c := range res.Content {
		switch c.Type {
		case session.ContentText:
			parts = append(parts, c.Text)
		case session.ContentImage, session.ContentAudio:
			parts = append(parts, fmt.Sprintf("[%s %s, %d bytes]", c.Type, c.MIMEType, len(c.Data)))
		case session.ContentResource, session.ContentLink:
			parts = append(parts, fmt.Sprintf("[%s %s]", c.Type, c.URI))
		default:
			parts = append(parts, "["+c.Type+"]")
		}
	}

	return strings.Join(parts, "\n")
}
