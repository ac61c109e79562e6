// Package prompt assembles the markdown system prompt handed to an
// orchestrator from the active toolboxes and run configuration.
package prompt

import (
	"strings"

	"github.com/germanamz/toolplex/pkg/tools/session"
)

// Sections are the inputs of Build. Empty sections are omitted.
type Sections struct {
	System            string
	Task              string
	Tools             []string
	Resources         []string
	ResourceTemplates []string
	Guidelines        []string
	ServerPrompts     []string
}

// Build renders the prompt.
func Build(s Sections) string {
	var b strings.Builder

	b.WriteString("\n" + s.System + "\n")

	list(&b, "Available Tools", "- ", s.Tools)
	list(&b, "Available Resources", "- ", s.Resources)
	list(&b, "Available Resource Templates", "- ", s.ResourceTemplates)
	list(&b, "Important Guidelines", "- IMPORTANT: ", s.Guidelines)

	if len(s.ServerPrompts) > 0 {
		b.WriteString("\n\n# Additional Guidelines\n\n")
		b.WriteString(strings.Join(s.ServerPrompts, "\n\n"))
		b.WriteString("\n\n")
	}

	if s.Task != "" {
		b.WriteString("\n\n# Primary Task to Complete\n\n")
		b.WriteString(s.Task)
		b.WriteString("\n\n")
	}

	return b.String()
}

// ToolLines formats capabilities as "NAME: description" lines for
// Sections.Tools.
func ToolLines(caps []session.Capability) []string {
	lines := make([]string, 0, len(caps))
	for _, c := range caps {
		if desc := strings.Join(strings.Fields(c.Description), " "); desc != "" {
			lines = append(lines, c.Name+": "+desc)
			continue
		}
		lines = append(lines, c.Name)
	}
	return lines
}

func list(b *strings.Builder, title, bullet string, items []string) {
	if len(items) == 0 {
		return
	}

	b.WriteString("\n\n# " + title + "\n\n")
	for _, item := range items {
		b.WriteString(bullet + item + "\n")
	}
}
