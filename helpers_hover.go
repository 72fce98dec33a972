// scriptnav/helpers_hover.go
// Contains helper functions specifically for generating hover information.
package scriptnav

import (
	"log/slog"
	"path/filepath"
	"strings"
)

// ============================================================================
// Hover Formatting Helper
// ============================================================================

// formatDefinitionsForHover creates a Markdown string for the `def` statements
// a name resolved to: one python code block per definition, followed by the
// defining file when it is not the hovered document. Returns "" for no
// definitions.
func formatDefinitionsForHover(defs []Definition, docPath string, logger *slog.Logger) string {
	if logger == nil {
		logger = slog.Default()
	}
	if len(defs) == 0 {
		logger.Debug("formatDefinitionsForHover called without definitions")
		return ""
	}

	var hoverText strings.Builder
	for i, d := range defs {
		if i > 0 {
			hoverText.WriteString("\n\n---\n\n")
		}
		hoverText.WriteString("```python\n")
		hoverText.WriteString("def ")
		hoverText.WriteString(d.Label())
		hoverText.WriteString("\n```")
		if d.Path != "" && d.Path != docPath {
			hoverText.WriteString("\n\n*")
			hoverText.WriteString(filepath.Base(d.Path))
			hoverText.WriteString("*")
		}
	}
	logger.Debug("Formatted hover text", "definitions", len(defs), "length", hoverText.Len())
	return hoverText.String()
}
