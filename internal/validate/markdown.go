package validate

import (
	"strings"

	"github.com/ashita-ai/scratchnotebook/internal/catalog"
)

// validateMarkdown is warnings-only per spec §4.C: it never flips valid to
// false unless the analyzer itself reports a fatal structural failure,
// which this lightweight analyzer never does.
func validateMarkdown(r *catalog.ValidationResult, cell catalog.Cell) {
	lines := strings.Split(cell.Content, "\n")
	sawHeading := false
	lastHeadingLevel := 0
	for i, line := range lines {
		trimmed := strings.TrimLeft(line, " ")
		if !strings.HasPrefix(trimmed, "#") {
			continue
		}
		level := 0
		for level < len(trimmed) && trimmed[level] == '#' {
			level++
		}
		if level > 6 {
			addWarning(r, "HEADING_TOO_DEEP", "markdown heading level exceeds 6", map[string]any{"line": i + 1})
			continue
		}
		if sawHeading && level > lastHeadingLevel+1 {
			addWarning(r, "HEADING_LEVEL_SKIP", "markdown heading level skips a level", map[string]any{"line": i + 1})
		}
		sawHeading = true
		lastHeadingLevel = level
	}
	if r.Details == nil {
		r.Details = map[string]any{}
	}
	r.Details["analysis"] = map[string]any{"headings_checked": sawHeading}
}
