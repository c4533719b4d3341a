package validate

import (
	"strings"

	"github.com/ashita-ai/scratchnotebook/internal/catalog"
)

// validateCode performs a structural, not compiler-grade, syntax check
// (spec.md's Non-goals explicitly disclaim compiler-grade validation): it
// checks bracket/brace/paren balance and flags empty content as a warning.
// A real external syntax checker is out of scope for the core per spec §1.
func validateCode(r *catalog.ValidationResult, cell catalog.Cell) {
	if strings.TrimSpace(cell.Content) == "" {
		addWarning(r, "EMPTY_CONTENT", "cell content is empty", nil)
		return
	}
	if err := checkBalance(cell.Content); err != "" {
		addError(r, "UNBALANCED_DELIMITERS", err)
		return
	}
	if r.Details == nil {
		r.Details = map[string]any{}
	}
	r.Details["syntax"] = map[string]any{"checked": "structural"}
}

var pairs = map[rune]rune{')': '(', ']': '[', '}': '{'}
var openers = map[rune]bool{'(': true, '[': true, '{': true}

func checkBalance(content string) string {
	var stack []rune
	inString := false
	var quote rune
	escaped := false
	for _, r := range content {
		if inString {
			if escaped {
				escaped = false
				continue
			}
			if r == '\\' {
				escaped = true
				continue
			}
			if r == quote {
				inString = false
			}
			continue
		}
		switch {
		case r == '"' || r == '\'' || r == '`':
			inString = true
			quote = r
		case openers[r]:
			stack = append(stack, r)
		case pairs[r] != 0:
			if len(stack) == 0 || stack[len(stack)-1] != pairs[r] {
				return "unbalanced delimiter near '" + string(r) + "'"
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		return "unclosed delimiter '" + string(stack[len(stack)-1]) + "'"
	}
	return ""
}
