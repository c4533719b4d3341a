// Package validate implements the advisory, language-aware content
// validators plus the per-pad "$ref" schema resolver.
//
// Validation never rejects a write: every dispatch function below returns
// a populated ValidationResult, not an error, for cell-content problems.
// The only error path is a genuinely malformed request (a schema payload
// that isn't a JSON Schema) or the per-request deadline expiring.
package validate

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"

	"github.com/ashita-ai/scratchnotebook/internal/catalog"
	"github.com/ashita-ai/scratchnotebook/internal/domainerr"
)

const (
	notValidatedMessage    = "validation not performed"
	schemaRefSkippedPrefix = "scratchpad://schemas/"
)

// codeLanguages mirrors the syntax-checked dialect set from the source
// spec's language enum (spec.md §3, Cell.language).
var codeLanguages = map[string]bool{
	"py": true, "js": true, "ts": true, "tsx": true, "jsx": true,
	"rs": true, "c": true, "h": true, "cpp": true, "hpp": true,
	"sh": true, "css": true, "html": true, "htm": true, "java": true,
	"go": true, "rb": true, "toml": true, "php": true, "cs": true,
}

// Validator dispatches cell validation by language, offloading the CPU-
// bound work behind a bounded semaphore so a burst of writes never starves
// the request dispatcher (spec §5).
type Validator struct {
	sem *semaphore.Weighted
}

// New builds a Validator with the given worker concurrency. workers <= 0
// (the internal/config default) falls back to runtime.NumCPU().
func New(workers int) *Validator {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Validator{sem: semaphore.NewWeighted(int64(workers))}
}

// ValidateCell dispatches by cell.Language and returns an advisory result.
// It never returns an error for content problems; it returns one only when
// ctx's deadline has already expired (mapped by the caller to
// VALIDATION_TIMEOUT) or the worker pool cannot be acquired before ctx is
// done.
func (v *Validator) ValidateCell(ctx context.Context, cell catalog.Cell, resolver catalog.SchemaResolver) (catalog.ValidationResult, error) {
	if err := ctx.Err(); err != nil {
		return catalog.ValidationResult{}, domainerr.New(domainerr.ValidationTimeout, "validation deadline exceeded")
	}
	if err := v.sem.Acquire(ctx, 1); err != nil {
		return catalog.ValidationResult{}, domainerr.New(domainerr.ValidationTimeout, "validation deadline exceeded")
	}
	defer v.sem.Release(1)

	lang := cell.Language
	result := catalog.ValidationResult{CellID: cell.CellID, Index: cell.Index, Language: lang, Valid: true}

	switch lang {
	case "json":
		validateJSON(&result, cell, resolver)
	case "yaml", "yml":
		validateYAML(&result, cell, resolver)
	case "md":
		validateMarkdown(&result, cell)
	case "txt":
		result.Details = map[string]any{"reason": "no validation performed"}
	default:
		if codeLanguages[lang] {
			validateCode(&result, cell)
		} else {
			result.Details = map[string]any{"reason": notValidatedMessage}
		}
	}
	return result, nil
}

func addError(r *catalog.ValidationResult, code, message string) {
	r.Valid = false
	r.Errors = append(r.Errors, catalog.Diagnostic{Code: code, Message: message})
}

func addWarning(r *catalog.ValidationResult, code, message string, details map[string]any) {
	r.Warnings = append(r.Warnings, catalog.Diagnostic{Code: code, Message: message, Details: details})
}

var _ catalog.Validator = (*Validator)(nil)
