package validate

import (
	"encoding/json"

	"github.com/ashita-ai/scratchnotebook/internal/catalog"
)

func validateJSON(r *catalog.ValidationResult, cell catalog.Cell, resolver catalog.SchemaResolver) {
	var parsed any
	if err := json.Unmarshal([]byte(cell.Content), &parsed); err != nil {
		addError(r, "INVALID_JSON", "content does not parse as JSON: "+err.Error())
		return
	}
	if cell.JSONSchema == nil {
		return
	}
	schemaMap, warn := resolveSchemaMap(cell.JSONSchema, resolver)
	if warn != nil {
		addWarning(r, warn.Code, warn.Message, warn.Details)
		return
	}
	if schemaMap == nil {
		return
	}
	schema, err := compileSchema(schemaMap)
	if err != nil {
		addWarning(r, "SCHEMA_COMPILE_FAILED", "json_schema could not be compiled: "+err.Error(), nil)
		return
	}
	if err := schema.Validate(parsed); err != nil {
		addError(r, "SCHEMA_MISMATCH", "content does not satisfy json_schema: "+err.Error())
		if r.Details == nil {
			r.Details = map[string]any{}
		}
		r.Details["schema"] = map[string]any{"error": err.Error()}
	}
}
