package validate

import (
	"encoding/json"

	"gopkg.in/yaml.v3"

	"github.com/ashita-ai/scratchnotebook/internal/catalog"
)

func validateYAML(r *catalog.ValidationResult, cell catalog.Cell, resolver catalog.SchemaResolver) {
	var parsed any
	if err := yaml.Unmarshal([]byte(cell.Content), &parsed); err != nil {
		addError(r, "INVALID_YAML", "content does not parse as YAML: "+err.Error())
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
	// jsonschema/v5 validates against plain Go values produced by
	// encoding/json; round-trip the YAML-decoded value through JSON so map
	// keys and numeric types match what the schema compiler expects.
	normalized, err := roundTripJSON(parsed)
	if err != nil {
		addWarning(r, "SCHEMA_VALIDATION_SKIPPED", "loaded YAML value could not be normalized for schema validation", nil)
		return
	}
	if err := schema.Validate(normalized); err != nil {
		addError(r, "SCHEMA_MISMATCH", "content does not satisfy json_schema: "+err.Error())
	}
}

func roundTripJSON(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
