package validate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ashita-ai/scratchnotebook/internal/catalog"
)

// resolveSchemaMap interprets a cell's json_schema field: an inline object,
// a JSON string to parse, or a "scratchpad://schemas/<name>" reference
// resolved against the pad's registry. A missing/invalid reference is
// reported as a warning, never an error (spec §4.C).
func resolveSchemaMap(raw any, resolver catalog.SchemaResolver) (map[string]any, *catalog.Diagnostic) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return v, nil
	case string:
		if strings.HasPrefix(v, schemaRefSkippedPrefix) {
			name := strings.TrimPrefix(v, schemaRefSkippedPrefix)
			if m, ok := resolver.ResolveSchema(name); ok {
				return m, nil
			}
			return nil, &catalog.Diagnostic{
				Code:    "UNRESOLVED_SCHEMA_REF",
				Message: fmt.Sprintf("schema reference %q not found", name),
				Details: map[string]any{"schema": map[string]any{"unresolved_ref": name}},
			}
		}
		m := map[string]any{}
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return nil, &catalog.Diagnostic{Code: "INVALID_INLINE_SCHEMA", Message: "json_schema string does not parse as JSON: " + err.Error()}
		}
		return m, nil
	default:
		return nil, &catalog.Diagnostic{Code: "INVALID_INLINE_SCHEMA", Message: "json_schema field has an unsupported type"}
	}
}

// compileSchema builds a *jsonschema.Schema from a plain map, matching the
// draft the santhosh-tekuri/jsonschema/v5 default compiler targets.
func compileSchema(m map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	const resourceURL = "mem://cell-schema.json"
	if err := c.AddResource(resourceURL, bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return c.Compile(resourceURL)
}
