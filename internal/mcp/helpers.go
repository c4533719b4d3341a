package mcp

import (
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/scratchnotebook/internal/catalog"
	"github.com/ashita-ai/scratchnotebook/internal/domainerr"
)

func jsonMarshalIndent(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

// domainErrorResult renders a domainerr.Error (or any error) as a tool
// error result carrying its code, matching spec §6's error envelope.
func domainErrorResult(err error) *mcplib.CallToolResult {
	if de, ok := domainerr.As(err); ok {
		payload, _ := jsonMarshalIndent(map[string]any{
			"error": map[string]any{
				"code":    de.Code,
				"message": de.Message,
				"details": de.Details,
			},
		})
		return &mcplib.CallToolResult{
			Content: []mcplib.Content{mcplib.TextContent{Type: "text", Text: string(payload)}},
			IsError: true,
		}
	}
	return errorResult(err.Error())
}

func stringSliceArg(req mcplib.CallToolRequest, key string) []string {
	raw, ok := req.GetArguments()[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func mapArg(req mcplib.CallToolRequest, key string) map[string]any {
	m, ok := req.GetArguments()[key].(map[string]any)
	if !ok {
		return nil
	}
	return m
}

func boolArgPtr(req mcplib.CallToolRequest, key string) *bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return nil
	}
	return &v
}

// boolArg mirrors _examples/HendryAvila-Hoofy/internal/memtools/helpers.go's
// boolArg: mcp-go decodes JSON tool arguments into bare interface{} values,
// so booleans need the same manual type assertion as strings and numbers.
func boolArg(req mcplib.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

func catalogSchemaEntry(name, description string, schema map[string]any) catalog.SchemaEntry {
	return catalog.SchemaEntry{Name: name, Description: description, Schema: schema}
}

// buildCell converts a raw {language, content, validate?, json_schema?,
// tags?, metadata?} argument object into a catalog.Cell, matching
// original_source/scratch_notebook/models.py's ScratchCell construction.
func buildCell(raw map[string]any) catalog.Cell {
	cell := catalog.Cell{Validate: true}
	if v, ok := raw["language"].(string); ok {
		cell.Language = v
	}
	if v, ok := raw["content"].(string); ok {
		cell.Content = v
	}
	if v, ok := raw["validate"].(bool); ok {
		cell.Validate = v
	}
	if v, ok := raw["json_schema"]; ok {
		cell.JSONSchema = v
	}
	if tags, ok := raw["tags"].([]any); ok {
		for _, t := range tags {
			if s, ok := t.(string); ok && s != "" {
				cell.Tags = append(cell.Tags, s)
			}
		}
	}
	if md, ok := raw["metadata"].(map[string]any); ok {
		cell.Metadata = md
	}
	return cell
}
