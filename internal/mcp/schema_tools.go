package mcp

import (
	"context"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerSchemaTools() {
	// scratch_upsert_schema — register or update a named JSON Schema.
	s.mcpServer.AddTool(
		mcplib.NewTool("scratch_upsert_schema",
			mcplib.WithDescription(`Register or update a named JSON Schema on a scratch notebook, so cells can
reference it by "scratchpad://schemas/<name>" instead of inlining the
schema on every cell. schema is a JSON Schema object.`),
			mcplib.WithString("scratch_id", mcplib.Required()),
			mcplib.WithString("name", mcplib.Required()),
			mcplib.WithString("description"),
		),
		s.gated(s.handleUpsertSchema),
	)

	// scratch_get_schema — fetch a registered schema by name.
	s.mcpServer.AddTool(
		mcplib.NewTool("scratch_get_schema",
			mcplib.WithDescription("Fetch a schema registered on a scratch notebook by name."),
			mcplib.WithString("scratch_id", mcplib.Required()),
			mcplib.WithString("name", mcplib.Required()),
		),
		s.gated(s.handleGetSchema),
	)

	// scratch_list_schemas — list every schema registered on a scratch notebook.
	s.mcpServer.AddTool(
		mcplib.NewTool("scratch_list_schemas",
			mcplib.WithDescription("List every schema registered on a scratch notebook."),
			mcplib.WithString("scratch_id", mcplib.Required()),
		),
		s.gated(s.handleListSchemas),
	)
}

func (s *Server) handleUpsertSchema(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	tenant := s.tenant(ctx)
	scratchID := req.GetString("scratch_id", "")
	name := req.GetString("name", "")
	if scratchID == "" || name == "" {
		return errorResult("scratch_id and name are required"), nil
	}
	schema := mapArg(req, "schema")
	if schema == nil {
		return errorResult("schema is required"), nil
	}
	entry, err := s.store.UpsertSchema(ctx, tenant, scratchID, name, catalogSchemaEntry(name, req.GetString("description", ""), schema))
	if err != nil {
		return domainErrorResult(err), nil
	}
	return jsonResult(map[string]any{"schema": entry}), nil
}

func (s *Server) handleGetSchema(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	tenant := s.tenant(ctx)
	scratchID := req.GetString("scratch_id", "")
	name := req.GetString("name", "")
	if scratchID == "" || name == "" {
		return errorResult("scratch_id and name are required"), nil
	}
	entry, err := s.store.GetSchema(ctx, tenant, scratchID, name)
	if err != nil {
		return domainErrorResult(err), nil
	}
	return jsonResult(map[string]any{"schema": entry}), nil
}

func (s *Server) handleListSchemas(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	tenant := s.tenant(ctx)
	scratchID := req.GetString("scratch_id", "")
	if scratchID == "" {
		return errorResult("scratch_id is required"), nil
	}
	entries, err := s.store.ListSchemas(ctx, tenant, scratchID)
	if err != nil {
		return domainErrorResult(err), nil
	}
	return jsonResult(map[string]any{"schemas": entries}), nil
}
