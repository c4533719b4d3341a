package mcp

import (
	mcplib "github.com/mark3labs/mcp-go/mcp"

	"context"

	"github.com/ashita-ai/scratchnotebook/internal/catalog"
)

func (s *Server) registerPadTools() {
	// scratch_create — create or reset a scratch notebook.
	s.mcpServer.AddTool(
		mcplib.NewTool("scratch_create",
			mcplib.WithDescription(`Create or reset a scratch notebook: a durable, shared workspace for
accumulating typed notes, code, or structured data across a session, or
across sessions, since pads persist and can be reopened by scratch_id.

Returns the created scratchpad (lightweight: cells without content) and,
if the tenant's capacity limit evicted older pads to make room, the list
of evicted scratch_ids.

metadata is an object; canonical fields are title, description, summary,
namespace, tags — additional keys are stored verbatim. cells is an
optional array of {language, content, validate?, json_schema?, tags?,
metadata?} objects to seed the pad with.

Example: scratch_create(metadata={"title": "Incident response checklist",
"namespace": "proj-omega/", "tags": ["ops"]}, cells=[{"language": "md",
"content": "# Steps"}])`),
			mcplib.WithString("scratch_id",
				mcplib.Description("Supply to reuse a deterministic identifier; omit to auto-generate. Reusing an existing id fully resets that pad."),
			),
		),
		s.gated(s.handleCreate),
	)

	// scratch_read — read a scratch notebook by id.
	s.mcpServer.AddTool(
		mcplib.NewTool("scratch_read",
			mcplib.WithDescription(`Read a scratch notebook by id.

cell_ids (array of strings) restricts to explicit cell UUIDs; tags (array
of strings) returns only cells whose tag set intersects the given values;
namespaces (array of strings) asserts the pad belongs to one of the listed
namespaces (CONFLICT if not); include_metadata (bool, default true) can be
set false when only cell payloads are needed.`),
			mcplib.WithString("scratch_id", mcplib.Required()),
		),
		s.gated(s.handleRead),
	)

	// scratch_list — list scratchpads with lean metadata.
	s.mcpServer.AddTool(
		mcplib.NewTool("scratch_list",
			mcplib.WithDescription(`List scratchpads with lean metadata suitable for navigation: scratch_id,
title, description, namespace, cell_count. Use scratch_read for full
content. Optional filters: namespaces (array of strings), tags (array of
strings).`),
			mcplib.WithNumber("limit", mcplib.Description("Maximum results to return (default 50, max 500)")),
		),
		s.gated(s.handleList),
	)

	// scratch_list_cells — list cells for a scratch notebook without content.
	s.mcpServer.AddTool(
		mcplib.NewTool("scratch_list_cells",
			mcplib.WithDescription(`List cells for a scratch notebook (no content, just metadata) — cheap way
to see structure before fetching content with scratch_read. Optional
filters: cell_ids (array of strings), tags (array of strings).`),
			mcplib.WithString("scratch_id", mcplib.Required()),
		),
		s.gated(s.handleListCells),
	)

	// scratch_append_cell — append a cell to a scratch notebook.
	s.mcpServer.AddTool(
		mcplib.NewTool("scratch_append_cell",
			mcplib.WithDescription(`Append a cell to the specified scratch notebook.

cell is an object: {language, content, validate?, json_schema?, tags?,
metadata?}. Validation is advisory: even if the cell fails a schema check
or contains malformed JSON/YAML, it is still persisted — inspect the
returned validation_results for diagnostics.`),
			mcplib.WithString("scratch_id", mcplib.Required()),
		),
		s.gated(s.handleAppendCell),
	)

	// scratch_replace_cell — replace a cell in a scratch notebook.
	s.mcpServer.AddTool(
		mcplib.NewTool("scratch_replace_cell",
			mcplib.WithDescription(`Replace a cell in the specified scratch notebook.

cell is an object: {language, content, validate?, json_schema?, tags?,
metadata?}. Pass new_index to also move it; remaining cells are
renumbered to stay contiguous.`),
			mcplib.WithString("scratch_id", mcplib.Required()),
			mcplib.WithString("cell_id", mcplib.Required()),
			mcplib.WithNumber("new_index"),
		),
		s.gated(s.handleReplaceCell),
	)

	// scratch_delete — delete a scratch notebook by id.
	s.mcpServer.AddTool(
		mcplib.NewTool("scratch_delete",
			mcplib.WithDescription("Delete a scratch notebook by id, including its cells, schemas and embeddings."),
			mcplib.WithString("scratch_id", mcplib.Required()),
		),
		s.gated(s.handleDelete),
	)

	// scratch_validate — re-run validation for cells already in a pad.
	s.mcpServer.AddTool(
		mcplib.NewTool("scratch_validate",
			mcplib.WithDescription(`Re-run validation for one or more cells already stored in a scratch
notebook, without mutating them. cell_ids (array of strings) selects
which cells; omit it to validate every cell.`),
			mcplib.WithString("scratch_id", mcplib.Required()),
		),
		s.gated(s.handleValidate),
	)

	// scratch_search — semantic search across scratchpads and cells.
	s.mcpServer.AddTool(
		mcplib.NewTool("scratch_search",
			mcplib.WithDescription(`Semantic search across scratchpad and cell content. Returns the embedder
used, so callers can tell debug-hash test embeddings apart from a real
model. Optional filters: namespaces (array of strings), tags (array of
strings).`),
			mcplib.WithString("query", mcplib.Required()),
			mcplib.WithNumber("limit", mcplib.Description("Maximum hits to return (default 10, max 50)")),
		),
		s.gated(s.handleSearch),
	)

	// scratch_list_tags — list scratchpad-level and cell-level tags.
	s.mcpServer.AddTool(
		mcplib.NewTool("scratch_list_tags",
			mcplib.WithDescription(`List scratchpad-level and cell-level tags in use. Optional filter:
namespaces (array of strings).`),
		),
		s.gated(s.handleListTags),
	)

	// scratch_reembed — recompute every embedding for a tenant.
	s.mcpServer.AddTool(
		mcplib.NewTool("scratch_reembed",
			mcplib.WithDescription(`Recompute every stored cell and scratchpad embedding row for the calling
tenant with the embedder currently in use, whatever its stored
embedding_version. Run this
after switching embedding models so scratch_search stops surfacing stale
hits. Returns the number of rows re-embedded.`),
		),
		s.gated(s.handleReembed),
	)
}

func (s *Server) handleCreate(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	ctx, cancel := s.withValidationTimeout(ctx)
	defer cancel()

	tenant := s.tenant(ctx)
	scratchID := req.GetString("scratch_id", "")
	metadata := mapArg(req, "metadata")

	pad := catalog.Scratchpad{ScratchID: scratchID, Metadata: metadata}
	if metadata != nil {
		if ns, ok := metadata["namespace"].(string); ok {
			pad.Namespace = ns
		}
		if tags, ok := metadata["tags"].([]any); ok {
			for _, t := range tags {
				if s, ok := t.(string); ok && s != "" {
					pad.Tags = append(pad.Tags, s)
				}
			}
		}
	}

	if rawCells, ok := req.GetArguments()["cells"].([]any); ok {
		for i, rc := range rawCells {
			m, ok := rc.(map[string]any)
			if !ok {
				continue
			}
			cell := buildCell(m)
			cell.Index = i
			pad.Cells = append(pad.Cells, cell)
		}
	}

	result, err := s.store.CreatePad(ctx, tenant, pad, s.validator, s.embedder)
	if err != nil {
		return domainErrorResult(err), nil
	}
	return jsonResult(map[string]any{
		"scratchpad":          result.Pad.Lean(),
		"evicted_scratchpads": result.EvictedScratchpads,
	}), nil
}

func (s *Server) handleRead(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	tenant := s.tenant(ctx)
	scratchID := req.GetString("scratch_id", "")
	if scratchID == "" {
		return errorResult("scratch_id is required"), nil
	}
	includeMetadata := true
	if v := boolArgPtr(req, "include_metadata"); v != nil {
		includeMetadata = *v
	}
	filter := catalog.ReadFilter{
		CellIDs:         stringSliceArg(req, "cell_ids"),
		Tags:            stringSliceArg(req, "tags"),
		Namespaces:      stringSliceArg(req, "namespaces"),
		IncludeMetadata: includeMetadata,
	}
	pad, err := s.store.ReadPad(ctx, tenant, scratchID, filter)
	if err != nil {
		return domainErrorResult(err), nil
	}
	return jsonResult(map[string]any{"scratchpad": pad}), nil
}

func (s *Server) handleList(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	tenant := s.tenant(ctx)
	filter := catalog.ListFilter{
		Namespaces: stringSliceArg(req, "namespaces"),
		Tags:       stringSliceArg(req, "tags"),
		Limit:      req.GetInt("limit", 50),
	}
	if filter.Limit > 500 {
		filter.Limit = 500
	}
	rows, err := s.store.ListPads(ctx, tenant, filter)
	if err != nil {
		return domainErrorResult(err), nil
	}
	return jsonResult(map[string]any{"scratchpads": rows}), nil
}

func (s *Server) handleListCells(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	tenant := s.tenant(ctx)
	scratchID := req.GetString("scratch_id", "")
	if scratchID == "" {
		return errorResult("scratch_id is required"), nil
	}
	filter := catalog.ReadFilter{
		CellIDs: stringSliceArg(req, "cell_ids"),
		Tags:    stringSliceArg(req, "tags"),
	}
	cells, err := s.store.ListCells(ctx, tenant, scratchID, filter)
	if err != nil {
		return domainErrorResult(err), nil
	}
	return jsonResult(map[string]any{"cells": cells}), nil
}

func (s *Server) handleAppendCell(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	ctx, cancel := s.withValidationTimeout(ctx)
	defer cancel()

	tenant := s.tenant(ctx)
	scratchID := req.GetString("scratch_id", "")
	if scratchID == "" {
		return errorResult("scratch_id is required"), nil
	}
	cellArg := mapArg(req, "cell")
	if cellArg == nil {
		return errorResult("cell is required"), nil
	}
	result, err := s.store.AppendCell(ctx, tenant, scratchID, buildCell(cellArg), s.validator, s.embedder)
	if err != nil {
		return domainErrorResult(err), nil
	}
	return jsonResult(map[string]any{
		"scratchpad":         result.Pad,
		"validation_results": result.Results,
	}), nil
}

func (s *Server) handleReplaceCell(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	ctx, cancel := s.withValidationTimeout(ctx)
	defer cancel()

	tenant := s.tenant(ctx)
	scratchID := req.GetString("scratch_id", "")
	cellID := req.GetString("cell_id", "")
	if scratchID == "" || cellID == "" {
		return errorResult("scratch_id and cell_id are required"), nil
	}
	cellArg := mapArg(req, "cell")
	if cellArg == nil {
		return errorResult("cell is required"), nil
	}
	var newIndex *int
	if raw, ok := req.GetArguments()["new_index"].(float64); ok {
		v := int(raw)
		newIndex = &v
	}
	result, err := s.store.ReplaceCell(ctx, tenant, scratchID, cellID, buildCell(cellArg), newIndex, s.validator, s.embedder)
	if err != nil {
		return domainErrorResult(err), nil
	}
	return jsonResult(map[string]any{
		"scratchpad":         result.Pad,
		"validation_results": result.Results,
	}), nil
}

func (s *Server) handleDelete(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	tenant := s.tenant(ctx)
	scratchID := req.GetString("scratch_id", "")
	if scratchID == "" {
		return errorResult("scratch_id is required"), nil
	}
	deleted, err := s.store.DeletePad(ctx, tenant, scratchID)
	if err != nil {
		return domainErrorResult(err), nil
	}
	return jsonResult(map[string]any{"scratch_id": scratchID, "deleted": deleted}), nil
}

func (s *Server) handleValidate(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	ctx, cancel := s.withValidationTimeout(ctx)
	defer cancel()

	tenant := s.tenant(ctx)
	scratchID := req.GetString("scratch_id", "")
	if scratchID == "" {
		return errorResult("scratch_id is required"), nil
	}
	results, err := s.store.Validate(ctx, tenant, scratchID, stringSliceArg(req, "cell_ids"), s.validator)
	if err != nil {
		return domainErrorResult(err), nil
	}
	return jsonResult(map[string]any{"results": results}), nil
}

func (s *Server) handleSearch(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	tenant := s.tenant(ctx)
	query := req.GetString("query", "")
	if query == "" {
		return errorResult("query is required"), nil
	}
	limit := req.GetInt("limit", 10)
	if limit > 50 {
		limit = 50
	}
	hits, err := s.store.Search(ctx, tenant, s.embedder, query, stringSliceArg(req, "namespaces"), stringSliceArg(req, "tags"), limit)
	if err != nil {
		return domainErrorResult(err), nil
	}
	return jsonResult(map[string]any{"hits": hits, "embedder": s.embedder.Version()}), nil
}

func (s *Server) handleListTags(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	tenant := s.tenant(ctx)
	tags, err := s.store.ListTags(ctx, tenant, stringSliceArg(req, "namespaces"))
	if err != nil {
		return domainErrorResult(err), nil
	}
	return jsonResult(tags), nil
}

func (s *Server) handleReembed(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	tenant := s.tenant(ctx)
	count, err := s.store.Reembed(ctx, tenant, s.embedder)
	if err != nil {
		return domainErrorResult(err), nil
	}
	return jsonResult(map[string]any{"reembedded": count, "embedder": s.embedder.Version()}), nil
}
