package mcp

import (
	"context"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerNamespaceTools() {
	// scratch_namespace_list — list namespaces registered for the tenant.
	s.mcpServer.AddTool(
		mcplib.NewTool("scratch_namespace_list",
			mcplib.WithDescription("List namespaces registered for the calling tenant, including empty ones (a namespace can exist with zero pads)."),
		),
		s.gated(s.handleNamespaceList),
	)

	// scratch_namespace_create — create an empty namespace.
	s.mcpServer.AddTool(
		mcplib.NewTool("scratch_namespace_create",
			mcplib.WithDescription("Create an empty namespace ahead of assigning pads to it. Creating a namespace that already exists fails with CONFLICT."),
			mcplib.WithString("namespace", mcplib.Required()),
		),
		s.gated(s.handleNamespaceCreate),
	)

	// scratch_namespace_rename — rename a namespace.
	s.mcpServer.AddTool(
		mcplib.NewTool("scratch_namespace_rename",
			mcplib.WithDescription(`Rename a namespace. migrate_scratchpads (bool, default false): if true,
every pad currently in old_namespace is moved to new_namespace; otherwise
the rename is refused (VALIDATION_ERROR) while pads remain in
old_namespace. Renaming onto an existing namespace fails with CONFLICT.`),
			mcplib.WithString("old_namespace", mcplib.Required()),
			mcplib.WithString("new_namespace", mcplib.Required()),
		),
		s.gated(s.handleNamespaceRename),
	)

	// scratch_namespace_delete — delete a namespace.
	s.mcpServer.AddTool(
		mcplib.NewTool("scratch_namespace_delete",
			mcplib.WithDescription(`Delete a namespace. delete_scratchpads (bool, default false): if true,
every pad in the namespace is deleted along with it; otherwise the delete
is refused (CONFLICT) while pads remain in the namespace.`),
			mcplib.WithString("namespace", mcplib.Required()),
		),
		s.gated(s.handleNamespaceDelete),
	)
}

func (s *Server) handleNamespaceList(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	tenant := s.tenant(ctx)
	rows, err := s.store.ListNamespaces(ctx, tenant)
	if err != nil {
		return domainErrorResult(err), nil
	}
	return jsonResult(map[string]any{"namespaces": rows}), nil
}

func (s *Server) handleNamespaceCreate(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	tenant := s.tenant(ctx)
	name := req.GetString("namespace", "")
	if name == "" {
		return errorResult("namespace is required"), nil
	}
	if err := s.store.CreateNamespace(ctx, tenant, name); err != nil {
		return domainErrorResult(err), nil
	}
	return jsonResult(map[string]any{"namespace": name, "created": true}), nil
}

func (s *Server) handleNamespaceRename(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	tenant := s.tenant(ctx)
	from := req.GetString("old_namespace", "")
	to := req.GetString("new_namespace", "")
	if from == "" || to == "" {
		return errorResult("old_namespace and new_namespace are required"), nil
	}
	migrate := boolArg(req, "migrate_scratchpads", false)
	count, err := s.store.RenameNamespace(ctx, tenant, from, to, migrate)
	if err != nil {
		return domainErrorResult(err), nil
	}
	return jsonResult(map[string]any{"namespace": to, "migrated_scratchpads": count}), nil
}

func (s *Server) handleNamespaceDelete(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	tenant := s.tenant(ctx)
	name := req.GetString("namespace", "")
	if name == "" {
		return errorResult("namespace is required"), nil
	}
	cascade := boolArg(req, "delete_scratchpads", false)
	count, err := s.store.DeleteNamespace(ctx, tenant, name, cascade)
	if err != nil {
		return domainErrorResult(err), nil
	}
	return jsonResult(map[string]any{"namespace": name, "deleted_scratchpads": count}), nil
}
