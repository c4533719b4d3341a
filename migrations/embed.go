// Package migrations embeds SQL migration files for use at runtime.
// Migrations are embedded so they work regardless of working directory.
package migrations

import "embed"

// FS is the embedded migrations filesystem. Postgres and sqlite ship
// separate migration sets since their DDL dialects diverge (vector, array
// and JSON column types, the pgvector extension and its HNSW index);
// internal/catalog picks the right subtree
// by configured backend.
//
//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS
