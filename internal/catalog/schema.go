package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/ashita-ai/scratchnotebook/internal/domainerr"
)

// staticResolver never resolves a ref; used while a pad's initial cells are
// being written, before any schema can possibly be registered against it.
type staticResolver struct{}

func (staticResolver) ResolveSchema(name string) (map[string]any, bool) { return nil, false }

// schemaTxResolver resolves refs against the schemas table within an
// in-flight transaction, so append_cell/replace_cell see registrations
// made earlier in the same call.
type schemaTxResolver struct {
	ctx                context.Context
	tx                 *sql.Tx
	store              *SQLiteStore
	tenant, scratchID  string
}

func (r schemaTxResolver) ResolveSchema(name string) (map[string]any, bool) {
	var raw string
	err := r.tx.QueryRowContext(r.ctx, `SELECT schema FROM schemas WHERE tenant_id=? AND scratch_id=? AND name=?`, r.tenant, r.scratchID, name).Scan(&raw)
	if err != nil {
		return nil, false
	}
	m := map[string]any{}
	if json.Unmarshal([]byte(raw), &m) != nil {
		return nil, false
	}
	return m, true
}

// plainSchemaResolver is the non-transactional counterpart used by
// scratch_validate, which only reads.
type plainSchemaResolver struct {
	ctx               context.Context
	store             *SQLiteStore
	tenant, scratchID string
}

func (r plainSchemaResolver) ResolveSchema(name string) (map[string]any, bool) {
	var raw string
	err := r.store.db.QueryRowContext(r.ctx, `SELECT schema FROM schemas WHERE tenant_id=? AND scratch_id=? AND name=?`, r.tenant, r.scratchID, name).Scan(&raw)
	if err != nil {
		return nil, false
	}
	m := map[string]any{}
	if json.Unmarshal([]byte(raw), &m) != nil {
		return nil, false
	}
	return m, true
}

func (s *SQLiteStore) UpsertSchema(ctx context.Context, tenant, scratchID, name string, entry SchemaEntry) (SchemaEntry, error) {
	if exists, err := s.padExistsPlain(ctx, tenant, scratchID); err != nil {
		return SchemaEntry{}, err
	} else if !exists {
		return SchemaEntry{}, domainerr.New(domainerr.NotFound, "scratchpad not found")
	}
	if entry.Schema == nil {
		return SchemaEntry{}, domainerr.New(domainerr.ValidationError, "schema payload is not a JSON Schema object")
	}
	if _, ok := entry.Schema["type"]; !ok {
		if _, ok := entry.Schema["$schema"]; !ok {
			if _, ok := entry.Schema["properties"]; !ok {
				return SchemaEntry{}, domainerr.New(domainerr.ValidationError, "schema payload does not structurally resemble a JSON Schema")
			}
		}
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.Name = name
	raw, err := json.Marshal(entry.Schema)
	if err != nil {
		return SchemaEntry{}, domainerr.New(domainerr.ValidationError, "schema payload is not valid JSON")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO schemas (tenant_id, scratch_id, name, id, description, schema) VALUES (?,?,?,?,?,?)
		 ON CONFLICT(tenant_id, scratch_id, name) DO UPDATE SET id=excluded.id, description=excluded.description, schema=excluded.schema`,
		tenant, scratchID, name, entry.ID, entry.Description, string(raw))
	if err != nil {
		return SchemaEntry{}, fmt.Errorf("catalog: upsert schema: %w", err)
	}
	return entry, nil
}

func (s *SQLiteStore) GetSchema(ctx context.Context, tenant, scratchID, name string) (SchemaEntry, error) {
	var id, description, raw string
	err := s.db.QueryRowContext(ctx, `SELECT id, description, schema FROM schemas WHERE tenant_id=? AND scratch_id=? AND name=?`, tenant, scratchID, name).
		Scan(&id, &description, &raw)
	if err == sql.ErrNoRows {
		return SchemaEntry{}, domainerr.New(domainerr.NotFound, "schema not registered")
	}
	if err != nil {
		return SchemaEntry{}, fmt.Errorf("catalog: get schema: %w", err)
	}
	m := map[string]any{}
	_ = json.Unmarshal([]byte(raw), &m)
	return SchemaEntry{ID: id, Name: name, Description: description, Schema: m}, nil
}

func (s *SQLiteStore) ListSchemas(ctx context.Context, tenant, scratchID string) ([]SchemaEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, id, description, schema FROM schemas WHERE tenant_id=? AND scratch_id=? ORDER BY name ASC`, tenant, scratchID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list schemas: %w", err)
	}
	defer rows.Close()
	var out []SchemaEntry
	for rows.Next() {
		var e SchemaEntry
		var raw string
		if err := rows.Scan(&e.Name, &e.ID, &e.Description, &raw); err != nil {
			return nil, err
		}
		e.Schema = map[string]any{}
		_ = json.Unmarshal([]byte(raw), &e.Schema)
		out = append(out, e)
	}
	return out, rows.Err()
}
