package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ashita-ai/scratchnotebook/internal/domainerr"
)

func (s *SQLiteStore) CreateNamespace(ctx context.Context, tenant, name string) error {
	if name == "" {
		return domainerr.New(domainerr.ValidationError, "namespace name must not be empty")
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO namespaces (tenant_id, name, created_at) VALUES (?,?,?)`,
		tenant, name, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		if isUniqueViolation(err) {
			return domainerr.New(domainerr.Conflict, "namespace already exists")
		}
		return fmt.Errorf("catalog: create namespace: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListNamespaces(ctx context.Context, tenant string) ([]Namespace, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, created_at FROM namespaces WHERE tenant_id=? ORDER BY name ASC`, tenant)
	if err != nil {
		return nil, fmt.Errorf("catalog: list namespaces: %w", err)
	}
	defer rows.Close()
	var out []Namespace
	for rows.Next() {
		var n Namespace
		var createdAt string
		if err := rows.Scan(&n.Name, &createdAt); err != nil {
			return nil, err
		}
		n.TenantID = tenant
		n.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, n)
	}
	return out, rows.Err()
}

// RenameNamespace renames a namespace registry row and, when migrate is
// true, cascades the rename to every pad currently in it, all within one
// transaction (spec §8 round-trip: namespace_rename(a→b, migrate=true)
// preserves pad membership counts).
func (s *SQLiteStore) RenameNamespace(ctx context.Context, tenant, from, to string, migrate bool) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("catalog: begin: %w", err)
	}
	defer tx.Rollback()

	var one int
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM namespaces WHERE tenant_id=? AND name=?`, tenant, from).Scan(&one); err == sql.ErrNoRows {
		return 0, domainerr.New(domainerr.NotFound, "namespace not found")
	} else if err != nil {
		return 0, fmt.Errorf("catalog: check namespace: %w", err)
	}
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM namespaces WHERE tenant_id=? AND name=?`, tenant, to).Scan(&one); err == nil {
		return 0, domainerr.New(domainerr.Conflict, "target namespace already exists")
	} else if err != sql.ErrNoRows {
		return 0, fmt.Errorf("catalog: check target namespace: %w", err)
	}

	if !migrate {
		var padCount int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM pads WHERE tenant_id=? AND namespace=?`, tenant, from).Scan(&padCount); err != nil {
			return 0, fmt.Errorf("catalog: count namespace pads: %w", err)
		}
		if padCount > 0 {
			return 0, domainerr.New(domainerr.ValidationError, "namespace has pads; pass migrate=true to move them or empty it first")
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE namespaces SET name=? WHERE tenant_id=? AND name=?`, to, tenant, from); err != nil {
		return 0, fmt.Errorf("catalog: rename namespace: %w", err)
	}
	count := 0
	if migrate {
		res, err := tx.ExecContext(ctx, `UPDATE pads SET namespace=? WHERE tenant_id=? AND namespace=?`, to, tenant, from)
		if err != nil {
			return 0, fmt.Errorf("catalog: cascade rename: %w", err)
		}
		n, _ := res.RowsAffected()
		count = int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("catalog: commit: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) DeleteNamespace(ctx context.Context, tenant, name string, cascade bool) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("catalog: begin: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT scratch_id FROM pads WHERE tenant_id=? AND namespace=?`, tenant, name)
	if err != nil {
		return 0, fmt.Errorf("catalog: list namespace pads: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()

	if len(ids) > 0 && !cascade {
		return 0, domainerr.New(domainerr.Conflict, "namespace is not empty; pass cascade=true to delete its pads")
	}
	for _, id := range ids {
		if err := s.deletePadTx(ctx, tx, tenant, id); err != nil {
			return 0, err
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM namespaces WHERE tenant_id=? AND name=?`, tenant, name); err != nil {
		return 0, fmt.Errorf("catalog: delete namespace: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("catalog: commit: %w", err)
	}
	return len(ids), nil
}
