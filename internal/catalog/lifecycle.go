package catalog

import (
	"context"
	"fmt"
	"time"
)

// EvictExpired deletes every pad in tenant whose last_access_at is older
// than maxAgeSeconds, in per-pad transactions so the sweeper never holds a
// single lock across the whole tenant (spec §5, "MUST NOT hold a global
// lock across tenants").
func (s *SQLiteStore) EvictExpired(ctx context.Context, tenant string, maxAgeSeconds int64) ([]string, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(maxAgeSeconds) * time.Second)
	rows, err := s.db.QueryContext(ctx, `SELECT scratch_id FROM pads WHERE tenant_id=? AND last_access_at<?`, tenant, cutoff.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("catalog: scan expired: %w", err)
	}
	var candidates []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		candidates = append(candidates, id)
	}
	rows.Close()

	var deleted []string
	for _, id := range candidates {
		select {
		case <-ctx.Done():
			return deleted, ctx.Err()
		default:
		}
		ok, err := s.DeletePad(ctx, tenant, id)
		if err != nil {
			return deleted, err
		}
		if ok {
			deleted = append(deleted, id)
		}
	}
	return deleted, nil
}

// Tenants returns the distinct tenant ids with at least one pad.
func (s *SQLiteStore) Tenants(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT tenant_id FROM pads`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list tenants: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// MigrateTenant reassigns every pad, cell, schema, embedding and namespace
// row owned by fromTenant to toTenant in one transaction. Used once, at
// startup, by the first-enable auth migration (spec §4.A).
func (s *SQLiteStore) MigrateTenant(ctx context.Context, fromTenant, toTenant string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("catalog: begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE pads SET tenant_id=? WHERE tenant_id=?`, toTenant, fromTenant)
	if err != nil {
		return 0, fmt.Errorf("catalog: migrate pads: %w", err)
	}
	n, _ := res.RowsAffected()

	for _, table := range []string{"cells", "schemas", "embeddings", "namespaces"} {
		if _, err := tx.ExecContext(ctx, `UPDATE `+table+` SET tenant_id=? WHERE tenant_id=?`, toTenant, fromTenant); err != nil {
			return 0, fmt.Errorf("catalog: migrate %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("catalog: commit: %w", err)
	}
	return int(n), nil
}
