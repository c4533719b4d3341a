package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"github.com/ashita-ai/scratchnotebook/internal/config"
	"github.com/ashita-ai/scratchnotebook/internal/domainerr"
)

// PostgresStore is the multi-process catalog backend: pgx/pgxpool for
// connection management, pgvector for the embeddings column and its HNSW
// index, matching the teacher's internal/storage/pool.go connection
// pattern minus the dedicated LISTEN/NOTIFY connection. The SSE broker is
// fed through the Notifier hook both backends share instead, since a
// notify equivalent to LISTEN/NOTIFY doesn't exist for the sqlite backend.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger

	maxScratchpads int
	maxCellsPerPad int
	maxCellBytes   int
	evictionPolicy config.EvictionPolicy

	notifier Notifier
}

// SetNotifier registers n to receive a ChangeEvent after every committed
// pad mutation. Passing nil (the default) disables notification.
func (s *PostgresStore) SetNotifier(n Notifier) { s.notifier = n }

func (s *PostgresStore) notify(kind, tenant, scratchID string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(ChangeEvent{Kind: kind, TenantID: tenant, ScratchID: scratchID})
}

// OpenPostgres connects to dsn, registers pgvector's codecs on every new
// connection, and applies pending migrations.
func OpenPostgres(ctx context.Context, dsn string, cfg config.Config, logger *slog.Logger) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: parse dsn: %w", err)
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		if err := pgxvector.RegisterTypes(ctx, conn); err != nil {
			logger.Warn("pgvector extension types unavailable", "error", err)
		}
		return nil
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("catalog: connect: %w", err)
	}
	s := &PostgresStore{
		pool: pool, logger: logger,
		maxScratchpads: cfg.MaxScratchpads, maxCellsPerPad: cfg.MaxCellsPerPad,
		maxCellBytes: cfg.MaxCellBytes, evictionPolicy: cfg.EvictionPolicy,
	}
	if err := RunMigrations(ctx, s, "postgres"); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) Close() error { s.pool.Close(); return nil }

// -- migrationRunner --

func (s *PostgresStore) ensureMigrationsTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL DEFAULT now())`)
	return err
}

func (s *PostgresStore) appliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]bool{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out[v] = true
	}
	return out, rows.Err()
}

func (s *PostgresStore) applyMigration(ctx context.Context, version, sqlText string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if _, err := tx.Exec(ctx, sqlText); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// -- core operations --

const padLevelCellID = "00000000-0000-0000-0000-000000000000"

func (s *PostgresStore) CreatePad(ctx context.Context, tenant string, pad Scratchpad, validator Validator, embedder Embedder) (CreateResult, error) {
	if pad.ScratchID == "" {
		pad.ScratchID = uuid.NewString()
	}
	if pad.Namespace == "" {
		pad.Namespace = "default"
	}
	if s.maxCellsPerPad > 0 && len(pad.Cells) > s.maxCellsPerPad {
		return CreateResult{}, domainerr.New(domainerr.CapacityLimitReached, "initial cell count exceeds max_cells_per_pad")
	}
	for _, c := range pad.Cells {
		if s.maxCellBytes > 0 && len([]byte(c.Content)) > s.maxCellBytes {
			return CreateResult{}, domainerr.New(domainerr.CapacityLimitReached, "cell content exceeds max_cell_bytes")
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return CreateResult{}, fmt.Errorf("catalog: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var one int
	err = tx.QueryRow(ctx, `SELECT 1 FROM pads WHERE tenant_id=$1 AND scratch_id=$2`, tenant, pad.ScratchID).Scan(&one)
	existing := err == nil
	if err != nil && err != pgx.ErrNoRows {
		return CreateResult{}, fmt.Errorf("catalog: check pad exists: %w", err)
	}

	var evicted []string
	if !existing {
		var count int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM pads WHERE tenant_id=$1`, tenant).Scan(&count); err != nil {
			return CreateResult{}, fmt.Errorf("catalog: count pads: %w", err)
		}
		if s.maxScratchpads > 0 && count >= s.maxScratchpads {
			switch s.evictionPolicy {
			case config.EvictionFail:
				return CreateResult{}, domainerr.New(domainerr.CapacityLimitReached, "tenant has reached max_scratchpads")
			case config.EvictionDiscard:
				rows, err := tx.Query(ctx, `SELECT scratch_id FROM pads WHERE tenant_id=$1 ORDER BY last_access_at ASC, created_at ASC LIMIT $2`, tenant, count-s.maxScratchpads+1)
				if err != nil {
					return CreateResult{}, fmt.Errorf("catalog: select victims: %w", err)
				}
				var victims []string
				for rows.Next() {
					var id string
					if err := rows.Scan(&id); err != nil {
						rows.Close()
						return CreateResult{}, err
					}
					victims = append(victims, id)
				}
				rows.Close()
				for _, v := range victims {
					if err := s.deletePadTx(ctx, tx, tenant, v); err != nil {
						return CreateResult{}, err
					}
				}
				evicted = victims
			case config.EvictionPreempt:
			}
		}
	} else {
		if err := s.deletePadTx(ctx, tx, tenant, pad.ScratchID); err != nil {
			return CreateResult{}, err
		}
	}

	now := time.Now().UTC()
	pad.TenantID = tenant
	pad.CreatedAt = now
	pad.LastAccessAt = now
	metaJSON, _ := json.Marshal(pad.Metadata)

	if _, err := tx.Exec(ctx,
		`INSERT INTO pads (tenant_id, scratch_id, namespace, tags, metadata, cell_tags_cache, created_at, last_access_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		tenant, pad.ScratchID, pad.Namespace, pad.Tags, metaJSON, []string{}, now, now,
	); err != nil {
		if isPgUniqueViolation(err) {
			return CreateResult{}, domainerr.New(domainerr.InvalidID, "scratch_id already exists")
		}
		return CreateResult{}, fmt.Errorf("catalog: insert pad: %w", err)
	}

	var results []ValidationResult
	var cellTagSets [][]string
	for i := range pad.Cells {
		c := &pad.Cells[i]
		if c.CellID == "" {
			c.CellID = uuid.NewString()
		}
		c.Index = i
		if err := s.insertCellTx(ctx, tx, tenant, pad.ScratchID, *c); err != nil {
			return CreateResult{}, err
		}
		cellTagSets = append(cellTagSets, c.Tags)
		if c.Validate && validator != nil {
			vr, verr := validator.ValidateCell(ctx, *c, pgSchemaResolver{ctx: ctx, tx: tx, tenant: tenant, scratchID: pad.ScratchID})
			if verr != nil {
				return CreateResult{}, verr
			}
			results = append(results, vr)
		}
		if embedder != nil {
			if err := s.embedUnitTx(ctx, tx, embedder, tenant, pad.ScratchID, c.CellID, pad.Namespace, unionTags(c.Tags), c.Language, c.Content); err != nil {
				return CreateResult{}, err
			}
		}
	}
	cellTags := unionTags(cellTagSets...)
	if _, err := tx.Exec(ctx, `UPDATE pads SET cell_tags_cache=$1 WHERE tenant_id=$2 AND scratch_id=$3`, cellTags, tenant, pad.ScratchID); err != nil {
		return CreateResult{}, fmt.Errorf("catalog: update cell_tags_cache: %w", err)
	}
	if embedder != nil {
		if err := s.embedUnitTx(ctx, tx, embedder, tenant, pad.ScratchID, "", pad.Namespace, pad.Tags, "", metadataText(pad.Metadata)); err != nil {
			return CreateResult{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return CreateResult{}, fmt.Errorf("catalog: commit: %w", err)
	}
	pad.CellTags = cellTags
	s.notify("created", tenant, pad.ScratchID)
	return CreateResult{Pad: pad, EvictedScratchpads: evicted}, nil
}

func (s *PostgresStore) insertCellTx(ctx context.Context, tx pgx.Tx, tenant, scratchID string, c Cell) error {
	if s.maxCellBytes > 0 && len([]byte(c.Content)) > s.maxCellBytes {
		return domainerr.New(domainerr.CapacityLimitReached, "cell content exceeds max_cell_bytes")
	}
	metaJSON, _ := json.Marshal(c.Metadata)
	_, err := tx.Exec(ctx,
		`INSERT INTO cells (tenant_id, scratch_id, cell_id, idx, language, content, validate, tags, metadata) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		tenant, scratchID, c.CellID, c.Index, c.Language, c.Content, c.Validate, c.Tags, metaJSON)
	if err != nil {
		if isPgUniqueViolation(err) {
			return domainerr.New(domainerr.InvalidID, "cell_id already exists")
		}
		return fmt.Errorf("catalog: insert cell: %w", err)
	}
	return nil
}

func (s *PostgresStore) deletePadTx(ctx context.Context, tx pgx.Tx, tenant, scratchID string) error {
	for _, table := range []string{"embeddings", "schemas", "cells", "pads"} {
		if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE tenant_id=$1 AND scratch_id=$2`, tenant, scratchID); err != nil {
			return fmt.Errorf("catalog: delete %s: %w", table, err)
		}
	}
	return nil
}

func (s *PostgresStore) embedUnitTx(ctx context.Context, tx pgx.Tx, embedder Embedder, tenant, scratchID, cellID, namespace string, tags []string, language, text string) error {
	if text == "" {
		return nil
	}
	vec, err := embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("catalog: embed: %w", err)
	}
	pgCellID := cellID
	if pgCellID == "" {
		pgCellID = padLevelCellID
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO embeddings (tenant_id, scratch_id, cell_id, namespace, tags, language, vector, embedding_version, updated_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
		 ON CONFLICT (tenant_id, scratch_id, cell_id) DO UPDATE SET namespace=excluded.namespace, tags=excluded.tags, language=excluded.language, vector=excluded.vector, embedding_version=excluded.embedding_version, updated_at=excluded.updated_at`,
		tenant, scratchID, pgCellID, namespace, tags, language, pgvector.NewVector(vec), embedder.Version())
	if err != nil {
		return fmt.Errorf("catalog: upsert embedding: %w", err)
	}
	return nil
}

type pgSchemaResolver struct {
	ctx               context.Context
	tx                pgx.Tx
	tenant, scratchID string
}

func (r pgSchemaResolver) ResolveSchema(name string) (map[string]any, bool) {
	var raw []byte
	err := r.tx.QueryRow(r.ctx, `SELECT schema FROM schemas WHERE tenant_id=$1 AND scratch_id=$2 AND name=$3`, r.tenant, r.scratchID, name).Scan(&raw)
	if err != nil {
		return nil, false
	}
	m := map[string]any{}
	if json.Unmarshal(raw, &m) != nil {
		return nil, false
	}
	return m, true
}

func isPgUniqueViolation(err error) bool {
	return err != nil && contains(err.Error(), "duplicate key value")
}

func (s *PostgresStore) loadPad(ctx context.Context, q pgxQuerier, tenant, scratchID string) (Scratchpad, error) {
	var p Scratchpad
	var metaJSON []byte
	err := q.QueryRow(ctx, `SELECT scratch_id, namespace, tags, metadata, cell_tags_cache, created_at, last_access_at FROM pads WHERE tenant_id=$1 AND scratch_id=$2`, tenant, scratchID).
		Scan(&p.ScratchID, &p.Namespace, &p.Tags, &metaJSON, &p.CellTags, &p.CreatedAt, &p.LastAccessAt)
	if err == pgx.ErrNoRows {
		return Scratchpad{}, domainerr.New(domainerr.NotFound, "scratchpad not found")
	}
	if err != nil {
		return Scratchpad{}, fmt.Errorf("catalog: load pad: %w", err)
	}
	p.TenantID = tenant
	p.Metadata = map[string]any{}
	_ = json.Unmarshal(metaJSON, &p.Metadata)
	return p, nil
}

func (s *PostgresStore) loadCells(ctx context.Context, q pgxQuerier, tenant, scratchID string) ([]Cell, error) {
	rows, err := q.Query(ctx, `SELECT cell_id, idx, language, content, validate, tags, metadata FROM cells WHERE tenant_id=$1 AND scratch_id=$2 ORDER BY idx ASC`, tenant, scratchID)
	if err != nil {
		return nil, fmt.Errorf("catalog: load cells: %w", err)
	}
	defer rows.Close()
	var cells []Cell
	for rows.Next() {
		var c Cell
		var metaJSON []byte
		if err := rows.Scan(&c.CellID, &c.Index, &c.Language, &c.Content, &c.Validate, &c.Tags, &metaJSON); err != nil {
			return nil, err
		}
		c.Metadata = map[string]any{}
		_ = json.Unmarshal(metaJSON, &c.Metadata)
		cells = append(cells, c)
	}
	return cells, rows.Err()
}

// pgxQuerier is satisfied by both *pgxpool.Pool and pgx.Tx, letting reads
// share one implementation whether or not they run inside a transaction.
type pgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (s *PostgresStore) ReadPad(ctx context.Context, tenant, scratchID string, filter ReadFilter) (Scratchpad, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Scratchpad{}, fmt.Errorf("catalog: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	pad, err := s.loadPad(ctx, tx, tenant, scratchID)
	if err != nil {
		return Scratchpad{}, err
	}
	if len(filter.Namespaces) > 0 && !containsString(filter.Namespaces, pad.Namespace) {
		return Scratchpad{}, domainerr.New(domainerr.Conflict, "pad does not belong to the requested namespace")
	}
	cells, err := s.loadCells(ctx, tx, tenant, scratchID)
	if err != nil {
		return Scratchpad{}, err
	}
	pad.Cells = filterCells(cells, filter)
	if !filter.IncludeMetadata {
		pad.Metadata = nil
	}

	now := time.Now().UTC()
	if _, err := tx.Exec(ctx, `UPDATE pads SET last_access_at=$1 WHERE tenant_id=$2 AND scratch_id=$3 AND last_access_at<$1`, now, tenant, scratchID); err != nil {
		return Scratchpad{}, fmt.Errorf("catalog: touch pad: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Scratchpad{}, fmt.Errorf("catalog: commit: %w", err)
	}
	if now.After(pad.LastAccessAt) {
		pad.LastAccessAt = now
	}
	return pad, nil
}

func (s *PostgresStore) ListPads(ctx context.Context, tenant string, filter ListFilter) ([]PadListRow, error) {
	rows, err := s.pool.Query(ctx, `SELECT scratch_id, namespace, metadata, (SELECT COUNT(*) FROM cells c WHERE c.tenant_id=p.tenant_id AND c.scratch_id=p.scratch_id), tags FROM pads p WHERE tenant_id=$1 ORDER BY created_at ASC`, tenant)
	if err != nil {
		return nil, fmt.Errorf("catalog: list pads: %w", err)
	}
	defer rows.Close()
	var out []PadListRow
	for rows.Next() {
		var id, ns string
		var metaJSON []byte
		var cellCount int
		var tags []string
		if err := rows.Scan(&id, &ns, &metaJSON, &cellCount, &tags); err != nil {
			return nil, err
		}
		if len(filter.Namespaces) > 0 && !containsString(filter.Namespaces, ns) {
			continue
		}
		if !tagsIntersect(tags, filter.Tags) {
			continue
		}
		m := map[string]any{}
		_ = json.Unmarshal(metaJSON, &m)
		title, _ := m["title"].(string)
		desc, _ := m["description"].(string)
		out = append(out, PadListRow{ScratchID: id, Title: title, Description: desc, Namespace: ns, CellCount: cellCount})
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListCells(ctx context.Context, tenant, scratchID string, filter ReadFilter) ([]LeanCell, error) {
	var one int
	if err := s.pool.QueryRow(ctx, `SELECT 1 FROM pads WHERE tenant_id=$1 AND scratch_id=$2`, tenant, scratchID).Scan(&one); err == pgx.ErrNoRows {
		return nil, domainerr.New(domainerr.NotFound, "scratchpad not found")
	} else if err != nil {
		return nil, fmt.Errorf("catalog: check pad: %w", err)
	}
	cells, err := s.loadCells(ctx, s.pool, tenant, scratchID)
	if err != nil {
		return nil, err
	}
	cells = filterCells(cells, filter)
	out := make([]LeanCell, len(cells))
	for i, c := range cells {
		out[i] = c.Lean()
	}
	return out, nil
}

func (s *PostgresStore) AppendCell(ctx context.Context, tenant, scratchID string, cell Cell, validator Validator, embedder Embedder) (MutateResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return MutateResult{}, fmt.Errorf("catalog: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	pad, err := s.loadPad(ctx, tx, tenant, scratchID)
	if err != nil {
		return MutateResult{}, err
	}
	cells, err := s.loadCells(ctx, tx, tenant, scratchID)
	if err != nil {
		return MutateResult{}, err
	}
	if s.maxCellsPerPad > 0 && len(cells) >= s.maxCellsPerPad {
		return MutateResult{}, domainerr.New(domainerr.CapacityLimitReached, "pad has reached max_cells_per_pad")
	}
	if cell.CellID == "" {
		cell.CellID = uuid.NewString()
	}
	cell.Index = len(cells)
	if err := s.insertCellTx(ctx, tx, tenant, scratchID, cell); err != nil {
		return MutateResult{}, err
	}
	cells = append(cells, cell)

	var results []ValidationResult
	if cell.Validate && validator != nil {
		vr, verr := validator.ValidateCell(ctx, cell, pgSchemaResolver{ctx: ctx, tx: tx, tenant: tenant, scratchID: scratchID})
		if verr != nil {
			return MutateResult{}, verr
		}
		results = append(results, vr)
	}
	if embedder != nil {
		if err := s.embedUnitTx(ctx, tx, embedder, tenant, scratchID, cell.CellID, pad.Namespace, unionTags(cell.Tags), cell.Language, cell.Content); err != nil {
			return MutateResult{}, err
		}
	}
	cellTags := unionTagsOf(cells)
	now := time.Now().UTC()
	if _, err := tx.Exec(ctx, `UPDATE pads SET cell_tags_cache=$1, last_access_at=$2 WHERE tenant_id=$3 AND scratch_id=$4`, cellTags, now, tenant, scratchID); err != nil {
		return MutateResult{}, fmt.Errorf("catalog: update pad: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return MutateResult{}, fmt.Errorf("catalog: commit: %w", err)
	}
	pad.Cells = cells
	pad.CellTags = cellTags
	pad.LastAccessAt = now
	s.notify("appended", tenant, scratchID)
	return MutateResult{Pad: pad.Lean(), Results: results}, nil
}

func (s *PostgresStore) ReplaceCell(ctx context.Context, tenant, scratchID, cellID string, newCell Cell, newIndex *int, validator Validator, embedder Embedder) (MutateResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return MutateResult{}, fmt.Errorf("catalog: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	pad, err := s.loadPad(ctx, tx, tenant, scratchID)
	if err != nil {
		return MutateResult{}, err
	}
	cells, err := s.loadCells(ctx, tx, tenant, scratchID)
	if err != nil {
		return MutateResult{}, err
	}
	pos := -1
	for i, c := range cells {
		if c.CellID == cellID {
			pos = i
			break
		}
	}
	if pos < 0 {
		return MutateResult{}, domainerr.New(domainerr.InvalidID, "cell_id not found in pad")
	}
	newCell.CellID = cellID
	cells = append(cells[:pos], cells[pos+1:]...)
	target := pos
	if newIndex != nil {
		target = *newIndex
	}
	if target < 0 {
		target = 0
	}
	if target > len(cells) {
		target = len(cells)
	}
	cells = append(cells[:target], append([]Cell{newCell}, cells[target:]...)...)
	for i := range cells {
		cells[i].Index = i
	}

	if _, err := tx.Exec(ctx, `DELETE FROM cells WHERE tenant_id=$1 AND scratch_id=$2`, tenant, scratchID); err != nil {
		return MutateResult{}, fmt.Errorf("catalog: clear cells: %w", err)
	}
	for _, c := range cells {
		if err := s.insertCellTx(ctx, tx, tenant, scratchID, c); err != nil {
			return MutateResult{}, err
		}
	}
	var results []ValidationResult
	if newCell.Validate && validator != nil {
		vr, verr := validator.ValidateCell(ctx, newCell, pgSchemaResolver{ctx: ctx, tx: tx, tenant: tenant, scratchID: scratchID})
		if verr != nil {
			return MutateResult{}, verr
		}
		results = append(results, vr)
	}
	if embedder != nil {
		pgCellID := cellID
		if _, err := tx.Exec(ctx, `DELETE FROM embeddings WHERE tenant_id=$1 AND scratch_id=$2 AND cell_id=$3`, tenant, scratchID, pgCellID); err != nil {
			return MutateResult{}, fmt.Errorf("catalog: clear embedding: %w", err)
		}
		if err := s.embedUnitTx(ctx, tx, embedder, tenant, scratchID, cellID, pad.Namespace, unionTags(newCell.Tags), newCell.Language, newCell.Content); err != nil {
			return MutateResult{}, err
		}
	}
	cellTags := unionTagsOf(cells)
	now := time.Now().UTC()
	if _, err := tx.Exec(ctx, `UPDATE pads SET cell_tags_cache=$1, last_access_at=$2 WHERE tenant_id=$3 AND scratch_id=$4`, cellTags, now, tenant, scratchID); err != nil {
		return MutateResult{}, fmt.Errorf("catalog: update pad: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return MutateResult{}, fmt.Errorf("catalog: commit: %w", err)
	}
	pad.Cells = cells
	pad.CellTags = cellTags
	pad.LastAccessAt = now
	s.notify("replaced", tenant, scratchID)
	return MutateResult{Pad: pad.Lean(), Results: results}, nil
}

func (s *PostgresStore) DeletePad(ctx context.Context, tenant, scratchID string) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("catalog: begin: %w", err)
	}
	defer tx.Rollback(ctx)
	var one int
	err = tx.QueryRow(ctx, `SELECT 1 FROM pads WHERE tenant_id=$1 AND scratch_id=$2`, tenant, scratchID).Scan(&one)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("catalog: check pad: %w", err)
	}
	if err := s.deletePadTx(ctx, tx, tenant, scratchID); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("catalog: commit: %w", err)
	}
	s.notify("deleted", tenant, scratchID)
	return true, nil
}

func (s *PostgresStore) ListTags(ctx context.Context, tenant string, namespaces []string) (TagListing, error) {
	rows, err := s.pool.Query(ctx, `SELECT namespace, tags, cell_tags_cache FROM pads WHERE tenant_id=$1`, tenant)
	if err != nil {
		return TagListing{}, fmt.Errorf("catalog: list tags: %w", err)
	}
	defer rows.Close()
	var padTagSets, cellTagSets [][]string
	for rows.Next() {
		var ns string
		var padTags, cellTags []string
		if err := rows.Scan(&ns, &padTags, &cellTags); err != nil {
			return TagListing{}, err
		}
		if len(namespaces) > 0 && !containsString(namespaces, ns) {
			continue
		}
		padTagSets = append(padTagSets, padTags)
		cellTagSets = append(cellTagSets, cellTags)
	}
	return TagListing{ScratchpadTags: unionTags(padTagSets...), CellTags: unionTags(cellTagSets...), NamespaceFilter: namespaces}, rows.Err()
}

func (s *PostgresStore) Validate(ctx context.Context, tenant, scratchID string, cellIDs []string, validator Validator) ([]ValidationResult, error) {
	var one int
	if err := s.pool.QueryRow(ctx, `SELECT 1 FROM pads WHERE tenant_id=$1 AND scratch_id=$2`, tenant, scratchID).Scan(&one); err == pgx.ErrNoRows {
		return nil, domainerr.New(domainerr.NotFound, "scratchpad not found")
	} else if err != nil {
		return nil, fmt.Errorf("catalog: check pad: %w", err)
	}
	cells, err := s.loadCells(ctx, s.pool, tenant, scratchID)
	if err != nil {
		return nil, err
	}
	resolver := pgPlainSchemaResolver{ctx: ctx, pool: s.pool, tenant: tenant, scratchID: scratchID}
	var out []ValidationResult
	for _, c := range cells {
		if len(cellIDs) > 0 && !containsString(cellIDs, c.CellID) {
			continue
		}
		vr, err := validator.ValidateCell(ctx, c, resolver)
		if err != nil {
			return nil, err
		}
		out = append(out, vr)
	}
	return out, nil
}

type pgPlainSchemaResolver struct {
	ctx               context.Context
	pool              *pgxpool.Pool
	tenant, scratchID string
}

func (r pgPlainSchemaResolver) ResolveSchema(name string) (map[string]any, bool) {
	var raw []byte
	err := r.pool.QueryRow(r.ctx, `SELECT schema FROM schemas WHERE tenant_id=$1 AND scratch_id=$2 AND name=$3`, r.tenant, r.scratchID, name).Scan(&raw)
	if err != nil {
		return nil, false
	}
	m := map[string]any{}
	if json.Unmarshal(raw, &m) != nil {
		return nil, false
	}
	return m, true
}

// Search ranks by cosine similarity from pgvector's cosine-distance
// operator, scaled by staleScorePenalty for rows stored under another
// embedding_version; the ORDER BY is on that computed score, not on the raw
// distance. Namespace/tag predicates sit in the WHERE clause so they apply
// before the LIMIT truncates (spec §4.E).
func (s *PostgresStore) Search(ctx context.Context, tenant string, embedder Embedder, queryText string, namespaces, tags []string, limit int) ([]SearchHit, error) {
	queryVec, err := embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("catalog: embed query: %w", err)
	}
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx,
		`SELECT scratch_id, cell_id, namespace, tags, embedding_version,
		        (1 - (vector <=> $1)) * (CASE WHEN embedding_version = $6 THEN 1.0 ELSE $7::real END) AS score
		 FROM embeddings
		 WHERE tenant_id=$2
		   AND ($3::text[] IS NULL OR namespace = ANY($3))
		   AND ($4::text[] IS NULL OR tags && $4)
		 ORDER BY score DESC, scratch_id ASC, cell_id ASC
		 LIMIT $5`,
		pgvector.NewVector(queryVec), tenant, nullableStrSlice(namespaces), nullableStrSlice(tags), limit,
		embedder.Version(), staleScorePenalty,
	)
	if err != nil {
		return nil, fmt.Errorf("catalog: search: %w", err)
	}
	defer rows.Close()
	var out []SearchHit
	for rows.Next() {
		var scratchID, cellID, namespace, rowVersion string
		var rowTags []string
		var score float32
		if err := rows.Scan(&scratchID, &cellID, &namespace, &rowTags, &rowVersion, &score); err != nil {
			return nil, err
		}
		hit := SearchHit{
			ScratchID: scratchID, TenantID: tenant, Namespace: namespace, Tags: rowTags,
			Score: score, EmbeddingVersion: rowVersion, Stale: rowVersion != embedder.Version(),
		}
		if cellID != padLevelCellID {
			hit.CellID = cellID
			hit.Snippet, _ = s.cellSnippet(ctx, tenant, scratchID, cellID)
		}
		out = append(out, hit)
	}
	return out, rows.Err()
}

func nullableStrSlice(ss []string) []string {
	if len(ss) == 0 {
		return nil
	}
	return ss
}

func (s *PostgresStore) cellSnippet(ctx context.Context, tenant, scratchID, cellID string) (string, error) {
	var content string
	err := s.pool.QueryRow(ctx, `SELECT content FROM cells WHERE tenant_id=$1 AND scratch_id=$2 AND cell_id=$3`, tenant, scratchID, cellID).Scan(&content)
	if err != nil {
		return "", err
	}
	const maxSnippet = 200
	if len(content) > maxSnippet {
		return content[:maxSnippet], nil
	}
	return content, nil
}

func (s *PostgresStore) Reembed(ctx context.Context, tenant string, embedder Embedder) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("catalog: begin: %w", err)
	}
	defer tx.Rollback(ctx)
	rows, err := tx.Query(ctx, `SELECT scratch_id, cell_id, namespace, tags, language FROM embeddings WHERE tenant_id=$1`, tenant)
	if err != nil {
		return 0, fmt.Errorf("catalog: scan embeddings: %w", err)
	}
	type unit struct {
		scratchID, cellID, namespace, language string
		tags                                    []string
	}
	var units []unit
	for rows.Next() {
		var u unit
		if err := rows.Scan(&u.scratchID, &u.cellID, &u.namespace, &u.tags, &u.language); err != nil {
			rows.Close()
			return 0, err
		}
		units = append(units, u)
	}
	rows.Close()

	n := 0
	for _, u := range units {
		var text string
		if u.cellID == padLevelCellID {
			var metaJSON []byte
			if err := tx.QueryRow(ctx, `SELECT metadata FROM pads WHERE tenant_id=$1 AND scratch_id=$2`, tenant, u.scratchID).Scan(&metaJSON); err != nil {
				continue
			}
			m := map[string]any{}
			_ = json.Unmarshal(metaJSON, &m)
			text = metadataText(m)
		} else {
			if err := tx.QueryRow(ctx, `SELECT content FROM cells WHERE tenant_id=$1 AND scratch_id=$2 AND cell_id=$3`, tenant, u.scratchID, u.cellID).Scan(&text); err != nil {
				continue
			}
		}
		cellID := u.cellID
		if cellID == padLevelCellID {
			cellID = ""
		}
		if err := s.embedUnitTx(ctx, tx, embedder, tenant, u.scratchID, cellID, u.namespace, u.tags, u.language, text); err != nil {
			return 0, err
		}
		n++
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("catalog: commit: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) EvictExpired(ctx context.Context, tenant string, maxAgeSeconds int64) ([]string, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(maxAgeSeconds) * time.Second)
	rows, err := s.pool.Query(ctx, `SELECT scratch_id FROM pads WHERE tenant_id=$1 AND last_access_at<$2`, tenant, cutoff)
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

func (s *PostgresStore) Tenants(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT tenant_id FROM pads`)
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

func (s *PostgresStore) MigrateTenant(ctx context.Context, fromTenant, toTenant string) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("catalog: begin: %w", err)
	}
	defer tx.Rollback(ctx)
	tag, err := tx.Exec(ctx, `UPDATE pads SET tenant_id=$1 WHERE tenant_id=$2`, toTenant, fromTenant)
	if err != nil {
		return 0, fmt.Errorf("catalog: migrate pads: %w", err)
	}
	for _, table := range []string{"cells", "schemas", "embeddings", "namespaces"} {
		if _, err := tx.Exec(ctx, `UPDATE `+table+` SET tenant_id=$1 WHERE tenant_id=$2`, toTenant, fromTenant); err != nil {
			return 0, fmt.Errorf("catalog: migrate %s: %w", table, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("catalog: commit: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) CreateNamespace(ctx context.Context, tenant, name string) error {
	if name == "" {
		return domainerr.New(domainerr.ValidationError, "namespace name must not be empty")
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO namespaces (tenant_id, name) VALUES ($1,$2)`, tenant, name)
	if err != nil {
		if isPgUniqueViolation(err) {
			return domainerr.New(domainerr.Conflict, "namespace already exists")
		}
		return fmt.Errorf("catalog: create namespace: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListNamespaces(ctx context.Context, tenant string) ([]Namespace, error) {
	rows, err := s.pool.Query(ctx, `SELECT name, created_at FROM namespaces WHERE tenant_id=$1 ORDER BY name ASC`, tenant)
	if err != nil {
		return nil, fmt.Errorf("catalog: list namespaces: %w", err)
	}
	defer rows.Close()
	var out []Namespace
	for rows.Next() {
		var n Namespace
		if err := rows.Scan(&n.Name, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.TenantID = tenant
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *PostgresStore) RenameNamespace(ctx context.Context, tenant, from, to string, migrate bool) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("catalog: begin: %w", err)
	}
	defer tx.Rollback(ctx)
	var one int
	if err := tx.QueryRow(ctx, `SELECT 1 FROM namespaces WHERE tenant_id=$1 AND name=$2`, tenant, from).Scan(&one); err == pgx.ErrNoRows {
		return 0, domainerr.New(domainerr.NotFound, "namespace not found")
	} else if err != nil {
		return 0, fmt.Errorf("catalog: check namespace: %w", err)
	}
	if err := tx.QueryRow(ctx, `SELECT 1 FROM namespaces WHERE tenant_id=$1 AND name=$2`, tenant, to).Scan(&one); err == nil {
		return 0, domainerr.New(domainerr.Conflict, "target namespace already exists")
	} else if err != pgx.ErrNoRows {
		return 0, fmt.Errorf("catalog: check target: %w", err)
	}
	if !migrate {
		var padCount int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM pads WHERE tenant_id=$1 AND namespace=$2`, tenant, from).Scan(&padCount); err != nil {
			return 0, fmt.Errorf("catalog: count namespace pads: %w", err)
		}
		if padCount > 0 {
			return 0, domainerr.New(domainerr.ValidationError, "namespace has pads; pass migrate=true to move them or empty it first")
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE namespaces SET name=$1 WHERE tenant_id=$2 AND name=$3`, to, tenant, from); err != nil {
		return 0, fmt.Errorf("catalog: rename namespace: %w", err)
	}
	count := 0
	if migrate {
		tag, err := tx.Exec(ctx, `UPDATE pads SET namespace=$1 WHERE tenant_id=$2 AND namespace=$3`, to, tenant, from)
		if err != nil {
			return 0, fmt.Errorf("catalog: cascade rename: %w", err)
		}
		count = int(tag.RowsAffected())
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("catalog: commit: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) DeleteNamespace(ctx context.Context, tenant, name string, cascade bool) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("catalog: begin: %w", err)
	}
	defer tx.Rollback(ctx)
	rows, err := tx.Query(ctx, `SELECT scratch_id FROM pads WHERE tenant_id=$1 AND namespace=$2`, tenant, name)
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
	if _, err := tx.Exec(ctx, `DELETE FROM namespaces WHERE tenant_id=$1 AND name=$2`, tenant, name); err != nil {
		return 0, fmt.Errorf("catalog: delete namespace: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("catalog: commit: %w", err)
	}
	return len(ids), nil
}

func (s *PostgresStore) UpsertSchema(ctx context.Context, tenant, scratchID, name string, entry SchemaEntry) (SchemaEntry, error) {
	var one int
	if err := s.pool.QueryRow(ctx, `SELECT 1 FROM pads WHERE tenant_id=$1 AND scratch_id=$2`, tenant, scratchID).Scan(&one); err == pgx.ErrNoRows {
		return SchemaEntry{}, domainerr.New(domainerr.NotFound, "scratchpad not found")
	} else if err != nil {
		return SchemaEntry{}, fmt.Errorf("catalog: check pad: %w", err)
	}
	if entry.Schema == nil {
		return SchemaEntry{}, domainerr.New(domainerr.ValidationError, "schema payload is not a JSON Schema object")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.Name = name
	raw, err := json.Marshal(entry.Schema)
	if err != nil {
		return SchemaEntry{}, domainerr.New(domainerr.ValidationError, "schema payload is not valid JSON")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO schemas (tenant_id, scratch_id, name, id, description, schema) VALUES ($1,$2,$3,$4,$5,$6)
		 ON CONFLICT (tenant_id, scratch_id, name) DO UPDATE SET id=excluded.id, description=excluded.description, schema=excluded.schema`,
		tenant, scratchID, name, entry.ID, entry.Description, raw)
	if err != nil {
		return SchemaEntry{}, fmt.Errorf("catalog: upsert schema: %w", err)
	}
	return entry, nil
}

func (s *PostgresStore) GetSchema(ctx context.Context, tenant, scratchID, name string) (SchemaEntry, error) {
	var id, description string
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT id, description, schema FROM schemas WHERE tenant_id=$1 AND scratch_id=$2 AND name=$3`, tenant, scratchID, name).Scan(&id, &description, &raw)
	if err == pgx.ErrNoRows {
		return SchemaEntry{}, domainerr.New(domainerr.NotFound, "schema not registered")
	}
	if err != nil {
		return SchemaEntry{}, fmt.Errorf("catalog: get schema: %w", err)
	}
	m := map[string]any{}
	_ = json.Unmarshal(raw, &m)
	return SchemaEntry{ID: id, Name: name, Description: description, Schema: m}, nil
}

func (s *PostgresStore) ListSchemas(ctx context.Context, tenant, scratchID string) ([]SchemaEntry, error) {
	rows, err := s.pool.Query(ctx, `SELECT name, id, description, schema FROM schemas WHERE tenant_id=$1 AND scratch_id=$2 ORDER BY name ASC`, tenant, scratchID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list schemas: %w", err)
	}
	defer rows.Close()
	var out []SchemaEntry
	for rows.Next() {
		var e SchemaEntry
		var raw []byte
		if err := rows.Scan(&e.Name, &e.ID, &e.Description, &raw); err != nil {
			return nil, err
		}
		e.Schema = map[string]any{}
		_ = json.Unmarshal(raw, &e.Schema)
		out = append(out, e)
	}
	return out, rows.Err()
}

var _ Store = (*PostgresStore)(nil)
var _ Store = (*SQLiteStore)(nil)
