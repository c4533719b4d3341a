package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"

	"github.com/ashita-ai/scratchnotebook/internal/config"
	"github.com/ashita-ai/scratchnotebook/internal/domainerr"
)

// SQLiteStore is the embedded, single-binary catalog backend. It brute-
// force scans embeddings for cosine similarity instead of an ANN index —
// acceptable at the scale a single-process deployment serves, and it lets
// the whole service run with zero external dependencies.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger

	maxScratchpads int
	maxCellsPerPad int
	maxCellBytes   int
	evictionPolicy config.EvictionPolicy

	notifier Notifier
}

// SetNotifier registers n to receive a ChangeEvent after every committed
// pad mutation. Passing nil (the default) disables notification.
func (s *SQLiteStore) SetNotifier(n Notifier) { s.notifier = n }

func (s *SQLiteStore) notify(kind, tenant, scratchID string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(ChangeEvent{Kind: kind, TenantID: tenant, ScratchID: scratchID})
}

// OpenSQLite opens (creating if absent) the sqlite catalog file at path and
// applies pending migrations.
func OpenSQLite(ctx context.Context, path string, cfg config.Config, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("catalog: open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; one conn avoids SQLITE_BUSY storms.

	s := &SQLiteStore{
		db:             db,
		logger:         logger,
		maxScratchpads: cfg.MaxScratchpads,
		maxCellsPerPad: cfg.MaxCellsPerPad,
		maxCellBytes:   cfg.MaxCellBytes,
		evictionPolicy: cfg.EvictionPolicy,
	}
	if err := RunMigrations(ctx, s, "sqlite"); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// -- migrationRunner --

func (s *SQLiteStore) ensureMigrationsTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY, applied_at TEXT NOT NULL)`)
	return err
}

func (s *SQLiteStore) appliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
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

func (s *SQLiteStore) applyMigration(ctx context.Context, version, sqlText string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, sqlText); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`, version, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return err
	}
	return tx.Commit()
}

// -- core operations --

func (s *SQLiteStore) CreatePad(ctx context.Context, tenant string, pad Scratchpad, validator Validator, embedder Embedder) (CreateResult, error) {
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return CreateResult{}, fmt.Errorf("catalog: begin: %w", err)
	}
	defer tx.Rollback()

	existing, err := s.padExists(ctx, tx, tenant, pad.ScratchID)
	if err != nil {
		return CreateResult{}, err
	}

	var evicted []string
	if !existing {
		count, err := s.countPads(ctx, tx, tenant)
		if err != nil {
			return CreateResult{}, err
		}
		if s.maxScratchpads > 0 && count >= s.maxScratchpads {
			switch s.evictionPolicy {
			case config.EvictionFail:
				return CreateResult{}, domainerr.New(domainerr.CapacityLimitReached, "tenant has reached max_scratchpads")
			case config.EvictionDiscard:
				victims, err := s.selectLRUVictims(ctx, tx, tenant, count-s.maxScratchpads+1)
				if err != nil {
					return CreateResult{}, err
				}
				for _, v := range victims {
					if err := s.deletePadTx(ctx, tx, tenant, v); err != nil {
						return CreateResult{}, err
					}
				}
				evicted = victims
			case config.EvictionPreempt:
				// capacity enforcement at creation is disabled under preempt;
				// only the sweeper reclaims space.
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

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO pads (tenant_id, scratch_id, namespace, tags, metadata, cell_tags_cache, created_at, last_access_at) VALUES (?,?,?,?,?,?,?,?)`,
		tenant, pad.ScratchID, pad.Namespace, encodeStrings(pad.Tags), encodeMap(pad.Metadata), encodeStrings(nil), now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	); err != nil {
		if isUniqueViolation(err) {
			return CreateResult{}, domainerr.New(domainerr.InvalidID, "scratch_id already exists")
		}
		return CreateResult{}, fmt.Errorf("catalog: insert pad: %w", err)
	}

	var results []ValidationResult
	cellTagSets := make([][]string, 0, len(pad.Cells))
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
			vr, verr := validator.ValidateCell(ctx, *c, staticResolver{})
			if verr != nil {
				return CreateResult{}, verr
			}
			results = append(results, vr)
		}
		if embedder != nil {
			if err := s.embedUnit(ctx, tx, embedder, tenant, pad.ScratchID, c.CellID, pad.Namespace, unionTags(c.Tags), c.Language, c.Content); err != nil {
				return CreateResult{}, err
			}
		}
	}
	cellTags := unionTags(cellTagSets...)
	if _, err := tx.ExecContext(ctx, `UPDATE pads SET cell_tags_cache=? WHERE tenant_id=? AND scratch_id=?`, encodeStrings(cellTags), tenant, pad.ScratchID); err != nil {
		return CreateResult{}, fmt.Errorf("catalog: update cell_tags_cache: %w", err)
	}
	if embedder != nil {
		if err := s.embedUnit(ctx, tx, embedder, tenant, pad.ScratchID, "", pad.Namespace, pad.Tags, "", metadataText(pad.Metadata)); err != nil {
			return CreateResult{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return CreateResult{}, fmt.Errorf("catalog: commit: %w", err)
	}
	pad.CellTags = cellTags
	s.notify("created", tenant, pad.ScratchID)
	return CreateResult{Pad: pad, EvictedScratchpads: evicted}, nil
}

func metadataText(m map[string]any) string {
	var text string
	for _, k := range []string{"title", "description", "summary"} {
		if v, ok := m[k].(string); ok {
			text += v + " "
		}
	}
	return text
}

func (s *SQLiteStore) padExists(ctx context.Context, tx *sql.Tx, tenant, scratchID string) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM pads WHERE tenant_id=? AND scratch_id=?`, tenant, scratchID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("catalog: check pad exists: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) countPads(ctx context.Context, tx *sql.Tx, tenant string) (int, error) {
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM pads WHERE tenant_id=?`, tenant).Scan(&n); err != nil {
		return 0, fmt.Errorf("catalog: count pads: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) selectLRUVictims(ctx context.Context, tx *sql.Tx, tenant string, n int) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT scratch_id FROM pads WHERE tenant_id=? ORDER BY last_access_at ASC, created_at ASC LIMIT ?`, tenant, n)
	if err != nil {
		return nil, fmt.Errorf("catalog: select lru victims: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) insertCellTx(ctx context.Context, tx *sql.Tx, tenant, scratchID string, c Cell) error {
	if s.maxCellBytes > 0 && len([]byte(c.Content)) > s.maxCellBytes {
		return domainerr.New(domainerr.CapacityLimitReached, "cell content exceeds max_cell_bytes")
	}
	validateInt := 0
	if c.Validate {
		validateInt = 1
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO cells (tenant_id, scratch_id, cell_id, idx, language, content, validate, tags, metadata) VALUES (?,?,?,?,?,?,?,?,?)`,
		tenant, scratchID, c.CellID, c.Index, c.Language, c.Content, validateInt, encodeStrings(c.Tags), encodeMap(c.Metadata),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domainerr.New(domainerr.InvalidID, "cell_id already exists")
		}
		return fmt.Errorf("catalog: insert cell: %w", err)
	}
	return nil
}

func (s *SQLiteStore) deletePadTx(ctx context.Context, tx *sql.Tx, tenant, scratchID string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM embeddings WHERE tenant_id=? AND scratch_id=?`, tenant, scratchID); err != nil {
		return fmt.Errorf("catalog: delete embeddings: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM schemas WHERE tenant_id=? AND scratch_id=?`, tenant, scratchID); err != nil {
		return fmt.Errorf("catalog: delete schemas: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM cells WHERE tenant_id=? AND scratch_id=?`, tenant, scratchID); err != nil {
		return fmt.Errorf("catalog: delete cells: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM pads WHERE tenant_id=? AND scratch_id=?`, tenant, scratchID); err != nil {
		return fmt.Errorf("catalog: delete pad: %w", err)
	}
	return nil
}

func (s *SQLiteStore) touchPad(ctx context.Context, tx *sql.Tx, tenant, scratchID string, at time.Time) error {
	_, err := tx.ExecContext(ctx, `UPDATE pads SET last_access_at=? WHERE tenant_id=? AND scratch_id=? AND last_access_at<?`,
		at.Format(time.RFC3339Nano), tenant, scratchID, at.Format(time.RFC3339Nano))
	return err
}

func (s *SQLiteStore) ReadPad(ctx context.Context, tenant, scratchID string, filter ReadFilter) (Scratchpad, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Scratchpad{}, fmt.Errorf("catalog: begin: %w", err)
	}
	defer tx.Rollback()

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
	cells = filterCells(cells, filter)
	pad.Cells = cells
	if !filter.IncludeMetadata {
		pad.Metadata = nil
	}

	now := time.Now().UTC()
	if err := s.touchPad(ctx, tx, tenant, scratchID, now); err != nil {
		return Scratchpad{}, fmt.Errorf("catalog: touch pad: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Scratchpad{}, fmt.Errorf("catalog: commit: %w", err)
	}
	if now.After(pad.LastAccessAt) {
		pad.LastAccessAt = now
	}
	return pad, nil
}

func filterCells(cells []Cell, filter ReadFilter) []Cell {
	if len(filter.CellIDs) == 0 && len(filter.Tags) == 0 {
		return cells
	}
	var out []Cell
	for _, c := range cells {
		if len(filter.CellIDs) > 0 && !containsString(filter.CellIDs, c.CellID) {
			continue
		}
		if len(filter.Tags) > 0 && !tagsIntersect(c.Tags, filter.Tags) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (s *SQLiteStore) loadPad(ctx context.Context, tx *sql.Tx, tenant, scratchID string) (Scratchpad, error) {
	var p Scratchpad
	var tags, metadata, cellTags, createdAt, lastAccessAt string
	err := tx.QueryRowContext(ctx,
		`SELECT scratch_id, namespace, tags, metadata, cell_tags_cache, created_at, last_access_at FROM pads WHERE tenant_id=? AND scratch_id=?`,
		tenant, scratchID,
	).Scan(&p.ScratchID, &p.Namespace, &tags, &metadata, &cellTags, &createdAt, &lastAccessAt)
	if err == sql.ErrNoRows {
		return Scratchpad{}, domainerr.New(domainerr.NotFound, "scratchpad not found")
	}
	if err != nil {
		return Scratchpad{}, fmt.Errorf("catalog: load pad: %w", err)
	}
	p.TenantID = tenant
	p.Tags = decodeStrings(tags)
	p.Metadata = decodeMap(metadata)
	p.CellTags = decodeStrings(cellTags)
	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	p.LastAccessAt, _ = time.Parse(time.RFC3339Nano, lastAccessAt)
	return p, nil
}

func (s *SQLiteStore) loadCells(ctx context.Context, tx *sql.Tx, tenant, scratchID string) ([]Cell, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT cell_id, idx, language, content, validate, tags, metadata FROM cells WHERE tenant_id=? AND scratch_id=? ORDER BY idx ASC`,
		tenant, scratchID,
	)
	if err != nil {
		return nil, fmt.Errorf("catalog: load cells: %w", err)
	}
	defer rows.Close()
	var cells []Cell
	for rows.Next() {
		var c Cell
		var validateInt int
		var tags, metadata string
		if err := rows.Scan(&c.CellID, &c.Index, &c.Language, &c.Content, &validateInt, &tags, &metadata); err != nil {
			return nil, err
		}
		c.Validate = validateInt != 0
		c.Tags = decodeStrings(tags)
		c.Metadata = decodeMap(metadata)
		cells = append(cells, c)
	}
	return cells, rows.Err()
}

func (s *SQLiteStore) ListPads(ctx context.Context, tenant string, filter ListFilter) ([]PadListRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT scratch_id, namespace, metadata, tags FROM pads WHERE tenant_id=? ORDER BY created_at ASC`, tenant)
	if err != nil {
		return nil, fmt.Errorf("catalog: list pads: %w", err)
	}
	defer rows.Close()

	var out []PadListRow
	for rows.Next() {
		var id, ns, metadata, tags string
		if err := rows.Scan(&id, &ns, &metadata, &tags); err != nil {
			return nil, err
		}
		if len(filter.Namespaces) > 0 && !containsString(filter.Namespaces, ns) {
			continue
		}
		if !tagsIntersect(decodeStrings(tags), filter.Tags) {
			continue
		}
		m := decodeMap(metadata)
		title, _ := m["title"].(string)
		desc, _ := m["description"].(string)
		cellCount, _ := s.cellCount(ctx, tenant, id)
		out = append(out, PadListRow{ScratchID: id, Title: title, Description: desc, Namespace: ns, CellCount: cellCount})
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, rows.Err()
}

func (s *SQLiteStore) cellCount(ctx context.Context, tenant, scratchID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cells WHERE tenant_id=? AND scratch_id=?`, tenant, scratchID).Scan(&n)
	return n, err
}

func (s *SQLiteStore) ListCells(ctx context.Context, tenant, scratchID string, filter ReadFilter) ([]LeanCell, error) {
	if exists, err := s.padExistsPlain(ctx, tenant, scratchID); err != nil {
		return nil, err
	} else if !exists {
		return nil, domainerr.New(domainerr.NotFound, "scratchpad not found")
	}
	cells, err := s.loadCellsPlain(ctx, tenant, scratchID)
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

func (s *SQLiteStore) padExistsPlain(ctx context.Context, tenant, scratchID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM pads WHERE tenant_id=? AND scratch_id=?`, tenant, scratchID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (s *SQLiteStore) loadCellsPlain(ctx context.Context, tenant, scratchID string) ([]Cell, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cell_id, idx, language, content, validate, tags, metadata FROM cells WHERE tenant_id=? AND scratch_id=? ORDER BY idx ASC`,
		tenant, scratchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var cells []Cell
	for rows.Next() {
		var c Cell
		var validateInt int
		var tags, metadata string
		if err := rows.Scan(&c.CellID, &c.Index, &c.Language, &c.Content, &validateInt, &tags, &metadata); err != nil {
			return nil, err
		}
		c.Validate = validateInt != 0
		c.Tags = decodeStrings(tags)
		c.Metadata = decodeMap(metadata)
		cells = append(cells, c)
	}
	return cells, rows.Err()
}

func (s *SQLiteStore) AppendCell(ctx context.Context, tenant, scratchID string, cell Cell, validator Validator, embedder Embedder) (MutateResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return MutateResult{}, fmt.Errorf("catalog: begin: %w", err)
	}
	defer tx.Rollback()

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
	if s.maxCellBytes > 0 && len([]byte(cell.Content)) > s.maxCellBytes {
		return MutateResult{}, domainerr.New(domainerr.CapacityLimitReached, "cell content exceeds max_cell_bytes")
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
		vr, verr := validator.ValidateCell(ctx, cell, schemaTxResolver{ctx: ctx, tx: tx, store: s, tenant: tenant, scratchID: scratchID})
		if verr != nil {
			return MutateResult{}, verr
		}
		results = append(results, vr)
	}
	if embedder != nil {
		if err := s.embedUnit(ctx, tx, embedder, tenant, scratchID, cell.CellID, pad.Namespace, unionTags(cell.Tags), cell.Language, cell.Content); err != nil {
			return MutateResult{}, err
		}
	}

	cellTags := unionTagsOf(cells)
	if _, err := tx.ExecContext(ctx, `UPDATE pads SET cell_tags_cache=? WHERE tenant_id=? AND scratch_id=?`, encodeStrings(cellTags), tenant, scratchID); err != nil {
		return MutateResult{}, fmt.Errorf("catalog: update cell_tags_cache: %w", err)
	}
	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `UPDATE pads SET last_access_at=? WHERE tenant_id=? AND scratch_id=?`, now.Format(time.RFC3339Nano), tenant, scratchID); err != nil {
		return MutateResult{}, fmt.Errorf("catalog: touch pad: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return MutateResult{}, fmt.Errorf("catalog: commit: %w", err)
	}

	pad.Cells = cells
	pad.CellTags = cellTags
	pad.LastAccessAt = now
	s.notify("appended", tenant, scratchID)
	return MutateResult{Pad: pad.Lean(), Results: results}, nil
}

func unionTagsOf(cells []Cell) []string {
	sets := make([][]string, len(cells))
	for i, c := range cells {
		sets[i] = c.Tags
	}
	return unionTags(sets...)
}

func (s *SQLiteStore) ReplaceCell(ctx context.Context, tenant, scratchID, cellID string, newCell Cell, newIndex *int, validator Validator, embedder Embedder) (MutateResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return MutateResult{}, fmt.Errorf("catalog: begin: %w", err)
	}
	defer tx.Rollback()

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
	if s.maxCellBytes > 0 && len([]byte(newCell.Content)) > s.maxCellBytes {
		return MutateResult{}, domainerr.New(domainerr.CapacityLimitReached, "cell content exceeds max_cell_bytes")
	}

	newCell.CellID = cellID
	// remove from current position, then reinsert at target, per spec §4.B reorder semantics.
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

	if _, err := tx.ExecContext(ctx, `DELETE FROM cells WHERE tenant_id=? AND scratch_id=?`, tenant, scratchID); err != nil {
		return MutateResult{}, fmt.Errorf("catalog: clear cells: %w", err)
	}
	for _, c := range cells {
		if err := s.insertCellTx(ctx, tx, tenant, scratchID, c); err != nil {
			return MutateResult{}, err
		}
	}

	var results []ValidationResult
	if newCell.Validate && validator != nil {
		vr, verr := validator.ValidateCell(ctx, newCell, schemaTxResolver{ctx: ctx, tx: tx, store: s, tenant: tenant, scratchID: scratchID})
		if verr != nil {
			return MutateResult{}, verr
		}
		results = append(results, vr)
	}
	if embedder != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM embeddings WHERE tenant_id=? AND scratch_id=? AND cell_id=?`, tenant, scratchID, cellID); err != nil {
			return MutateResult{}, fmt.Errorf("catalog: clear embedding: %w", err)
		}
		if err := s.embedUnit(ctx, tx, embedder, tenant, scratchID, cellID, pad.Namespace, unionTags(newCell.Tags), newCell.Language, newCell.Content); err != nil {
			return MutateResult{}, err
		}
	}

	cellTags := unionTagsOf(cells)
	if _, err := tx.ExecContext(ctx, `UPDATE pads SET cell_tags_cache=? WHERE tenant_id=? AND scratch_id=?`, encodeStrings(cellTags), tenant, scratchID); err != nil {
		return MutateResult{}, fmt.Errorf("catalog: update cell_tags_cache: %w", err)
	}
	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `UPDATE pads SET last_access_at=? WHERE tenant_id=? AND scratch_id=?`, now.Format(time.RFC3339Nano), tenant, scratchID); err != nil {
		return MutateResult{}, fmt.Errorf("catalog: touch pad: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return MutateResult{}, fmt.Errorf("catalog: commit: %w", err)
	}

	pad.Cells = cells
	pad.CellTags = cellTags
	pad.LastAccessAt = now
	s.notify("replaced", tenant, scratchID)
	return MutateResult{Pad: pad.Lean(), Results: results}, nil
}

func (s *SQLiteStore) DeletePad(ctx context.Context, tenant, scratchID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("catalog: begin: %w", err)
	}
	defer tx.Rollback()
	exists, err := s.padExists(ctx, tx, tenant, scratchID)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}
	if err := s.deletePadTx(ctx, tx, tenant, scratchID); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("catalog: commit: %w", err)
	}
	s.notify("deleted", tenant, scratchID)
	return true, nil
}

func (s *SQLiteStore) ListTags(ctx context.Context, tenant string, namespaces []string) (TagListing, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT namespace, tags, cell_tags_cache FROM pads WHERE tenant_id=?`, tenant)
	if err != nil {
		return TagListing{}, fmt.Errorf("catalog: list tags: %w", err)
	}
	defer rows.Close()
	var padTagSets, cellTagSets [][]string
	for rows.Next() {
		var ns, tags, cellTags string
		if err := rows.Scan(&ns, &tags, &cellTags); err != nil {
			return TagListing{}, err
		}
		if len(namespaces) > 0 && !containsString(namespaces, ns) {
			continue
		}
		padTagSets = append(padTagSets, decodeStrings(tags))
		cellTagSets = append(cellTagSets, decodeStrings(cellTags))
	}
	return TagListing{
		ScratchpadTags:  unionTags(padTagSets...),
		CellTags:        unionTags(cellTagSets...),
		NamespaceFilter: namespaces,
	}, rows.Err()
}

func (s *SQLiteStore) Validate(ctx context.Context, tenant, scratchID string, cellIDs []string, validator Validator) ([]ValidationResult, error) {
	cells, err := s.loadCellsPlain(ctx, tenant, scratchID)
	if err != nil {
		return nil, err
	}
	if len(cells) == 0 {
		if exists, _ := s.padExistsPlain(ctx, tenant, scratchID); !exists {
			return nil, domainerr.New(domainerr.NotFound, "scratchpad not found")
		}
	}
	resolver := plainSchemaResolver{store: s, ctx: ctx, tenant: tenant, scratchID: scratchID}
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

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	// modernc.org/sqlite wraps the sqlite3 result code in its error string;
	// there is no typed sentinel exported for "UNIQUE constraint failed".
	msg := err.Error()
	return contains(msg, "UNIQUE constraint failed") || contains(msg, "constraint failed")
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || indexOf(s, substr) >= 0)
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
