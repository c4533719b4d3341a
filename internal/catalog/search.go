package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"
)

// staleScorePenalty down-weights a hit whose stored embedding_version
// predates the querying embedder's current version: the vector was scored
// against an older embedding space, so its cosine similarity to the fresh
// query vector is not directly comparable to a current-version hit's.
const staleScorePenalty = 0.85

// embedUnit computes an embedding for text and upserts its row within tx,
// so the vector commits atomically with the content change that produced
// it (spec §4.E). An empty cellID marks a pad-level (metadata) embedding.
func (s *SQLiteStore) embedUnit(ctx context.Context, tx *sql.Tx, embedder Embedder, tenant, scratchID, cellID, namespace string, tags []string, language, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	vec, err := embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("catalog: embed: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO embeddings (tenant_id, scratch_id, cell_id, namespace, tags, language, vector, embedding_version, updated_at) VALUES (?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(tenant_id, scratch_id, cell_id) DO UPDATE SET namespace=excluded.namespace, tags=excluded.tags, language=excluded.language, vector=excluded.vector, embedding_version=excluded.embedding_version, updated_at=excluded.updated_at`,
		tenant, scratchID, cellID, namespace, encodeStrings(tags), language, packVector(vec), embedder.Version(), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("catalog: upsert embedding: %w", err)
	}
	return nil
}

// Search embeds queryText and brute-force scans this tenant's embedding
// rows, applying the namespace/tag pre-filter before ranking so predicates
// never see fewer than the full matching set (spec §4.E, testable property
// "search pre-filter correctness").
func (s *SQLiteStore) Search(ctx context.Context, tenant string, embedder Embedder, queryText string, namespaces, tags []string, limit int) ([]SearchHit, error) {
	queryVec, err := embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("catalog: embed query: %w", err)
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `SELECT scratch_id, cell_id, namespace, tags, vector, embedding_version FROM embeddings WHERE tenant_id=?`, tenant)
	if err != nil {
		return nil, fmt.Errorf("catalog: scan embeddings: %w", err)
	}
	defer rows.Close()

	type scored struct {
		hit   SearchHit
		score float32
	}
	var candidates []scored
	for rows.Next() {
		var scratchID, cellID, namespace, rawTags, rowVersion string
		var vecBlob []byte
		if err := rows.Scan(&scratchID, &cellID, &namespace, &rawTags, &vecBlob, &rowVersion); err != nil {
			return nil, err
		}
		rowTags := decodeStrings(rawTags)
		if len(namespaces) > 0 && !containsString(namespaces, namespace) {
			continue
		}
		if len(tags) > 0 && !tagsIntersect(rowTags, tags) {
			continue
		}
		score := cosineSimilarity(queryVec, unpackVector(vecBlob))
		stale := rowVersion != embedder.Version()
		if stale {
			score *= staleScorePenalty
		}
		candidates = append(candidates, scored{
			hit: SearchHit{
				ScratchID: scratchID, CellID: cellID, TenantID: tenant,
				Namespace: namespace, Tags: rowTags, EmbeddingVersion: rowVersion, Stale: stale,
			},
			score: score,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		if candidates[i].hit.ScratchID != candidates[j].hit.ScratchID {
			return candidates[i].hit.ScratchID < candidates[j].hit.ScratchID
		}
		return candidates[i].hit.CellID < candidates[j].hit.CellID
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	out := make([]SearchHit, len(candidates))
	for i, c := range candidates {
		hit := c.hit
		hit.Score = c.score
		if hit.CellID != "" {
			hit.Snippet, _ = s.cellSnippet(ctx, tenant, hit.ScratchID, hit.CellID)
		}
		out[i] = hit
	}
	return out, nil
}

func (s *SQLiteStore) cellSnippet(ctx context.Context, tenant, scratchID, cellID string) (string, error) {
	var content string
	err := s.db.QueryRowContext(ctx, `SELECT content FROM cells WHERE tenant_id=? AND scratch_id=? AND cell_id=?`, tenant, scratchID, cellID).Scan(&content)
	if err != nil {
		return "", err
	}
	const maxSnippet = 200
	if len(content) > maxSnippet {
		return content[:maxSnippet], nil
	}
	return content, nil
}

// Reembed recomputes every embedding row for tenant at embedder's current
// version, backing scratch_reembed after an embedding model change (spec
// §9 open question: embedding_version bump has no defined reindex pathway
// in the source, so this lazy full-recompute is the chosen implementation).
func (s *SQLiteStore) Reembed(ctx context.Context, tenant string, embedder Embedder) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("catalog: begin: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT scratch_id, cell_id, namespace, tags, language FROM embeddings WHERE tenant_id=?`, tenant)
	if err != nil {
		return 0, fmt.Errorf("catalog: scan embeddings: %w", err)
	}
	type unit struct{ scratchID, cellID, namespace, tags, language string }
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
		if u.cellID == "" {
			var metadata string
			if err := tx.QueryRowContext(ctx, `SELECT metadata FROM pads WHERE tenant_id=? AND scratch_id=?`, tenant, u.scratchID).Scan(&metadata); err != nil {
				continue
			}
			text = metadataText(decodeMap(metadata))
		} else {
			if err := tx.QueryRowContext(ctx, `SELECT content FROM cells WHERE tenant_id=? AND scratch_id=? AND cell_id=?`, tenant, u.scratchID, u.cellID).Scan(&text); err != nil {
				continue
			}
		}
		if err := s.embedUnit(ctx, tx, embedder, tenant, u.scratchID, u.cellID, u.namespace, decodeStrings(u.tags), u.language, text); err != nil {
			return 0, err
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("catalog: commit: %w", err)
	}
	return n, nil
}
