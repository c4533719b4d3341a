// Package catalog implements the tenant-scoped, transactional persistence
// layer for scratchpads, cells, namespaces, schemas and embeddings.
package catalog

import "time"

// Scratchpad is the full, durable representation of a pad.
type Scratchpad struct {
	ScratchID    string
	TenantID     string
	Namespace    string
	Tags         []string
	Metadata     map[string]any
	Cells        []Cell
	CellTags     []string
	CreatedAt    time.Time
	LastAccessAt time.Time
}

// LeanScratchpad is the response-surface projection of a pad: everything
// except cell content, used by every mutating tool response per spec §4.F.
type LeanScratchpad struct {
	ScratchID    string
	TenantID     string
	Namespace    string
	Tags         []string
	Metadata     map[string]any
	Cells        []LeanCell
	CellTags     []string
	CreatedAt    time.Time
	LastAccessAt time.Time
}

// Cell is a single typed unit of pad content.
type Cell struct {
	CellID     string
	Index      int
	Language   string
	Content    string
	Validate   bool
	JSONSchema any // inline object, string, or a "scratchpad://schemas/<name>" ref
	Tags       []string
	Metadata   map[string]any
}

// LeanCell omits Content, mirroring LeanScratchpad's cells.
type LeanCell struct {
	CellID   string
	Index    int
	Language string
	Tags     []string
	Metadata map[string]any
}

func (c Cell) Lean() LeanCell {
	return LeanCell{CellID: c.CellID, Index: c.Index, Language: c.Language, Tags: c.Tags, Metadata: c.Metadata}
}

func (p Scratchpad) Lean() LeanScratchpad {
	lc := make([]LeanCell, len(p.Cells))
	for i, c := range p.Cells {
		lc[i] = c.Lean()
	}
	return LeanScratchpad{
		ScratchID: p.ScratchID, TenantID: p.TenantID, Namespace: p.Namespace,
		Tags: p.Tags, Metadata: p.Metadata, Cells: lc, CellTags: p.CellTags,
		CreatedAt: p.CreatedAt, LastAccessAt: p.LastAccessAt,
	}
}

// PadListRow is the row shape returned by list_pads.
type PadListRow struct {
	ScratchID   string
	Title       string
	Description string
	Namespace   string
	CellCount   int
}

// SchemaEntry is a registered JSON Schema under a pad's metadata.schemas map.
type SchemaEntry struct {
	ID          string
	Name        string
	Description string
	Schema      map[string]any
}

// Diagnostic is a single validation message.
type Diagnostic struct {
	Message string
	Code    string
	Line    int
	Column  int
	Details map[string]any
}

// ValidationResult is the outcome of validating one cell.
type ValidationResult struct {
	CellID   string
	Index    int
	Language string
	Valid    bool
	Errors   []Diagnostic
	Warnings []Diagnostic
	Details  map[string]any
}

// SearchHit is a single semantic-search result. Stale reports that the
// row's EmbeddingVersion predates the embedder used for this query, so its
// vector was scored against a stale embedding space; Score is down-weighted
// accordingly and scratch_reembed should be run to recompute it.
type SearchHit struct {
	ScratchID        string
	CellID           string
	TenantID         string
	Namespace        string
	Tags             []string
	Score            float32
	Snippet          string
	EmbeddingVersion string
	Stale            bool
}

// TagListing is the aggregate tag view returned by list_tags.
type TagListing struct {
	ScratchpadTags   []string
	CellTags         []string
	NamespaceFilter  []string
}

// Namespace is a per-tenant registry row; it may exist without any pads.
type Namespace struct {
	TenantID  string
	Name      string
	CreatedAt time.Time
}

// EmbeddingUnit identifies the thing a vector row was computed for: either
// a whole pad (metadata) or a single cell within it.
type EmbeddingUnit struct {
	TenantID  string
	ScratchID string
	CellID    string // empty for a pad-level (metadata) embedding
	Namespace string
	Tags      []string
	Language  string
}
