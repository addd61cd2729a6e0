package graphcache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Mode selects which graph flavor an ontology holds.
type Mode string

const (
	// ModeSchema is the entity/relationship graph. CSN and metadata schema
	// variants collapse into this mode.
	ModeSchema Mode = "schema"
	// ModeData is the sampled-record graph.
	ModeData Mode = "data"
)

// ParseMode normalizes a mode string. The legacy csn/metadata spellings map
// onto schema mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "schema", "csn", "metadata":
		return ModeSchema, nil
	case "data":
		return ModeData, nil
	default:
		return "", fmt.Errorf("unknown graph mode %q", s)
	}
}

// Relationship kinds stored on edges, next to the kinds the discovery engine
// emits.
const (
	KindContains = "contains"
)

var (
	// ErrRebuildConflict reports a rebuild already in flight for the same
	// (mode, source) key.
	ErrRebuildConflict = errors.New("rebuild already in progress")
)

// Ontology is one versioned graph snapshot, scoped to a (mode, source) pair.
// At most one ontology per pair is current at any time.
type Ontology struct {
	ID        int64          `json:"id"`
	PublicID  string         `json:"public_id"`
	Mode      Mode           `json:"mode"`
	Source    string         `json:"source"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Node is one graph node owned by exactly one ontology. Key carries the
// business identity (entity name, or entity:record-id in data mode).
type Node struct {
	Key        string         `json:"key"`
	Label      string         `json:"label"`
	Group      string         `json:"group"`
	Properties map[string]any `json:"properties"`
}

// Edge connects two node keys within the same ontology. The builder enforces
// that both endpoints resolve; the store does not carry a live foreign key
// because bulk-load order is unconstrained.
type Edge struct {
	FromKey    string         `json:"from_key"`
	ToKey      string         `json:"to_key"`
	Kind       string         `json:"kind"`
	Confidence float64        `json:"confidence"`
	Properties map[string]any `json:"properties"`
}

// Store is the persistence contract for ontology snapshots. Writers go
// through the two-phase BeginRebuild/CommitRebuild protocol so readers of the
// previous snapshot are never blocked and never observe partial state.
type Store interface {
	// GetCurrent returns the current ontology for the key, or nil without
	// error on a cache miss.
	GetCurrent(ctx context.Context, mode Mode, source string) (*Ontology, error)

	// BeginRebuild allocates a fresh, not-yet-current ontology row.
	BeginRebuild(ctx context.Context, mode Mode, source string, meta map[string]any) (int64, error)

	BulkInsertNodes(ctx context.Context, ontologyID int64, nodes []Node) error
	BulkInsertEdges(ctx context.Context, ontologyID int64, edges []Edge) error

	// CommitRebuild atomically makes the given ontology current and deletes
	// the superseded one together with its nodes and edges.
	CommitRebuild(ctx context.Context, mode Mode, source string, ontologyID int64) error

	// DiscardRebuild drops an uncommitted ontology after a failed build.
	DiscardRebuild(ctx context.Context, ontologyID int64) error

	// Invalidate retires the current ontology so the next GetCurrent misses.
	Invalidate(ctx context.Context, mode Mode, source string) error

	// CleanupStale removes non-current ontologies older than the given age,
	// catching snapshots abandoned between begin and commit.
	CleanupStale(ctx context.Context, olderThan time.Duration) (int64, error)

	ListNodes(ctx context.Context, ontologyID int64) ([]Node, error)
	ListEdges(ctx context.Context, ontologyID int64) ([]Edge, error)
}
