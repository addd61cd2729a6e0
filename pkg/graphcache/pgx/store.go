package pgx

import (
	"context"
	"fmt"
	"time"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/schemalens/schemalens/pkg/graphcache"
	"github.com/schemalens/schemalens/pkg/logger"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
	CopyFrom(ctx context.Context, tableName pgxv5.Identifier, columnNames []string, rowSrc pgxv5.CopyFromSource) (int64, error)
}

// GraphCacheStore implements graphcache.Store on PostgreSQL. Snapshots live in
// the ontologies/graph_nodes/graph_edges tables; the two-phase protocol is a
// plain insert followed by a single transactional current-pointer swap, so
// concurrent readers keep hitting the previous snapshot until commit.
type GraphCacheStore struct {
	conn pgxIConn
}

var _ graphcache.Store = (*GraphCacheStore)(nil)

// NewGraphCacheStore creates a store on an existing connection or pool.
func NewGraphCacheStore(conn pgxIConn) *GraphCacheStore {
	return &GraphCacheStore{conn: conn}
}

const getCurrentSQL = `
SELECT id, public_id, graph_mode, source_id, metadata, created_at, updated_at
FROM ontologies
WHERE graph_mode = $1 AND source_id = $2 AND is_current;
`

func (s *GraphCacheStore) GetCurrent(ctx context.Context, mode graphcache.Mode, source string) (*graphcache.Ontology, error) {
	ontology := graphcache.Ontology{}
	err := s.conn.QueryRow(ctx, getCurrentSQL, string(mode), source).Scan(
		&ontology.ID,
		&ontology.PublicID,
		&ontology.Mode,
		&ontology.Source,
		&ontology.Metadata,
		&ontology.CreatedAt,
		&ontology.UpdatedAt,
	)
	if err != nil {
		if err == pgxv5.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load current ontology: %w", err)
	}
	return &ontology, nil
}

const beginRebuildSQL = `
INSERT INTO ontologies (public_id, graph_mode, source_id, metadata)
VALUES ($1, $2, $3, $4)
RETURNING id;
`

func (s *GraphCacheStore) BeginRebuild(ctx context.Context, mode graphcache.Mode, source string, meta map[string]any) (int64, error) {
	publicID, err := gonanoid.New()
	if err != nil {
		return 0, err
	}
	if meta == nil {
		meta = map[string]any{}
	}

	var id int64
	err = s.conn.QueryRow(ctx, beginRebuildSQL, publicID, string(mode), source, meta).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate ontology: %w", err)
	}

	logger.Debug("[GraphCache] Rebuild started", "mode", mode, "source", source, "ontology_id", id)
	return id, nil
}

func (s *GraphCacheStore) BulkInsertNodes(ctx context.Context, ontologyID int64, nodes []graphcache.Node) error {
	if len(nodes) == 0 {
		return nil
	}

	_, err := s.conn.CopyFrom(
		ctx,
		pgxv5.Identifier{"graph_nodes"},
		[]string{"ontology_id", "node_key", "label", "node_group", "properties"},
		pgxv5.CopyFromSlice(len(nodes), func(i int) ([]any, error) {
			node := nodes[i]
			props := node.Properties
			if props == nil {
				props = map[string]any{}
			}
			return []any{ontologyID, node.Key, node.Label, node.Group, props}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to bulk insert nodes: %w", err)
	}
	return nil
}

func (s *GraphCacheStore) BulkInsertEdges(ctx context.Context, ontologyID int64, edges []graphcache.Edge) error {
	if len(edges) == 0 {
		return nil
	}

	_, err := s.conn.CopyFrom(
		ctx,
		pgxv5.Identifier{"graph_edges"},
		[]string{"ontology_id", "from_node_key", "to_node_key", "relationship_kind", "confidence", "properties"},
		pgxv5.CopyFromSlice(len(edges), func(i int) ([]any, error) {
			edge := edges[i]
			props := edge.Properties
			if props == nil {
				props = map[string]any{}
			}
			return []any{ontologyID, edge.FromKey, edge.ToKey, edge.Kind, edge.Confidence, props}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to bulk insert edges: %w", err)
	}
	return nil
}

func (s *GraphCacheStore) CommitRebuild(ctx context.Context, mode graphcache.Mode, source string, ontologyID int64) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`UPDATE ontologies SET is_current = false WHERE graph_mode = $1 AND source_id = $2 AND is_current`,
		string(mode), source)
	if err != nil {
		return fmt.Errorf("failed to retire previous ontology: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE ontologies SET is_current = true, updated_at = now() WHERE id = $1`,
		ontologyID)
	if err != nil {
		return fmt.Errorf("failed to promote ontology %d: %w", ontologyID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ontology %d does not exist", ontologyID)
	}

	// Cascade removes the superseded snapshot's nodes and edges.
	_, err = tx.Exec(ctx,
		`DELETE FROM ontologies WHERE graph_mode = $1 AND source_id = $2 AND id <> $3 AND NOT is_current`,
		string(mode), source, ontologyID)
	if err != nil {
		return fmt.Errorf("failed to delete superseded ontologies: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	logger.Debug("[GraphCache] Rebuild committed", "mode", mode, "source", source, "ontology_id", ontologyID)
	return nil
}

func (s *GraphCacheStore) DiscardRebuild(ctx context.Context, ontologyID int64) error {
	_, err := s.conn.Exec(ctx,
		`DELETE FROM ontologies WHERE id = $1 AND NOT is_current`, ontologyID)
	if err != nil {
		return fmt.Errorf("failed to discard ontology %d: %w", ontologyID, err)
	}
	return nil
}

func (s *GraphCacheStore) Invalidate(ctx context.Context, mode graphcache.Mode, source string) error {
	_, err := s.conn.Exec(ctx,
		`UPDATE ontologies SET is_current = false WHERE graph_mode = $1 AND source_id = $2 AND is_current`,
		string(mode), source)
	if err != nil {
		return fmt.Errorf("failed to invalidate ontology: %w", err)
	}
	return nil
}

func (s *GraphCacheStore) CleanupStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := s.conn.Exec(ctx,
		`DELETE FROM ontologies WHERE NOT is_current AND updated_at < now() - ($1::bigint * interval '1 millisecond')`,
		olderThan.Milliseconds())
	if err != nil {
		return 0, fmt.Errorf("failed to clean up stale ontologies: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *GraphCacheStore) ListNodes(ctx context.Context, ontologyID int64) ([]graphcache.Node, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT node_key, label, node_group, properties FROM graph_nodes WHERE ontology_id = $1 ORDER BY node_key`,
		ontologyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	defer rows.Close()

	nodes := make([]graphcache.Node, 0)
	for rows.Next() {
		node := graphcache.Node{}
		if err := rows.Scan(&node.Key, &node.Label, &node.Group, &node.Properties); err != nil {
			return nil, fmt.Errorf("failed to scan node row: %w", err)
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating nodes: %w", err)
	}
	return nodes, nil
}

func (s *GraphCacheStore) ListEdges(ctx context.Context, ontologyID int64) ([]graphcache.Edge, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT from_node_key, to_node_key, relationship_kind, confidence, properties
		 FROM graph_edges WHERE ontology_id = $1 ORDER BY from_node_key, to_node_key, relationship_kind`,
		ontologyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list edges: %w", err)
	}
	defer rows.Close()

	edges := make([]graphcache.Edge, 0)
	for rows.Next() {
		edge := graphcache.Edge{}
		if err := rows.Scan(&edge.FromKey, &edge.ToKey, &edge.Kind, &edge.Confidence, &edge.Properties); err != nil {
			return nil, fmt.Errorf("failed to scan edge row: %w", err)
		}
		edges = append(edges, edge)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating edges: %w", err)
	}
	return edges, nil
}
