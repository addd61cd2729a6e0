package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/schemalens/schemalens/pkg/graphcache"
)

type ontologyKey struct {
	mode   graphcache.Mode
	source string
}

type ontologyState struct {
	ontology graphcache.Ontology
	key      ontologyKey
	current  bool
	nodes    []graphcache.Node
	edges    []graphcache.Edge
	nodeKeys map[string]struct{}
}

// GraphCacheStore is an in-memory graphcache.Store. It backs unit tests and
// single-process setups without a database; the rebuild protocol matches the
// PostgreSQL implementation.
type GraphCacheStore struct {
	mu      sync.Mutex
	nextID  int64
	rows    map[int64]*ontologyState
	current map[ontologyKey]int64
}

var _ graphcache.Store = (*GraphCacheStore)(nil)

func NewGraphCacheStore() *GraphCacheStore {
	return &GraphCacheStore{
		rows:    make(map[int64]*ontologyState),
		current: make(map[ontologyKey]int64),
	}
}

func (s *GraphCacheStore) GetCurrent(ctx context.Context, mode graphcache.Mode, source string) (*graphcache.Ontology, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.current[ontologyKey{mode, source}]
	if !ok {
		return nil, nil
	}
	ontology := s.rows[id].ontology
	return &ontology, nil
}

func (s *GraphCacheStore) BeginRebuild(ctx context.Context, mode graphcache.Mode, source string, meta map[string]any) (int64, error) {
	publicID, err := gonanoid.New()
	if err != nil {
		return 0, err
	}
	if meta == nil {
		meta = map[string]any{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	now := time.Now()
	s.rows[s.nextID] = &ontologyState{
		ontology: graphcache.Ontology{
			ID:        s.nextID,
			PublicID:  publicID,
			Mode:      mode,
			Source:    source,
			Metadata:  meta,
			CreatedAt: now,
			UpdatedAt: now,
		},
		key:      ontologyKey{mode, source},
		nodeKeys: make(map[string]struct{}),
	}
	return s.nextID, nil
}

func (s *GraphCacheStore) BulkInsertNodes(ctx context.Context, ontologyID int64, nodes []graphcache.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.rows[ontologyID]
	if !ok {
		return fmt.Errorf("ontology %d does not exist", ontologyID)
	}
	for _, node := range nodes {
		if _, exists := state.nodeKeys[node.Key]; exists {
			return fmt.Errorf("duplicate node key %q in ontology %d", node.Key, ontologyID)
		}
		state.nodeKeys[node.Key] = struct{}{}
		state.nodes = append(state.nodes, node)
	}
	return nil
}

func (s *GraphCacheStore) BulkInsertEdges(ctx context.Context, ontologyID int64, edges []graphcache.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.rows[ontologyID]
	if !ok {
		return fmt.Errorf("ontology %d does not exist", ontologyID)
	}
	state.edges = append(state.edges, edges...)
	return nil
}

func (s *GraphCacheStore) CommitRebuild(ctx context.Context, mode graphcache.Mode, source string, ontologyID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.rows[ontologyID]
	if !ok {
		return fmt.Errorf("ontology %d does not exist", ontologyID)
	}

	key := ontologyKey{mode, source}
	if previousID, ok := s.current[key]; ok && previousID != ontologyID {
		delete(s.rows, previousID)
	}
	state.current = true
	state.ontology.UpdatedAt = time.Now()
	s.current[key] = ontologyID
	return nil
}

func (s *GraphCacheStore) DiscardRebuild(ctx context.Context, ontologyID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state, ok := s.rows[ontologyID]; ok && !state.current {
		delete(s.rows, ontologyID)
	}
	return nil
}

func (s *GraphCacheStore) Invalidate(ctx context.Context, mode graphcache.Mode, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ontologyKey{mode, source}
	if id, ok := s.current[key]; ok {
		s.rows[id].current = false
		delete(s.current, key)
	}
	return nil
}

func (s *GraphCacheStore) CleanupStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	removed := int64(0)
	for id, state := range s.rows {
		if !state.current && state.ontology.UpdatedAt.Before(cutoff) {
			delete(s.rows, id)
			removed++
		}
	}
	return removed, nil
}

func (s *GraphCacheStore) ListNodes(ctx context.Context, ontologyID int64) ([]graphcache.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.rows[ontologyID]
	if !ok {
		return nil, fmt.Errorf("ontology %d does not exist", ontologyID)
	}
	nodes := make([]graphcache.Node, len(state.nodes))
	copy(nodes, state.nodes)
	return nodes, nil
}

func (s *GraphCacheStore) ListEdges(ctx context.Context, ontologyID int64) ([]graphcache.Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.rows[ontologyID]
	if !ok {
		return nil, fmt.Errorf("ontology %d does not exist", ontologyID)
	}
	edges := make([]graphcache.Edge, len(state.edges))
	copy(edges, state.edges)
	return edges, nil
}

// OntologyCount reports how many ontology rows exist, current or not. Used by
// tests asserting cascade cleanup.
func (s *GraphCacheStore) OntologyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}
