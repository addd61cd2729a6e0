// Package builder assembles graph snapshots from source metadata and
// persists them through the cache store. The Rebuilder coordinates the
// full rebuild protocol: lock the (mode, source) key, discover
// relationships, build nodes and edges, and swap the snapshot in.
package builder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/schemalens/schemalens/internal/util"
	"github.com/schemalens/schemalens/pkg/discovery"
	"github.com/schemalens/schemalens/pkg/graphcache"
	"github.com/schemalens/schemalens/pkg/leaselock"
	"github.com/schemalens/schemalens/pkg/metadata"
)

const (
	DefaultThreshold       = 0.5
	DefaultMaxRecords      = 50
	DefaultParallelSamples = 4

	metadataRetries = 3
)

// Locker serializes rebuilds for a given key. Implementations return
// graphcache.ErrRebuildConflict when the key is already held.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// LocalLocker serializes rebuilds within a single process.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]bool)}
}

func (l *LocalLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	if l.held[key] {
		l.mu.Unlock()
		return graphcache.ErrRebuildConflict
	}
	l.held[key] = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}()
	return fn(ctx)
}

// LeaseLocker serializes rebuilds across processes using a database lease.
type LeaseLocker struct {
	Client  *leaselock.Client
	Options leaselock.Options
}

func (l *LeaseLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	err := l.Client.WithLease(ctx, key, l.Options, fn)
	if errors.Is(err, leaselock.ErrBusy) {
		return graphcache.ErrRebuildConflict
	}
	return err
}

// RebuilderParams configures a Rebuilder. Provider, Store and Locker are
// required; the remaining fields fall back to package defaults.
type RebuilderParams struct {
	Provider  metadata.Provider
	Store     graphcache.Store
	Locker    Locker
	Discovery discovery.Config

	// Threshold is the minimum confidence for a discovered relationship
	// to become an edge.
	Threshold float64
	// MaxRecords bounds the number of records sampled per entity in
	// data mode.
	MaxRecords int
	// ParallelSamples bounds concurrent record sampling.
	ParallelSamples int
}

type Rebuilder struct {
	provider  metadata.Provider
	store     graphcache.Store
	locker    Locker
	discovery discovery.Config

	threshold       float64
	maxRecords      int
	parallelSamples int
}

// BuildResult summarizes a completed rebuild.
type BuildResult struct {
	OntologyID      int64         `json:"ontology_id"`
	NodeCount       int           `json:"node_count"`
	EdgeCount       int           `json:"edge_count"`
	DiscoveredCount int           `json:"discovered_count"`
	DiscoveryTime   time.Duration `json:"discovery_time"`
}

func NewRebuilder(params RebuilderParams) *Rebuilder {
	r := &Rebuilder{
		provider:        params.Provider,
		store:           params.Store,
		locker:          params.Locker,
		discovery:       params.Discovery,
		threshold:       params.Threshold,
		maxRecords:      params.MaxRecords,
		parallelSamples: params.ParallelSamples,
	}
	if r.locker == nil {
		r.locker = NewLocalLocker()
	}
	if r.threshold <= 0 {
		r.threshold = DefaultThreshold
	}
	if r.maxRecords <= 0 {
		r.maxRecords = DefaultMaxRecords
	}
	if r.parallelSamples <= 0 {
		r.parallelSamples = DefaultParallelSamples
	}
	return r
}

// Rebuild constructs a fresh snapshot for (mode, source) and swaps it in
// as the current one. Concurrent rebuilds of the same key fail with
// graphcache.ErrRebuildConflict; readers keep seeing the previous
// snapshot until the new one is committed. maxRecords overrides the
// configured sample bound when positive.
func (r *Rebuilder) Rebuild(ctx context.Context, mode graphcache.Mode, source string, maxRecords int) (*BuildResult, error) {
	key := fmt.Sprintf("graph_rebuild:%s:%s", mode, source)

	var result *BuildResult
	err := r.locker.WithLock(ctx, key, func(ctx context.Context) error {
		var err error
		result, err = r.rebuild(ctx, mode, source, maxRecords)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *Rebuilder) rebuild(ctx context.Context, mode graphcache.Mode, source string, maxRecords int) (*BuildResult, error) {
	entities, err := util.RetryWithContext(ctx, metadataRetries, func(ctx context.Context) ([]metadata.Entity, error) {
		return r.provider.ListEntities(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("listing entities: %w", err)
	}

	start := time.Now()
	relationships := r.discovery.Discover(entities)
	discoveryTime := time.Since(start)

	var nodes []graphcache.Node
	var edges []graphcache.Edge
	switch mode {
	case graphcache.ModeSchema:
		nodes, edges = BuildSchemaGraph(entities, relationships, r.threshold)
	case graphcache.ModeData:
		limit := r.maxRecords
		if maxRecords > 0 {
			limit = maxRecords
		}
		nodes, edges, err = BuildDataGraph(ctx, r.provider, entities, relationships, r.threshold, limit, r.parallelSamples)
		if err != nil {
			return nil, fmt.Errorf("sampling records: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported graph mode %q", mode)
	}

	meta := map[string]any{
		"entity_count":      len(entities),
		"discovered_count":  len(relationships),
		"discovery_time_ms": discoveryTime.Milliseconds(),
		"threshold":         r.threshold,
	}

	ontologyID, err := r.store.BeginRebuild(ctx, mode, source, meta)
	if err != nil {
		return nil, fmt.Errorf("beginning rebuild: %w", err)
	}
	if err := r.insertAndCommit(ctx, mode, source, ontologyID, nodes, edges); err != nil {
		if discardErr := r.store.DiscardRebuild(ctx, ontologyID); discardErr != nil {
			return nil, errors.Join(err, fmt.Errorf("discarding rebuild: %w", discardErr))
		}
		return nil, err
	}

	return &BuildResult{
		OntologyID:      ontologyID,
		NodeCount:       len(nodes),
		EdgeCount:       len(edges),
		DiscoveredCount: len(relationships),
		DiscoveryTime:   discoveryTime,
	}, nil
}

func (r *Rebuilder) insertAndCommit(ctx context.Context, mode graphcache.Mode, source string, ontologyID int64, nodes []graphcache.Node, edges []graphcache.Edge) error {
	if err := r.store.BulkInsertNodes(ctx, ontologyID, nodes); err != nil {
		return fmt.Errorf("inserting nodes: %w", err)
	}
	if err := r.store.BulkInsertEdges(ctx, ontologyID, edges); err != nil {
		return fmt.Errorf("inserting edges: %w", err)
	}
	if err := r.store.CommitRebuild(ctx, mode, source, ontologyID); err != nil {
		return fmt.Errorf("committing rebuild: %w", err)
	}
	return nil
}

// GetOrBuild returns the current snapshot for (mode, source), building
// one on a cache miss. maxRecords only matters when the miss triggers a
// data-mode build. A conflicting in-flight rebuild is surfaced as
// graphcache.ErrRebuildConflict rather than blocking.
func (r *Rebuilder) GetOrBuild(ctx context.Context, mode graphcache.Mode, source string, maxRecords int) (*graphcache.Ontology, error) {
	ontology, err := r.store.GetCurrent(ctx, mode, source)
	if err != nil {
		return nil, err
	}
	if ontology != nil {
		return ontology, nil
	}
	if _, err := r.Rebuild(ctx, mode, source, maxRecords); err != nil {
		return nil, err
	}
	return r.store.GetCurrent(ctx, mode, source)
}

// Invalidate drops the current snapshot so the next read rebuilds.
func (r *Rebuilder) Invalidate(ctx context.Context, mode graphcache.Mode, source string) error {
	return r.store.Invalidate(ctx, mode, source)
}
