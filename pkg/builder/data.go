package builder

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/schemalens/schemalens/internal/util"
	"github.com/schemalens/schemalens/pkg/discovery"
	"github.com/schemalens/schemalens/pkg/graphcache"
	"github.com/schemalens/schemalens/pkg/metadata"
)

const sizeRecord = 10

// BuildDataGraph samples up to maxRecords rows per entity and links records
// whose foreign-key column value matches a target record's key value. The
// linking is a single pass over the samples, which bounds cost at
// O(maxRecords x relationships) instead of a full join.
func BuildDataGraph(
	ctx context.Context,
	provider metadata.Provider,
	entities []metadata.Entity,
	relationships []discovery.Relationship,
	threshold float64,
	maxRecords int,
	parallelSamples int,
) ([]graphcache.Node, []graphcache.Edge, error) {
	if maxRecords <= 0 {
		maxRecords = 50
	}
	if parallelSamples <= 0 {
		parallelSamples = 4
	}

	samples := make(map[string][]metadata.Record, len(entities))
	var mutex sync.Mutex
	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(parallelSamples)

	for _, entity := range entities {
		e := entity
		eg.Go(func() error {
			records, err := util.RetryWithContext(gCtx, 3, func(ctx context.Context) ([]metadata.Record, error) {
				return provider.SampleRecords(ctx, e.Name, maxRecords)
			})
			if err != nil {
				return fmt.Errorf("failed to sample records of %s: %w", e.Name, err)
			}
			mutex.Lock()
			defer mutex.Unlock()
			samples[e.Name] = records
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}

	var nodes []graphcache.Node
	seen := make(map[string]bool)
	nodeKeys := make(map[string]string) // entity + "\x00" + key value -> node key
	for _, entity := range entities {
		keyColumn := firstPrimaryKey(entity)
		for i, record := range samples[entity.Name] {
			label := fmt.Sprintf("row-%d", i)
			if keyColumn != "" {
				if v, ok := stringValue(record[keyColumn]); ok {
					label = v
				}
			}
			nodeKey := fmt.Sprintf("%s:%s", entity.Name, label)
			if seen[nodeKey] {
				continue
			}
			seen[nodeKey] = true
			nodes = append(nodes, graphcache.Node{
				Key:   nodeKey,
				Label: label,
				Group: entity.Name,
				Properties: map[string]any{
					"size":  sizeRecord,
					"title": fmt.Sprintf("%s %s", entity.Name, label),
				},
			})
		}
	}

	// Index target records by the value of the relationship's target column.
	for _, rel := range relationships {
		if rel.Confidence < threshold {
			continue
		}
		targetEntity := findEntity(entities, rel.ToEntity)
		if targetEntity == nil {
			continue
		}
		keyColumn := firstPrimaryKey(*targetEntity)
		for i, record := range samples[rel.ToEntity] {
			value, ok := stringValue(record[rel.ToColumn])
			if !ok {
				continue
			}
			label := fmt.Sprintf("row-%d", i)
			if keyColumn != "" {
				if v, ok := stringValue(record[keyColumn]); ok {
					label = v
				}
			}
			nodeKeys[rel.ToEntity+"\x00"+value] = fmt.Sprintf("%s:%s", rel.ToEntity, label)
		}
	}

	var edges []graphcache.Edge
	for _, rel := range relationships {
		if rel.Confidence < threshold {
			continue
		}
		sourceEntity := findEntity(entities, rel.FromEntity)
		if sourceEntity == nil {
			continue
		}
		keyColumn := firstPrimaryKey(*sourceEntity)
		for i, record := range samples[rel.FromEntity] {
			value, ok := stringValue(record[rel.FromColumn])
			if !ok {
				continue
			}
			targetKey, ok := nodeKeys[rel.ToEntity+"\x00"+value]
			if !ok {
				// Referenced record outside the sample; dropping the edge
				// keeps every edge endpoint resolvable.
				continue
			}
			label := fmt.Sprintf("row-%d", i)
			if keyColumn != "" {
				if v, ok := stringValue(record[keyColumn]); ok {
					label = v
				}
			}
			edges = append(edges, graphcache.Edge{
				FromKey:    fmt.Sprintf("%s:%s", rel.FromEntity, label),
				ToKey:      targetKey,
				Kind:       rel.Kind,
				Confidence: rel.Confidence,
				Properties: map[string]any{
					"from_column": rel.FromColumn,
					"to_column":   rel.ToColumn,
					"method":      rel.Method,
				},
			})
		}
	}

	return nodes, edges, nil
}

func firstPrimaryKey(entity metadata.Entity) string {
	keys := entity.PrimaryKeys()
	if len(keys) == 0 {
		return ""
	}
	return keys[0]
}

func findEntity(entities []metadata.Entity, name string) *metadata.Entity {
	for i := range entities {
		if entities[i].Name == name {
			return &entities[i]
		}
	}
	return nil
}

func stringValue(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	s := fmt.Sprintf("%v", v)
	if s == "" {
		return "", false
	}
	return s, true
}
