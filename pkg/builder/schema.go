package builder

import (
	"fmt"
	"strings"

	"github.com/schemalens/schemalens/pkg/discovery"
	"github.com/schemalens/schemalens/pkg/graphcache"
	"github.com/schemalens/schemalens/pkg/metadata"
)

// Node groups assigned by the schema builder. A product node groups all
// entities sharing a namespace prefix; table nodes are the entities
// themselves.
const (
	GroupProduct = "product"
	GroupTable   = "table"
)

const (
	sizeProduct = 30
	sizeTable   = 16
)

// BuildSchemaGraph turns entity metadata and discovered relationships into
// the schema-mode node/edge set. One table node per entity, one product node
// per namespace prefix with contains edges to its members, and one
// foreign_key edge per relationship at or above the confidence threshold.
// Properties carry semantic styling hints only; final colors belong to the
// presentation layer.
func BuildSchemaGraph(entities []metadata.Entity, relationships []discovery.Relationship, threshold float64) ([]graphcache.Node, []graphcache.Edge) {
	var nodes []graphcache.Node
	var edges []graphcache.Edge

	seenProducts := make(map[string]bool)
	for _, entity := range entities {
		if product := namespaceOf(entity.Name); product != "" && !seenProducts[product] {
			seenProducts[product] = true
			nodes = append(nodes, graphcache.Node{
				Key:   product,
				Label: product,
				Group: GroupProduct,
				Properties: map[string]any{
					"size":  sizeProduct,
					"title": fmt.Sprintf("Product %s", product),
				},
			})
		}
	}

	for _, entity := range entities {
		keys := entity.PrimaryKeys()
		nodes = append(nodes, graphcache.Node{
			Key:   entity.Name,
			Label: localName(entity.Name),
			Group: GroupTable,
			Properties: map[string]any{
				"size":  sizeTable,
				"title": fmt.Sprintf("%s (%d columns, %d keys)", entity.Name, len(entity.Columns), len(keys)),
			},
		})

		if product := namespaceOf(entity.Name); product != "" {
			edges = append(edges, graphcache.Edge{
				FromKey: product,
				ToKey:   entity.Name,
				Kind:    graphcache.KindContains,
				Properties: map[string]any{
					"label": "contains",
				},
			})
		}
	}

	for _, rel := range relationships {
		if rel.Confidence < threshold {
			continue
		}
		edges = append(edges, graphcache.Edge{
			FromKey:    rel.FromEntity,
			ToKey:      rel.ToEntity,
			Kind:       rel.Kind,
			Confidence: rel.Confidence,
			Properties: map[string]any{
				"from_column": rel.FromColumn,
				"to_column":   rel.ToColumn,
				"method":      rel.Method,
				"label":       rel.FromColumn,
			},
		})
	}

	return nodes, edges
}

// namespaceOf returns the namespace prefix of a dotted entity name, or ""
// for flat names.
func namespaceOf(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx <= 0 {
		return ""
	}
	return name[:idx]
}

func localName(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return name
	}
	return name[idx+1:]
}
