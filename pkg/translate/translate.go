// Package translate converts cached graph rows into the renderer-agnostic
// payload consumed by presentation layers. It carries semantic hints (group,
// size, dashes for inferred edges); a renderer is free to restyle everything.
package translate

import (
	"sort"

	"github.com/schemalens/schemalens/pkg/discovery"
	"github.com/schemalens/schemalens/pkg/graphcache"
)

const (
	defaultNodeSize = 10
	minEdgeWidth    = 1.0
	edgeWidthScale  = 2.0
)

// groupPalette cycles over groups in first-appearance order. Hints only.
var groupPalette = []string{
	"#2563eb", "#16a34a", "#d97706", "#dc2626",
	"#7c3aed", "#0891b2", "#be185d", "#4d7c0f",
}

const (
	containsEdgeColor = "#9ca3af"
	inferredEdgeColor = "#2563eb"
)

// Node is one renderable node.
type Node struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Group string `json:"group"`
	Size  int    `json:"size"`
	Title string `json:"title,omitempty"`
	Color string `json:"color,omitempty"`
}

// Edge is one renderable edge. Dashes marks edges inferred by a weaker
// signal than an exact name match.
type Edge struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Label  string  `json:"label,omitempty"`
	Width  float64 `json:"width"`
	Color  string  `json:"color,omitempty"`
	Dashes bool    `json:"dashes,omitempty"`
}

// Stats summarizes a payload for the caller.
type Stats struct {
	NodeCount int            `json:"node_count"`
	EdgeCount int            `json:"edge_count"`
	Groups    map[string]int `json:"groups"`
}

// Payload is the full graph response body.
type Payload struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
	Stats Stats  `json:"stats"`
}

// Graph renders cached rows into a payload. Node order follows the input;
// group colors are assigned from a fixed palette in sorted group order so
// the same snapshot always renders identically.
func Graph(nodes []graphcache.Node, edges []graphcache.Edge) Payload {
	groups := make(map[string]int)
	for _, node := range nodes {
		groups[node.Group]++
	}
	colors := groupColors(groups)

	payload := Payload{
		Nodes: make([]Node, 0, len(nodes)),
		Edges: make([]Edge, 0, len(edges)),
		Stats: Stats{
			NodeCount: len(nodes),
			EdgeCount: len(edges),
			Groups:    groups,
		},
	}

	for _, node := range nodes {
		payload.Nodes = append(payload.Nodes, Node{
			ID:    node.Key,
			Label: node.Label,
			Group: node.Group,
			Size:  propInt(node.Properties, "size", defaultNodeSize),
			Title: propString(node.Properties, "title"),
			Color: colors[node.Group],
		})
	}

	for _, edge := range edges {
		rendered := Edge{
			From:  edge.FromKey,
			To:    edge.ToKey,
			Label: propString(edge.Properties, "label"),
			Width: minEdgeWidth + edgeWidthScale*edge.Confidence,
			Color: inferredEdgeColor,
		}
		if edge.Kind == graphcache.KindContains {
			rendered.Color = containsEdgeColor
		}
		if method := propString(edge.Properties, "method"); method != "" && method != discovery.MethodExact {
			rendered.Dashes = true
		}
		payload.Edges = append(payload.Edges, rendered)
	}

	return payload
}

func groupColors(groups map[string]int) map[string]string {
	names := make([]string, 0, len(groups))
	for group := range groups {
		names = append(names, group)
	}
	sort.Strings(names)

	colors := make(map[string]string, len(names))
	for i, group := range names {
		colors[group] = groupPalette[i%len(groupPalette)]
	}
	return colors
}

func propString(props map[string]any, key string) string {
	if props == nil {
		return ""
	}
	if s, ok := props[key].(string); ok {
		return s
	}
	return ""
}

// propInt tolerates the numeric types a JSON round trip produces.
func propInt(props map[string]any, key string, fallback int) int {
	if props == nil {
		return fallback
	}
	switch v := props[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}
