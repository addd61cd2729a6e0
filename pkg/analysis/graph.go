// Package analysis runs centrality and community-detection algorithms over a
// cached graph snapshot. The graph is materialized into adjacency lists once
// and the algorithms operate purely in memory; no call here touches the
// store.
package analysis

import (
	"errors"
	"sort"

	"github.com/schemalens/schemalens/pkg/graphcache"
)

// ErrUnknownAlgorithm reports an algorithm name outside the supported set.
var ErrUnknownAlgorithm = errors.New("unknown analysis algorithm")

const (
	CentralityDegree      = "degree"
	CentralityCloseness   = "closeness"
	CentralityBetweenness = "betweenness"
	CentralityPageRank    = "pagerank"

	CommunityLouvain          = "louvain"
	CommunityLabelPropagation = "label_propagation"
	CommunityGreedyModularity = "greedy_modularity"
)

// CentralityAlgorithms lists the accepted centrality algorithm names.
var CentralityAlgorithms = []string{
	CentralityDegree,
	CentralityCloseness,
	CentralityBetweenness,
	CentralityPageRank,
}

// CommunityAlgorithms lists the accepted community-detection algorithm names.
var CommunityAlgorithms = []string{
	CommunityLouvain,
	CommunityLabelPropagation,
	CommunityGreedyModularity,
}

// Graph is an in-memory view of one ontology. Node order is the sorted node
// key order, so every algorithm on the same snapshot is deterministic.
type Graph struct {
	keys  []string
	index map[string]int

	out       [][]int // directed successors, parallel edges collapsed
	und       [][]int // undirected unique neighbors, self loops dropped
	edgeCount int     // undirected edge count
}

// NewGraph materializes cached rows. Edges whose endpoints are not in the
// node set are skipped; the builders guarantee completeness for their own
// output, but rows read back from an external store get no such trust.
func NewGraph(nodes []graphcache.Node, edges []graphcache.Edge) *Graph {
	keys := make([]string, 0, len(nodes))
	index := make(map[string]int, len(nodes))
	for _, node := range nodes {
		if _, ok := index[node.Key]; ok {
			continue
		}
		index[node.Key] = 0
		keys = append(keys, node.Key)
	}
	sort.Strings(keys)
	for i, key := range keys {
		index[key] = i
	}

	g := &Graph{
		keys:  keys,
		index: index,
		out:   make([][]int, len(keys)),
		und:   make([][]int, len(keys)),
	}

	outSeen := make(map[[2]int]bool, len(edges))
	undSeen := make(map[[2]int]bool, len(edges))
	for _, edge := range edges {
		from, ok := index[edge.FromKey]
		if !ok {
			continue
		}
		to, ok := index[edge.ToKey]
		if !ok {
			continue
		}
		if !outSeen[[2]int{from, to}] {
			outSeen[[2]int{from, to}] = true
			g.out[from] = append(g.out[from], to)
		}
		if from == to {
			continue
		}
		a, b := from, to
		if a > b {
			a, b = b, a
		}
		if !undSeen[[2]int{a, b}] {
			undSeen[[2]int{a, b}] = true
			g.und[from] = append(g.und[from], to)
			g.und[to] = append(g.und[to], from)
			g.edgeCount++
		}
	}
	for i := range g.und {
		sort.Ints(g.und[i])
		sort.Ints(g.out[i])
	}
	return g
}

// Order is the number of nodes.
func (g *Graph) Order() int { return len(g.keys) }

// Keys returns the node keys in graph order.
func (g *Graph) Keys() []string { return g.keys }

func (g *Graph) scoreMap(values []float64) map[string]float64 {
	scores := make(map[string]float64, len(g.keys))
	for i, key := range g.keys {
		scores[key] = values[i]
	}
	return scores
}
