package analysis

import (
	"fmt"
	"math"
)

const (
	pageRankDamping    = 0.85
	pageRankMaxIters   = 100
	pageRankTolerance  = 1e-6
	betweennessMinSize = 3
)

// Centrality scores every node with the named algorithm. The result map
// carries every node of the graph; isolated nodes score zero (pagerank gives
// them their base rank). An empty graph yields an empty map without error.
func Centrality(g *Graph, algorithm string) (map[string]float64, error) {
	switch algorithm {
	case CentralityDegree:
		return g.scoreMap(degree(g)), nil
	case CentralityCloseness:
		return g.scoreMap(closeness(g)), nil
	case CentralityBetweenness:
		return g.scoreMap(betweenness(g)), nil
	case CentralityPageRank:
		return g.scoreMap(pageRank(g)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algorithm)
	}
}

// degree is the undirected degree normalized by the maximum possible n-1.
func degree(g *Graph) []float64 {
	n := g.Order()
	values := make([]float64, n)
	if n < 2 {
		return values
	}
	for i := range g.und {
		values[i] = float64(len(g.und[i])) / float64(n-1)
	}
	return values
}

// closeness uses the Wasserman-Faust form, which scales by the reachable
// fraction so disconnected components compare sanely.
func closeness(g *Graph) []float64 {
	n := g.Order()
	values := make([]float64, n)
	if n < 2 {
		return values
	}
	for s := 0; s < n; s++ {
		distSum, reachable := bfsDistances(g, s)
		if distSum == 0 {
			continue
		}
		r := float64(reachable - 1)
		values[s] = (r / float64(distSum)) * (r / float64(n-1))
	}
	return values
}

func bfsDistances(g *Graph, source int) (distSum, reachable int) {
	dist := make([]int, g.Order())
	for i := range dist {
		dist[i] = -1
	}
	dist[source] = 0
	queue := []int{source}
	reachable = 1
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		for _, w := range g.und[v] {
			if dist[w] >= 0 {
				continue
			}
			dist[w] = dist[v] + 1
			distSum += dist[w]
			reachable++
			queue = append(queue, w)
		}
	}
	return distSum, reachable
}

// betweenness implements Brandes' accumulation over shortest paths,
// normalized to [0, 1] for an undirected graph.
func betweenness(g *Graph) []float64 {
	n := g.Order()
	values := make([]float64, n)
	if n < betweennessMinSize {
		return values
	}

	for s := 0; s < n; s++ {
		var stack []int
		preds := make([][]int, n)
		sigma := make([]float64, n)
		dist := make([]int, n)
		for i := range dist {
			dist[i] = -1
		}
		sigma[s] = 1
		dist[s] = 0
		queue := []int{s}
		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			stack = append(stack, v)
			for _, w := range g.und[v] {
				if dist[w] < 0 {
					dist[w] = dist[v] + 1
					queue = append(queue, w)
				}
				if dist[w] == dist[v]+1 {
					sigma[w] += sigma[v]
					preds[w] = append(preds[w], v)
				}
			}
		}
		delta := make([]float64, n)
		for i := len(stack) - 1; i >= 0; i-- {
			w := stack[i]
			for _, v := range preds[w] {
				delta[v] += (sigma[v] / sigma[w]) * (1 + delta[w])
			}
			if w != s {
				values[w] += delta[w]
			}
		}
	}

	// Each pair is counted from both endpoints.
	scale := 1.0 / (float64(n-1) * float64(n-2))
	for i := range values {
		values[i] *= scale
	}
	return values
}

// pageRank runs power iteration over the directed edge set with uniform
// teleport. Dangling rank is redistributed over all nodes each round.
func pageRank(g *Graph) []float64 {
	n := g.Order()
	if n == 0 {
		return nil
	}
	ranks := make([]float64, n)
	next := make([]float64, n)
	for i := range ranks {
		ranks[i] = 1.0 / float64(n)
	}

	base := (1 - pageRankDamping) / float64(n)
	for iter := 0; iter < pageRankMaxIters; iter++ {
		var dangling float64
		for i := range next {
			next[i] = base
		}
		for v := 0; v < n; v++ {
			if len(g.out[v]) == 0 {
				dangling += ranks[v]
				continue
			}
			share := pageRankDamping * ranks[v] / float64(len(g.out[v]))
			for _, w := range g.out[v] {
				next[w] += share
			}
		}
		if dangling > 0 {
			spread := pageRankDamping * dangling / float64(n)
			for i := range next {
				next[i] += spread
			}
		}

		var diff float64
		for i := range next {
			diff += math.Abs(next[i] - ranks[i])
		}
		ranks, next = next, ranks
		if diff < pageRankTolerance {
			break
		}
	}
	return ranks
}
