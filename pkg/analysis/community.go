package analysis

import (
	"fmt"
	"math/rand"
	"sort"
)

const (
	labelPropagationSeed     = 1
	labelPropagationMaxIters = 100
	louvainMaxLevels         = 10
)

// Communities partitions the nodes with the named algorithm. Community ids
// are dense and assigned in sorted-node-key order, so repeated runs on the
// same snapshot label identically. Isolated nodes end up in singleton
// communities; an empty graph yields an empty map without error.
func Communities(g *Graph, algorithm string) (map[string]int, error) {
	var labels []int
	switch algorithm {
	case CommunityLouvain:
		labels = louvain(g)
	case CommunityLabelPropagation:
		labels = labelPropagation(g)
	case CommunityGreedyModularity:
		labels = greedyModularity(g)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algorithm)
	}

	labels = renumber(labels)
	communities := make(map[string]int, g.Order())
	for i, key := range g.keys {
		communities[key] = labels[i]
	}
	return communities, nil
}

// renumber maps arbitrary labels onto 0..k-1 in order of first appearance.
func renumber(labels []int) []int {
	next := 0
	seen := make(map[int]int, len(labels))
	out := make([]int, len(labels))
	for i, label := range labels {
		id, ok := seen[label]
		if !ok {
			id = next
			seen[label] = id
			next++
		}
		out[i] = id
	}
	return out
}

// labelPropagation runs synchronous-ish label propagation with a seeded
// shuffle per sweep. Each node adopts its most frequent neighbor label,
// smallest label on ties, until a sweep changes nothing.
func labelPropagation(g *Graph) []int {
	n := g.Order()
	labels := make([]int, n)
	order := make([]int, n)
	for i := range labels {
		labels[i] = i
		order[i] = i
	}

	rng := rand.New(rand.NewSource(labelPropagationSeed))
	for iter := 0; iter < labelPropagationMaxIters; iter++ {
		rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })

		changed := false
		for _, v := range order {
			if len(g.und[v]) == 0 {
				continue
			}
			counts := make(map[int]int, len(g.und[v]))
			maxCount := 0
			for _, w := range g.und[v] {
				counts[labels[w]]++
				if counts[labels[w]] > maxCount {
					maxCount = counts[labels[w]]
				}
			}
			// Keep the current label when it ties for the lead; otherwise
			// take the smallest leading label.
			best := labels[v]
			if counts[best] < maxCount {
				best = -1
				for label, count := range counts {
					if count == maxCount && (best < 0 || label < best) {
						best = label
					}
				}
			}
			if best != labels[v] {
				labels[v] = best
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return labels
}

// wgraph is the weighted aggregate graph louvain coarsens between levels.
type wgraph struct {
	n     int
	adj   []map[int]float64 // neighbor -> weight, symmetric
	loops []float64         // collapsed internal weight per node
	total float64           // sum of edge weights (m)
}

func newWGraph(g *Graph) *wgraph {
	wg := &wgraph{
		n:     g.Order(),
		adj:   make([]map[int]float64, g.Order()),
		loops: make([]float64, g.Order()),
	}
	for i := range wg.adj {
		wg.adj[i] = make(map[int]float64, len(g.und[i]))
	}
	for v := range g.und {
		for _, w := range g.und[v] {
			if v < w {
				wg.adj[v][w] = 1
				wg.adj[w][v] = 1
				wg.total++
			}
		}
	}
	return wg
}

func (wg *wgraph) strength(v int) float64 {
	s := 2 * wg.loops[v]
	for _, weight := range wg.adj[v] {
		s += weight
	}
	return s
}

// louvain is the classic two-phase loop: greedy local moves maximizing
// modularity, then aggregation of communities into supernodes, repeated
// until a level stops improving.
func louvain(g *Graph) []int {
	n := g.Order()
	assignment := make([]int, n)
	for i := range assignment {
		assignment[i] = i
	}
	if n == 0 {
		return assignment
	}

	wg := newWGraph(g)
	for level := 0; level < louvainMaxLevels; level++ {
		comm, improved := localMove(wg)
		if !improved {
			break
		}
		comm = renumber(comm)
		for i := range assignment {
			assignment[i] = comm[assignment[i]]
		}
		wg = aggregate(wg, comm)
	}
	return assignment
}

// localMove repeatedly relocates nodes to the neighbor community with the
// best modularity gain until a full pass moves nothing.
func localMove(wg *wgraph) (comm []int, improved bool) {
	comm = make([]int, wg.n)
	tot := make([]float64, wg.n) // sum of strengths per community
	for i := range comm {
		comm[i] = i
		tot[i] = wg.strength(i)
	}
	if wg.total == 0 {
		return comm, false
	}
	m2 := 2 * wg.total

	for {
		moved := false
		for v := 0; v < wg.n; v++ {
			ki := wg.strength(v)
			current := comm[v]
			tot[current] -= ki

			// Weight from v into each adjacent community.
			links := make(map[int]float64, len(wg.adj[v]))
			links[current] += 0
			for w, weight := range wg.adj[v] {
				links[comm[w]] += weight
			}

			best, bestGain := current, links[current]-tot[current]*ki/m2
			targets := make([]int, 0, len(links))
			for c := range links {
				targets = append(targets, c)
			}
			sort.Ints(targets)
			for _, c := range targets {
				gain := links[c] - tot[c]*ki/m2
				if gain > bestGain {
					best, bestGain = c, gain
				}
			}

			tot[best] += ki
			if best != current {
				comm[v] = best
				moved = true
				improved = true
			}
		}
		if !moved {
			return comm, improved
		}
	}
}

// aggregate collapses each community into a supernode, summing edge weights.
func aggregate(wg *wgraph, comm []int) *wgraph {
	size := 0
	for _, c := range comm {
		if c+1 > size {
			size = c + 1
		}
	}
	next := &wgraph{
		n:     size,
		adj:   make([]map[int]float64, size),
		loops: make([]float64, size),
		total: wg.total,
	}
	for i := range next.adj {
		next.adj[i] = make(map[int]float64)
	}
	for v := 0; v < wg.n; v++ {
		next.loops[comm[v]] += wg.loops[v]
		for w, weight := range wg.adj[v] {
			if v > w {
				continue
			}
			a, b := comm[v], comm[w]
			if a == b {
				next.loops[a] += weight
				continue
			}
			next.adj[a][b] += weight
			next.adj[b][a] += weight
		}
	}
	return next
}

// greedyModularity starts from singletons and repeatedly merges the
// connected community pair with the largest positive modularity gain.
func greedyModularity(g *Graph) []int {
	n := g.Order()
	labels := make([]int, n)
	for i := range labels {
		labels[i] = i
	}
	if g.edgeCount == 0 {
		return labels
	}
	m2 := 2 * float64(g.edgeCount)

	// Inter-community edge weights and community strengths.
	between := make(map[[2]int]float64)
	tot := make([]float64, n)
	for v := range g.und {
		tot[v] = float64(len(g.und[v]))
		for _, w := range g.und[v] {
			if v < w {
				between[[2]int{v, w}]++
			}
		}
	}

	for {
		bestPair, bestGain := [2]int{-1, -1}, 0.0
		pairs := make([][2]int, 0, len(between))
		for pair := range between {
			pairs = append(pairs, pair)
		}
		sort.Slice(pairs, func(i, j int) bool {
			if pairs[i][0] != pairs[j][0] {
				return pairs[i][0] < pairs[j][0]
			}
			return pairs[i][1] < pairs[j][1]
		})
		for _, pair := range pairs {
			gain := between[pair]/g.m() - tot[pair[0]]*tot[pair[1]]/(m2*g.m())
			if gain > bestGain {
				bestPair, bestGain = pair, gain
			}
		}
		if bestPair[0] < 0 {
			break
		}

		a, b := bestPair[0], bestPair[1]
		// Fold b into a.
		tot[a] += tot[b]
		for v := range labels {
			if labels[v] == b {
				labels[v] = a
			}
		}
		delete(between, bestPair)
		merged := make(map[[2]int]float64, len(between))
		for pair, weight := range between {
			p, q := pair[0], pair[1]
			if p == b {
				p = a
			}
			if q == b {
				q = a
			}
			if p == q {
				continue
			}
			if p > q {
				p, q = q, p
			}
			merged[[2]int{p, q}] += weight
		}
		between = merged
	}
	return labels
}

func (g *Graph) m() float64 { return float64(g.edgeCount) }
