// Package skewgraph maintains the undirected graph of pairwise clock skews
// inferred between drone-tracking nodes, and answers "what offset gets a
// timestamp from node A's clock onto node B's clock" queries over it.
package skewgraph

import "fmt"

// Edge is one recorded pairwise skew. Low and High are node ids with
// Low < High; Delta is time_at_High - time_at_Low.
type Edge struct {
	Low   int32
	High  int32
	Delta int64
}

// SkewInconsistencyError reports that a newly observed skew for a pair of
// nodes disagrees with a previously recorded one. This is a data/invariant
// error, not a runtime condition to recover from.
type SkewInconsistencyError struct {
	Low, High   int32
	Existing    int64
	Conflicting int64
}

func (e *SkewInconsistencyError) Error() string {
	return fmt.Sprintf("skewgraph: inconsistent skew for (%d,%d): have %d, observed %d",
		e.Low, e.High, e.Existing, e.Conflicting)
}

// Graph is a set of skew edges, unique by (low, high), immutable once
// inserted.
type Graph struct {
	edges []Edge
	index map[pairKey]int64
}

type pairKey struct {
	low, high int32
}

// New creates an empty skew graph.
func New() *Graph {
	return &Graph{index: make(map[pairKey]int64)}
}

// Record normalizes (a, b, delta) to (min(a,b), max(a,b), signed delta from
// low to high) and inserts it if the pair is unseen. If the pair is already
// known, the new observation must agree with the stored one; a mismatch
// panics with a SkewInconsistencyError, since two different skews recorded
// for the same pair means the clocks involved are not behaving linearly.
func (g *Graph) Record(a, b int32, delta int64) {
	if a == b {
		return
	}
	low, high, d := a, b, delta
	if a > b {
		low, high, d = b, a, -delta
	}

	key := pairKey{low, high}
	if existing, ok := g.index[key]; ok {
		if existing != d {
			panic(&SkewInconsistencyError{Low: low, High: high, Existing: existing, Conflicting: d})
		}
		return
	}

	g.index[key] = d
	g.edges = append(g.edges, Edge{Low: low, High: high, Delta: d})
}

// Edges returns a snapshot of the currently recorded edges.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// Len returns the number of recorded edges.
func (g *Graph) Len() int {
	return len(g.edges)
}

// Lookup returns the offset such that adding it to a timestamp taken on
// clock `from` yields the equivalent timestamp on clock `to`, or false if
// no path between the two nodes is known within the graph's current edge
// budget.
//
// A depth-first search that short-circuits on the first edge incident to
// the current node can miss a valid path when that edge leads to a dead
// end. This does a breadth-first search from `from` instead, which explores
// every incident edge at each node and therefore finds a path whenever one
// exists, while still terminating in a bounded number of steps (a BFS over
// a graph can expand each node at most once).
func (g *Graph) Lookup(from, to int32) (int64, bool) {
	if from == to {
		return 0, true
	}
	if len(g.edges) == 0 {
		return 0, false
	}

	type queued struct {
		node   int32
		offset int64
	}

	visited := map[int32]bool{from: true}
	queue := []queued{{node: from, offset: 0}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, e := range g.edges {
			var neighbor int32
			var step int64
			switch cur.node {
			case e.Low:
				neighbor, step = e.High, e.Delta
			case e.High:
				neighbor, step = e.Low, -e.Delta
			default:
				continue
			}
			if visited[neighbor] {
				continue
			}
			offset := cur.offset + step
			if neighbor == to {
				return offset, true
			}
			visited[neighbor] = true
			queue = append(queue, queued{node: neighbor, offset: offset})
		}
	}

	return 0, false
}
