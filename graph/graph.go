// Package graph computes solve levels and islands over the constraint graph.
//
// Nodes are particle indices and edges are constraints. Anchors are the
// non-dynamic nodes (static, kinematic) that hold a chain in place.
package graph

import "github.com/pthm-cable/pbd/components"

// Edge connects two node indices.
type Edge [2]int

// Level assigns every node its graph distance from the nearest anchor with a
// breadth-first search. Nodes no anchor reaches keep components.LevelNone.
// Each edge gets the lower level of its endpoints. Edges that reference a
// node out of range are ignored and keep LevelNone.
func Level(anchors []bool, edges []Edge) (nodeLevels, edgeLevels []int) {
	n := len(anchors)
	nodeLevels = make([]int, n)
	adj := adjacency(n, edges)

	queue := make([]int, 0, n)
	for i, anchor := range anchors {
		if anchor {
			nodeLevels[i] = 0
			queue = append(queue, i)
		} else {
			nodeLevels[i] = components.LevelNone
		}
	}

	for head := 0; head < len(queue); head++ {
		node := queue[head]
		for _, next := range adj[node] {
			if nodeLevels[next] != components.LevelNone {
				continue
			}
			nodeLevels[next] = nodeLevels[node] + 1
			queue = append(queue, next)
		}
	}

	edgeLevels = make([]int, len(edges))
	for i, e := range edges {
		if !inRange(e, n) {
			edgeLevels[i] = components.LevelNone
			continue
		}
		edgeLevels[i] = min(nodeLevels[e[0]], nodeLevels[e[1]])
	}
	return nodeLevels, edgeLevels
}

func inRange(e Edge, n int) bool {
	return e[0] >= 0 && e[0] < n && e[1] >= 0 && e[1] < n && e[0] != e[1]
}

func adjacency(n int, edges []Edge) [][]int {
	adj := make([][]int, n)
	for _, e := range edges {
		if !inRange(e, n) {
			continue
		}
		adj[e[0]] = append(adj[e[0]], e[1])
		adj[e[1]] = append(adj[e[1]], e[0])
	}
	return adj
}

// Islands groups dynamic nodes into connected components. Edges through a
// non-dynamic node do not join islands. It returns the island of every
// node, -1 for non-dynamic nodes, and the number of islands.
func Islands(dynamic []bool, edges []Edge) ([]int, int) {
	n := len(dynamic)
	uf := newUnionFind(n)
	for _, e := range edges {
		if !inRange(e, n) || !dynamic[e[0]] || !dynamic[e[1]] {
			continue
		}
		uf.union(e[0], e[1])
	}

	island := make([]int, n)
	ids := make(map[int]int)
	for i := 0; i < n; i++ {
		if !dynamic[i] {
			island[i] = -1
			continue
		}
		root := uf.find(i)
		id, ok := ids[root]
		if !ok {
			id = len(ids)
			ids[root] = id
		}
		island[i] = id
	}
	return island, len(ids)
}

type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	switch {
	case uf.rank[ra] < uf.rank[rb]:
		uf.parent[ra] = rb
	case uf.rank[ra] > uf.rank[rb]:
		uf.parent[rb] = ra
	default:
		uf.parent[rb] = ra
		uf.rank[ra]++
	}
}
