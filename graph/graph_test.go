package graph

import (
	"slices"
	"testing"
)

func TestLevel(t *testing.T) {
	tests := []struct {
		name      string
		anchors   []bool
		edges     []Edge
		wantNodes []int
		wantEdges []int
	}{
		{
			name:      "three link chain",
			anchors:   []bool{true, false, false},
			edges:     []Edge{{0, 1}, {1, 2}},
			wantNodes: []int{0, 1, 2},
			wantEdges: []int{0, 1},
		},
		{
			name:      "edge order does not matter",
			anchors:   []bool{false, false, true},
			edges:     []Edge{{0, 1}, {2, 1}},
			wantNodes: []int{2, 1, 0},
			wantEdges: []int{1, 0},
		},
		{
			name:      "nearest anchor wins",
			anchors:   []bool{true, false, false, true},
			edges:     []Edge{{0, 1}, {1, 2}, {2, 3}},
			wantNodes: []int{0, 1, 1, 0},
			wantEdges: []int{0, 1, 0},
		},
		{
			name:      "disconnected stays unleveled",
			anchors:   []bool{true, false, false, false},
			edges:     []Edge{{0, 1}, {2, 3}},
			wantNodes: []int{0, 1, -1, -1},
			wantEdges: []int{0, -1},
		},
		{
			name:      "bad edges ignored",
			anchors:   []bool{true, false},
			edges:     []Edge{{0, 5}, {1, 1}, {0, 1}},
			wantNodes: []int{0, 1},
			wantEdges: []int{-1, -1, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nodes, edges := Level(tt.anchors, tt.edges)
			if !slices.Equal(nodes, tt.wantNodes) {
				t.Errorf("node levels: got %v, want %v", nodes, tt.wantNodes)
			}
			if !slices.Equal(edges, tt.wantEdges) {
				t.Errorf("edge levels: got %v, want %v", edges, tt.wantEdges)
			}
		})
	}
}

func TestIslands(t *testing.T) {
	// 0 is an anchor joined to two separate chains: 1-2 and 3-4.
	dynamic := []bool{false, true, true, true, true, true}
	edges := []Edge{{0, 1}, {1, 2}, {0, 3}, {3, 4}}

	island, count := Islands(dynamic, edges)
	if count != 3 {
		t.Fatalf("count: got %d, want 3", count)
	}
	if island[0] != -1 {
		t.Errorf("anchor island: got %d, want -1", island[0])
	}
	if island[1] != island[2] {
		t.Errorf("1 and 2 in different islands: %d %d", island[1], island[2])
	}
	if island[3] != island[4] {
		t.Errorf("3 and 4 in different islands: %d %d", island[3], island[4])
	}
	if island[1] == island[3] {
		t.Error("anchor merged two chains")
	}
	if island[5] == island[1] || island[5] == island[3] {
		t.Error("isolated node shares an island")
	}
}

func BenchmarkLevel(b *testing.B) {
	const n = 1000
	anchors := make([]bool, n)
	anchors[0] = true
	edges := make([]Edge, n-1)
	for i := range edges {
		edges[i] = Edge{i, i + 1}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Level(anchors, edges)
	}
}
