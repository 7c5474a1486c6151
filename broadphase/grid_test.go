package broadphase

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/pthm-cable/pbd/components"
	"github.com/pthm-cable/pbd/particles"
)

func makeHandles(t *testing.T, n int) []particles.Handle {
	t.Helper()
	store := particles.NewStore()
	hs, err := store.CreateParticles(components.KindDynamic, n, particles.Params{})
	if err != nil {
		t.Fatalf("CreateParticles: %v", err)
	}
	return hs
}

func TestQueryRadius(t *testing.T) {
	hs := makeHandles(t, 4)
	g := NewGrid(2)
	g.Insert(hs[0], mgl64.Vec3{0, 0, 0})
	g.Insert(hs[1], mgl64.Vec3{1.5, 0, 0})
	g.Insert(hs[2], mgl64.Vec3{0, 0, -3.9})
	g.Insert(hs[3], mgl64.Vec3{10, 10, 10})

	tests := []struct {
		name   string
		radius float64
		want   int
	}{
		{"tiny", 0.5, 0},
		{"one neighbour", 2, 1},
		{"crosses cells", 4, 2},
		{"everything", 20, 3},
	}
	for _, tt := range tests {
		got := g.QueryRadiusInto(nil, mgl64.Vec3{}, tt.radius, hs[0])
		if len(got) != tt.want {
			t.Errorf("%s: got %d neighbours, want %d", tt.name, len(got), tt.want)
		}
	}
}

func TestQueryReportsDelta(t *testing.T) {
	hs := makeHandles(t, 2)
	g := NewGrid(1)
	g.Insert(hs[1], mgl64.Vec3{-3, 4, 0})

	got := g.QueryRadiusInto(nil, mgl64.Vec3{}, 5, hs[0])
	if len(got) != 1 {
		t.Fatalf("neighbours: got %d, want 1", len(got))
	}
	if got[0].DistSq != 25 {
		t.Errorf("dist sq: got %f, want 25", got[0].DistSq)
	}
	if !got[0].Delta.ApproxEqual(mgl64.Vec3{-3, 4, 0}) {
		t.Errorf("delta: got %v", got[0].Delta)
	}
}

func TestPairsUniqueAndOrdered(t *testing.T) {
	hs := makeHandles(t, 5)
	g := NewGrid(3)
	// A column with 2-unit spacing.
	for i, h := range hs {
		g.Insert(h, mgl64.Vec3{0, 0, float64(2 * i)})
	}

	pairs := g.Pairs(2.5)
	if len(pairs) != 4 {
		t.Fatalf("pairs: got %d, want 4", len(pairs))
	}
	for i, p := range pairs {
		if p[0].ID() >= p[1].ID() {
			t.Errorf("pair %d not ordered: %d-%d", i, p[0].ID(), p[1].ID())
		}
		if i > 0 && pairs[i-1][0].ID() > p[0].ID() {
			t.Errorf("pairs not sorted at %d", i)
		}
	}

	if got := len(g.Pairs(4.5)); got != 7 {
		t.Errorf("pairs at 4.5: got %d, want 7", got)
	}
}

func TestClear(t *testing.T) {
	hs := makeHandles(t, 2)
	g := NewGrid(1)
	g.Insert(hs[0], mgl64.Vec3{})
	g.Insert(hs[1], mgl64.Vec3{0.5, 0, 0})
	g.Clear()

	if g.Len() != 0 {
		t.Errorf("len after clear: got %d, want 0", g.Len())
	}
	if got := g.Pairs(10); len(got) != 0 {
		t.Errorf("pairs after clear: got %d, want 0", len(got))
	}
}
