package geometry

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func TestSpherePhi(t *testing.T) {
	s := NewSphere(2)

	tests := []struct {
		name    string
		x       mgl64.Vec3
		wantPhi float64
		wantN   mgl64.Vec3
	}{
		{"outside on x", mgl64.Vec3{5, 0, 0}, 3, mgl64.Vec3{1, 0, 0}},
		{"on surface", mgl64.Vec3{0, -2, 0}, 0, mgl64.Vec3{0, -1, 0}},
		{"inside", mgl64.Vec3{0, 0, 1}, -1, mgl64.Vec3{0, 0, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			phi, n := s.PhiWithNormal(tt.x)
			if math.Abs(phi-tt.wantPhi) > 1e-9 {
				t.Errorf("phi: got %f, want %f", phi, tt.wantPhi)
			}
			if !n.ApproxEqual(tt.wantN) {
				t.Errorf("normal: got %v, want %v", n, tt.wantN)
			}
		})
	}
}

func TestBoxPhi(t *testing.T) {
	b := NewBox(mgl64.Vec3{1, 2, 3})

	tests := []struct {
		name    string
		x       mgl64.Vec3
		wantPhi float64
		wantN   mgl64.Vec3
	}{
		{"outside face", mgl64.Vec3{3, 0, 0}, 2, mgl64.Vec3{1, 0, 0}},
		{"outside edge", mgl64.Vec3{4, 6, 0}, 5, mgl64.Vec3{0.6, 0.8, 0}},
		{"inside nearest x", mgl64.Vec3{0.5, 0, 0}, -0.5, mgl64.Vec3{1, 0, 0}},
		{"inside nearest -z", mgl64.Vec3{0, 0, -2.9}, -0.1, mgl64.Vec3{0, 0, -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			phi, n := b.PhiWithNormal(tt.x)
			if math.Abs(phi-tt.wantPhi) > 1e-9 {
				t.Errorf("phi: got %f, want %f", phi, tt.wantPhi)
			}
			if !n.ApproxEqual(tt.wantN) {
				t.Errorf("normal: got %v, want %v", n, tt.wantN)
			}
		})
	}
}

func TestAABBIntersects(t *testing.T) {
	a := NewAABB(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 1, 1})

	tests := []struct {
		name string
		b    AABB
		want bool
	}{
		{"overlap", NewAABB(mgl64.Vec3{0.5, 0.5, 0.5}, mgl64.Vec3{2, 2, 2}), true},
		{"touching", NewAABB(mgl64.Vec3{1, 0, 0}, mgl64.Vec3{2, 1, 1}), true},
		{"separate", NewAABB(mgl64.Vec3{1.5, 0, 0}, mgl64.Vec3{2, 1, 1}), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.Intersects(tt.b); got != tt.want {
				t.Errorf("Intersects: got %v, want %v", got, tt.want)
			}
		})
	}

	if !a.Intersects(NewAABB(mgl64.Vec3{1.5, 0, 0}, mgl64.Vec3{2, 1, 1}).Thicken(0.5)) {
		t.Error("thickened box should overlap")
	}
}

func TestAABBTransformed(t *testing.T) {
	b := NewAABB(mgl64.Vec3{-1, -2, -3}, mgl64.Vec3{1, 2, 3})
	q := mgl64.QuatRotate(math.Pi/2, mgl64.Vec3{0, 0, 1})

	got := b.Transformed(q, mgl64.Vec3{10, 0, 0})
	want := NewAABB(mgl64.Vec3{8, -1, -3}, mgl64.Vec3{12, 1, 3})

	if !got.Min.ApproxEqualThreshold(want.Min, 1e-9) || !got.Max.ApproxEqualThreshold(want.Max, 1e-9) {
		t.Errorf("Transformed: got %v, want %v", got, want)
	}
}

func TestTransformedGeometry(t *testing.T) {
	g := NewTransformed(NewSphere(1), mgl64.QuatIdent(), mgl64.Vec3{0, 0, 5})

	phi, n := g.PhiWithNormal(mgl64.Vec3{0, 0, 8})
	if math.Abs(phi-2) > 1e-9 {
		t.Errorf("phi: got %f, want %f", phi, 2.0)
	}
	if !n.ApproxEqual(mgl64.Vec3{0, 0, 1}) {
		t.Errorf("normal: got %v, want %v", n, mgl64.Vec3{0, 0, 1})
	}

	box := g.BoundingBox()
	if math.Abs(box.Center()[2]-5) > 1e-9 {
		t.Errorf("box center z: got %f, want %f", box.Center()[2], 5.0)
	}
}

func TestInertia(t *testing.T) {
	got := Inertia(NewBox(mgl64.Vec3{0.5, 0.5, 0.5}), 12)
	for i := 0; i < 3; i++ {
		if math.Abs(got[i]-2) > 1e-9 {
			t.Errorf("box inertia[%d]: got %f, want %f", i, got[i], 2.0)
		}
	}

	s := Inertia(NewSphere(1), 10)
	if math.Abs(s[0]-4) > 1e-9 {
		t.Errorf("sphere inertia: got %f, want %f", s[0], 4.0)
	}
}
