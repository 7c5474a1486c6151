// Package geometry provides the signed-distance and bounding-volume queries
// the solver consumes for collision springs.
package geometry

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Geometry is a collision shape in its own local space.
type Geometry interface {
	// PhiWithNormal returns the signed distance from x to the surface
	// (negative inside) and the outward surface normal at the closest point.
	PhiWithNormal(x mgl64.Vec3) (float64, mgl64.Vec3)
	BoundingBox() AABB
	HasBoundingBox() bool
}

// AABB is an axis-aligned bounding box.
type AABB struct {
	Min mgl64.Vec3
	Max mgl64.Vec3
}

// NewAABB returns the box spanning min and max.
func NewAABB(min, max mgl64.Vec3) AABB {
	return AABB{Min: min, Max: max}
}

// Thicken grows the box by d on every side.
func (b AABB) Thicken(d float64) AABB {
	e := mgl64.Vec3{d, d, d}
	return AABB{Min: b.Min.Sub(e), Max: b.Max.Add(e)}
}

// Intersects reports whether the two boxes overlap (touching counts).
func (b AABB) Intersects(o AABB) bool {
	for i := 0; i < 3; i++ {
		if b.Max[i] < o.Min[i] || o.Max[i] < b.Min[i] {
			return false
		}
	}
	return true
}

// Center returns the box center.
func (b AABB) Center() mgl64.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Extents returns the full size of the box along each axis.
func (b AABB) Extents() mgl64.Vec3 {
	return b.Max.Sub(b.Min)
}

// Contains reports whether p is inside the box.
func (b AABB) Contains(p mgl64.Vec3) bool {
	for i := 0; i < 3; i++ {
		if p[i] < b.Min[i] || p[i] > b.Max[i] {
			return false
		}
	}
	return true
}

// Transformed returns the world-space box enclosing b after rotating by q
// and translating by x.
func (b AABB) Transformed(q mgl64.Quat, x mgl64.Vec3) AABB {
	c := q.Rotate(b.Center()).Add(x)
	h := b.Extents().Mul(0.5)
	r := q.Mat4().Mat3()
	var e mgl64.Vec3
	for i := 0; i < 3; i++ {
		e[i] = math.Abs(r.At(i, 0))*h[0] + math.Abs(r.At(i, 1))*h[1] + math.Abs(r.At(i, 2))*h[2]
	}
	return AABB{Min: c.Sub(e), Max: c.Add(e)}
}

// Sphere is a sphere centered at the local origin.
type Sphere struct {
	Center mgl64.Vec3
	Radius float64
}

// NewSphere returns a sphere of radius r at the local origin.
func NewSphere(r float64) *Sphere {
	return &Sphere{Radius: r}
}

func (s *Sphere) PhiWithNormal(x mgl64.Vec3) (float64, mgl64.Vec3) {
	d := x.Sub(s.Center)
	l := d.Len()
	if l < 1e-12 {
		return -s.Radius, mgl64.Vec3{0, 0, 1}
	}
	return l - s.Radius, d.Mul(1 / l)
}

func (s *Sphere) BoundingBox() AABB {
	r := mgl64.Vec3{s.Radius, s.Radius, s.Radius}
	return AABB{Min: s.Center.Sub(r), Max: s.Center.Add(r)}
}

func (s *Sphere) HasBoundingBox() bool { return true }

// Box is an axis-aligned box in local space.
type Box struct {
	Min mgl64.Vec3
	Max mgl64.Vec3
}

// NewBox returns a box centered on the local origin with the given half extents.
func NewBox(half mgl64.Vec3) *Box {
	return &Box{Min: half.Mul(-1), Max: half}
}

func (b *Box) PhiWithNormal(x mgl64.Vec3) (float64, mgl64.Vec3) {
	c := b.Min.Add(b.Max).Mul(0.5)
	h := b.Max.Sub(b.Min).Mul(0.5)
	p := x.Sub(c)

	var q mgl64.Vec3
	outside := false
	for i := 0; i < 3; i++ {
		q[i] = math.Abs(p[i]) - h[i]
		if q[i] > 0 {
			outside = true
		}
	}

	if outside {
		var d mgl64.Vec3
		for i := 0; i < 3; i++ {
			if q[i] > 0 {
				d[i] = math.Copysign(q[i], p[i])
			}
		}
		l := d.Len()
		return l, d.Mul(1 / l)
	}

	// Inside: the closest face is the one with the largest (least negative) q.
	axis := 0
	for i := 1; i < 3; i++ {
		if q[i] > q[axis] {
			axis = i
		}
	}
	var n mgl64.Vec3
	n[axis] = 1
	if p[axis] < 0 {
		n[axis] = -1
	}
	return q[axis], n
}

func (b *Box) BoundingBox() AABB {
	return AABB{Min: b.Min, Max: b.Max}
}

func (b *Box) HasBoundingBox() bool { return true }

// Plane is an infinite half space. Points on the normal side are outside.
type Plane struct {
	Point  mgl64.Vec3
	Normal mgl64.Vec3
}

func (p *Plane) PhiWithNormal(x mgl64.Vec3) (float64, mgl64.Vec3) {
	return x.Sub(p.Point).Dot(p.Normal), p.Normal
}

func (p *Plane) BoundingBox() AABB {
	inf := math.Inf(1)
	return AABB{Min: mgl64.Vec3{-inf, -inf, -inf}, Max: mgl64.Vec3{inf, inf, inf}}
}

func (p *Plane) HasBoundingBox() bool { return false }

// Transformed wraps a geometry with a fixed local offset.
type Transformed struct {
	Inner    Geometry
	Offset   mgl64.Vec3
	Rotation mgl64.Quat
}

// NewTransformed offsets g by the given rotation and translation.
func NewTransformed(g Geometry, q mgl64.Quat, x mgl64.Vec3) *Transformed {
	return &Transformed{Inner: g, Offset: x, Rotation: q}
}

func (t *Transformed) PhiWithNormal(x mgl64.Vec3) (float64, mgl64.Vec3) {
	local := t.Rotation.Conjugate().Rotate(x.Sub(t.Offset))
	phi, n := t.Inner.PhiWithNormal(local)
	return phi, t.Rotation.Rotate(n)
}

func (t *Transformed) BoundingBox() AABB {
	return t.Inner.BoundingBox().Transformed(t.Rotation, t.Offset)
}

func (t *Transformed) HasBoundingBox() bool { return t.Inner.HasBoundingBox() }
