package geometry

import "github.com/go-gl/mathgl/mgl64"

// SphereInertia returns the diagonal inertia of a solid sphere.
func SphereInertia(mass, radius float64) mgl64.Vec3 {
	i := 0.4 * mass * radius * radius
	return mgl64.Vec3{i, i, i}
}

// BoxInertia returns the diagonal inertia of a solid box with the given half extents.
func BoxInertia(mass float64, half mgl64.Vec3) mgl64.Vec3 {
	x, y, z := 2*half[0], 2*half[1], 2*half[2]
	k := mass / 12
	return mgl64.Vec3{
		k * (y*y + z*z),
		k * (x*x + z*z),
		k * (x*x + y*y),
	}
}

// Inertia returns a diagonal inertia for g. Shapes without a closed form
// fall back to their bounding box.
func Inertia(g Geometry, mass float64) mgl64.Vec3 {
	switch s := g.(type) {
	case *Sphere:
		return SphereInertia(mass, s.Radius)
	case *Box:
		return BoxInertia(mass, s.Max.Sub(s.Min).Mul(0.5))
	case *Transformed:
		return Inertia(s.Inner, mass)
	}
	if g == nil || !g.HasBoundingBox() {
		return mgl64.Vec3{mass, mass, mass}
	}
	return BoxInertia(mass, g.BoundingBox().Extents().Mul(0.5))
}
