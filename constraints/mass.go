package constraints

import (
	"github.com/go-gl/mathgl/mgl64"
)

// ConditionedInverseMass returns inverse mass and body-space inverse inertia
// for a parent/child pair after stability conditioning.
//
// A dynamic parent lighter than minParentMassRatio times the child is made
// heavier, its inertia scaled by the same factor. Each body's inertia is then
// raised so that no principal moment is smaller than its largest moment
// divided by maxInertiaRatio. A zero ratio disables that step. Zero mass
// means the body does not move and yields zero inverses.
func ConditionedInverseMass(
	m0 float64, i0 mgl64.Vec3,
	m1 float64, i1 mgl64.Vec3,
	minParentMassRatio, maxInertiaRatio float64,
) (invM0 float64, invI0 mgl64.Vec3, invM1 float64, invI1 mgl64.Vec3) {
	if minParentMassRatio > 0 && m0 > 0 && m1 > 0 {
		minM0 := minParentMassRatio * m1
		if m0 < minM0 {
			scale := minM0 / m0
			m0 = minM0
			i0 = i0.Mul(scale)
		}
	}
	if maxInertiaRatio > 0 {
		i0 = conditionInertia(i0, maxInertiaRatio)
		i1 = conditionInertia(i1, maxInertiaRatio)
	}
	invM0, invI0 = invertMass(m0, i0)
	invM1, invI1 = invertMass(m1, i1)
	return invM0, invI0, invM1, invI1
}

func conditionInertia(i mgl64.Vec3, maxRatio float64) mgl64.Vec3 {
	maxI := max(i[0], i[1], i[2])
	if maxI <= 0 {
		return i
	}
	minI := maxI / maxRatio
	for k := 0; k < 3; k++ {
		if i[k] > 0 && i[k] < minI {
			i[k] = minI
		}
	}
	return i
}

func invertMass(m float64, i mgl64.Vec3) (float64, mgl64.Vec3) {
	if m <= 0 {
		return 0, mgl64.Vec3{}
	}
	var inv mgl64.Vec3
	for k := 0; k < 3; k++ {
		if i[k] > 0 {
			inv[k] = 1 / i[k]
		}
	}
	return 1 / m, inv
}
