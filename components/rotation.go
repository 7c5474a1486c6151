package components

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// IntegrateRotation applies a small rotation vector to q using the
// first-order update q' = q + 0.5 * (dtheta, 0) * q, then renormalizes.
func IntegrateRotation(q mgl64.Quat, dtheta mgl64.Vec3) mgl64.Quat {
	if dtheta.Len() < 1e-12 {
		return q
	}
	dq := mgl64.Quat{W: 0, V: dtheta}.Mul(q).Scale(0.5)
	return q.Add(dq).Normalize()
}

// EnforceShortestArc flips q so that it lies in the same hemisphere as ref.
func EnforceShortestArc(q, ref mgl64.Quat) mgl64.Quat {
	if q.Dot(ref) < 0 {
		return q.Scale(-1)
	}
	return q
}

// AxisAngle returns the rotation axis and angle in [0, pi] of q. The axis is
// zero for the identity rotation.
func AxisAngle(q mgl64.Quat) (mgl64.Vec3, float64) {
	if q.W < 0 {
		q = q.Scale(-1)
	}
	s := q.V.Len()
	if s < 1e-12 {
		return mgl64.Vec3{}, 0
	}
	angle := 2 * math.Atan2(s, q.W)
	return q.V.Mul(1 / s), angle
}

// AngularVelocity returns the angular velocity that rotates from to to in dt.
func AngularVelocity(from, to mgl64.Quat, dt float64) mgl64.Vec3 {
	delta := EnforceShortestArc(to, from).Mul(from.Conjugate())
	axis, angle := AxisAngle(delta)
	return axis.Mul(angle / dt)
}
