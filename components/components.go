// Package components defines the ECS components that make up a particle.
package components

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/pthm-cable/pbd/geometry"
)

// Kind is the particle type tag. It selects the pool family a particle lives in.
type Kind uint8

const (
	KindStatic Kind = iota
	KindKinematic
	KindDynamic
	KindClustered
)

func (k Kind) String() string {
	switch k {
	case KindStatic:
		return "static"
	case KindKinematic:
		return "kinematic"
	case KindDynamic:
		return "dynamic"
	case KindClustered:
		return "clustered"
	}
	return "unknown"
}

// ObjectState is the simulation state of a particle.
type ObjectState uint8

const (
	StateUninitialized ObjectState = iota
	StateSleeping
	StateKinematic
	StateStatic
	StateDynamic
)

func (s ObjectState) String() string {
	switch s {
	case StateSleeping:
		return "sleeping"
	case StateKinematic:
		return "kinematic"
	case StateStatic:
		return "static"
	case StateDynamic:
		return "dynamic"
	}
	return "uninitialized"
}

// LevelNone marks a particle or constraint that no leveling pass reached.
const LevelNone = -1

// Transform is the committed world pose of a particle.
type Transform struct {
	X mgl64.Vec3
	R mgl64.Quat
}

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{R: mgl64.QuatIdent()}
}

// TransformPoint maps a local point into world space.
func (t Transform) TransformPoint(p mgl64.Vec3) mgl64.Vec3 {
	return t.X.Add(t.R.Rotate(p))
}

// InverseTransformPoint maps a world point into local space.
func (t Transform) InverseTransformPoint(p mgl64.Vec3) mgl64.Vec3 {
	return t.R.Conjugate().Rotate(p.Sub(t.X))
}

// Mul composes two transforms: the result applies o first, then t.
func (t Transform) Mul(o Transform) Transform {
	return Transform{
		X: t.TransformPoint(o.X),
		R: t.R.Mul(o.R).Normalize(),
	}
}

// Predicted holds the in-step position and rotation the solver works on.
type Predicted struct {
	P mgl64.Vec3
	Q mgl64.Quat
}

// Velocity holds linear and angular velocity.
type Velocity struct {
	V mgl64.Vec3
	W mgl64.Vec3
}

// Mass holds mass properties. Inertia is diagonal in body space.
type Mass struct {
	M    float64
	InvM float64
	I    mgl64.Vec3
	InvI mgl64.Vec3
}

// InfiniteMass is the mass component of static and kinematic particles.
func InfiniteMass() Mass {
	return Mass{}
}

// NewMass builds a mass component from mass and diagonal inertia.
// Zero entries produce zero inverses.
func NewMass(m float64, inertia mgl64.Vec3) Mass {
	ms := Mass{M: m, I: inertia}
	if m > 0 {
		ms.InvM = 1 / m
	}
	for i := 0; i < 3; i++ {
		if inertia[i] > 0 {
			ms.InvI[i] = 1 / inertia[i]
		}
	}
	return ms
}

// WorldInvInertia returns R * diag(InvI) * R^T.
func (m Mass) WorldInvInertia(q mgl64.Quat) mgl64.Mat3 {
	r := q.Mat4().Mat3()
	return r.Mul3(mgl64.Diag3(m.InvI)).Mul3(r.Transpose())
}

// Body tags a particle's kind and object state and carries its solve level.
type Body struct {
	Kind         Kind
	State        ObjectState
	Level        int32
	SleepCounter int32
}

// Slot records where a particle's handle is stored inside the store's pools.
type Slot struct {
	Pool     uint8
	Index    int32
	Disabled bool
}

// Collision references the particle's geometry, which it does not own,
// and its collision group. Group -1 disables all collisions.
type Collision struct {
	Geometry geometry.Geometry
	Group    int32
}

// KinematicTarget holds the authoritative transforms a kinematic particle
// is interpolated between during a step.
type KinematicTarget struct {
	Prev   Transform
	Next   Transform
	Active bool
}
