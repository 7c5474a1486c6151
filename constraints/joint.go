// Package constraints implements the joint and dynamic spring constraint
// containers and the rules that drive them from the evolution.
package constraints

import (
	"errors"
	"log/slog"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

var (
	// ErrInvalidPair is returned when a constraint is added between a particle
	// and itself, or between handles that no longer resolve.
	ErrInvalidPair = errors.New("constraints: invalid particle pair")
	// ErrStaleConstraint is returned for an index or handle that no longer
	// addresses a constraint.
	ErrStaleConstraint = errors.New("constraints: stale constraint")
)

// MotionType selects how a joint axis is constrained.
type MotionType uint8

const (
	MotionFree MotionType = iota
	MotionLimited
	MotionLocked
)

func (m MotionType) String() string {
	switch m {
	case MotionFree:
		return "free"
	case MotionLimited:
		return "limited"
	case MotionLocked:
		return "locked"
	}
	return "unknown"
}

// Angular constraint indices into JointSettings.AngularMotion and AngularLimits.
const (
	Twist  = 0
	Swing2 = 1
	Swing1 = 2
)

// Axis vectors in constraint space. Twist is about X, Swing2 about Y and
// Swing1 about Z.
var (
	twistAxis  = mgl64.Vec3{1, 0, 0}
	swing2Axis = mgl64.Vec3{0, 1, 0}
	swing1Axis = mgl64.Vec3{0, 0, 1}
)

// ProjectionPhase selects which solve phase runs joint projection on its
// last iteration.
type ProjectionPhase uint8

const (
	ProjectionNone ProjectionPhase = iota
	ProjectionApply
	ProjectionApplyPushOut
)

func (p ProjectionPhase) String() string {
	switch p {
	case ProjectionNone:
		return "none"
	case ProjectionApply:
		return "apply"
	case ProjectionApplyPushOut:
		return "apply_push_out"
	}
	return "unknown"
}

// ParseProjectionPhase converts a config string to a ProjectionPhase.
func ParseProjectionPhase(s string) (ProjectionPhase, bool) {
	switch s {
	case "none", "":
		return ProjectionNone, true
	case "apply":
		return ProjectionApply, true
	case "apply_push_out":
		return ProjectionApplyPushOut, true
	}
	return ProjectionNone, false
}

// JointSettings are the per-joint motion settings. Constraint space is the
// joint frame of the parent body.
type JointSettings struct {
	Stiffness          float64
	LinearProjection   float64
	AngularProjection  float64
	ParentInvMassScale float64

	LinearMotion  [3]MotionType
	LinearLimit   float64
	AngularMotion [3]MotionType
	AngularLimits [3]float64

	SoftLinearLimitsEnabled bool
	SoftTwistLimitsEnabled  bool
	SoftSwingLimitsEnabled  bool
	SoftLinearStiffness     float64
	SoftTwistStiffness      float64
	SoftSwingStiffness      float64

	AngularDriveTarget       mgl64.Quat
	AngularSLerpDriveEnabled bool
	AngularTwistDriveEnabled bool
	AngularSwingDriveEnabled bool
	AngularDriveStiffness    float64
}

// DefaultJointSettings returns a ball-and-socket joint: linear axes locked,
// angular axes free.
func DefaultJointSettings() JointSettings {
	return JointSettings{
		Stiffness:          1,
		ParentInvMassScale: 1,
		LinearMotion:       [3]MotionType{MotionLocked, MotionLocked, MotionLocked},
		LinearLimit:        math.MaxFloat64,
		AngularMotion:      [3]MotionType{MotionFree, MotionFree, MotionFree},
		AngularLimits:      [3]float64{math.MaxFloat64, math.MaxFloat64, math.MaxFloat64},
		AngularDriveTarget: mgl64.QuatIdent(),
	}
}

// LockedJointSettings returns settings with every axis locked.
func LockedJointSettings() JointSettings {
	s := DefaultJointSettings()
	s.AngularMotion = [3]MotionType{MotionLocked, MotionLocked, MotionLocked}
	return s
}

// Sanitize clamps factors into [0, 1] and repairs a zero drive target.
func (s *JointSettings) Sanitize() {
	s.Stiffness = clamp01(s.Stiffness)
	s.LinearProjection = clamp01(s.LinearProjection)
	s.AngularProjection = clamp01(s.AngularProjection)
	s.ParentInvMassScale = clamp01(s.ParentInvMassScale)
	s.SoftLinearStiffness = clamp01(s.SoftLinearStiffness)
	s.SoftTwistStiffness = clamp01(s.SoftTwistStiffness)
	s.SoftSwingStiffness = clamp01(s.SoftSwingStiffness)
	s.AngularDriveStiffness = clamp01(s.AngularDriveStiffness)
	if s.AngularDriveTarget.Len() < 1e-9 {
		s.AngularDriveTarget = mgl64.QuatIdent()
	} else {
		s.AngularDriveTarget = s.AngularDriveTarget.Normalize()
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// JointSolverSettings are shared by every joint in a container. A non-zero
// stiffness or projection here overrides the per-joint value.
type JointSolverSettings struct {
	ApplyPairIterations        int
	ApplyPushOutPairIterations int
	SwingTwistAngleTolerance   float64
	MinParentMassRatio         float64
	MaxInertiaRatio            float64
	VelocitySolve              bool // Apply corrects velocities instead of positions
	EnableTwistLimits          bool
	EnableSwingLimits          bool
	EnableDrives               bool
	ProjectionPhase            ProjectionPhase
	LinearProjection           float64
	AngularProjection          float64
	Stiffness                  float64
	DriveStiffness             float64
	SoftLinearStiffness        float64
	SoftAngularStiffness       float64
}

// DefaultJointSolverSettings returns the container defaults.
func DefaultJointSolverSettings() JointSolverSettings {
	return JointSolverSettings{
		ApplyPairIterations:        1,
		ApplyPushOutPairIterations: 1,
		SwingTwistAngleTolerance:   1e-6,
		EnableTwistLimits:          true,
		EnableSwingLimits:          true,
		EnableDrives:               true,
		ProjectionPhase:            ProjectionNone,
	}
}

// LogValue implements slog.LogValuer.
func (s JointSolverSettings) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("pair_iterations", s.ApplyPairIterations),
		slog.Int("push_out_pair_iterations", s.ApplyPushOutPairIterations),
		slog.Float64("min_parent_mass_ratio", s.MinParentMassRatio),
		slog.Float64("max_inertia_ratio", s.MaxInertiaRatio),
		slog.Bool("velocity_solve", s.VelocitySolve),
		slog.String("projection_phase", s.ProjectionPhase.String()),
	)
}

// JointState is the per-joint solver state set by leveling.
type JointState struct {
	Level          int
	ParticleLevels [2]int
}

func newJointState() JointState {
	return JointState{Level: -1, ParticleLevels: [2]int{-1, -1}}
}

func (s JointSolverSettings) stiffness(js *JointSettings) float64 {
	if s.Stiffness > 0 {
		return s.Stiffness
	}
	return js.Stiffness
}

func (s JointSolverSettings) driveStiffness(js *JointSettings) float64 {
	if s.DriveStiffness > 0 {
		return s.DriveStiffness
	}
	return js.AngularDriveStiffness
}

// linearStiffness is soft only when soft limits are on and some linear axis
// is exactly Limited.
func (s JointSolverSettings) linearStiffness(js *JointSettings) float64 {
	base := s.stiffness(js)
	soft := js.SoftLinearLimitsEnabled &&
		(js.LinearMotion[0] == MotionLimited || js.LinearMotion[1] == MotionLimited || js.LinearMotion[2] == MotionLimited)
	if !soft {
		return base
	}
	if s.SoftLinearStiffness > 0 {
		return base * s.SoftLinearStiffness
	}
	return base * js.SoftLinearStiffness
}

func (s JointSolverSettings) twistStiffness(js *JointSettings) float64 {
	base := s.stiffness(js)
	if !js.SoftTwistLimitsEnabled || js.AngularMotion[Twist] != MotionLimited {
		return base
	}
	if s.SoftAngularStiffness > 0 {
		return base * s.SoftAngularStiffness
	}
	return base * js.SoftTwistStiffness
}

func (s JointSolverSettings) swingStiffness(js *JointSettings) float64 {
	base := s.stiffness(js)
	soft := js.SoftSwingLimitsEnabled &&
		(js.AngularMotion[Swing1] == MotionLimited || js.AngularMotion[Swing2] == MotionLimited)
	if !soft {
		return base
	}
	if s.SoftAngularStiffness > 0 {
		return base * s.SoftAngularStiffness
	}
	return base * js.SoftSwingStiffness
}

func (s JointSolverSettings) linearProjection(js *JointSettings) float64 {
	if s.LinearProjection > 0 {
		return s.LinearProjection
	}
	return js.LinearProjection
}

func (s JointSolverSettings) angularProjection(js *JointSettings) float64 {
	if s.AngularProjection > 0 {
		return s.AngularProjection
	}
	return js.AngularProjection
}
