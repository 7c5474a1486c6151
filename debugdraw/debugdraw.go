// Package debugdraw defines the optional sink the evolution reports
// particles and constraints to after each step.
package debugdraw

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/pthm-cable/pbd/components"
	"github.com/pthm-cable/pbd/geometry"
)

// ParticleInfo is what the sink receives per particle.
type ParticleInfo struct {
	ID       uint32
	Kind     components.Kind
	State    components.ObjectState
	Level    int
	Pose     components.Transform
	Geometry geometry.Geometry
}

// Sink receives debug geometry. Implementations must not retain the
// geometry beyond the call.
type Sink interface {
	BeginFrame()
	DrawParticle(p ParticleInfo)
	DrawJoint(a, b mgl64.Vec3, level int, linearError float64)
	DrawSpring(a, b mgl64.Vec3)
	EndFrame()
}

// Nop discards everything.
type Nop struct{}

func (Nop) BeginFrame()                                 {}
func (Nop) DrawParticle(ParticleInfo)                   {}
func (Nop) DrawJoint(_, _ mgl64.Vec3, _ int, _ float64) {}
func (Nop) DrawSpring(_, _ mgl64.Vec3)                  {}
func (Nop) EndFrame()                                   {}

// JointLine is a recorded joint draw call.
type JointLine struct {
	A, B        mgl64.Vec3
	Level       int
	LinearError float64
}

// Recorder keeps the last frame's draw calls. The viewer records during
// the step and replays the frame inside its 3D pass.
type Recorder struct {
	Particles []ParticleInfo
	Joints    []JointLine
	Springs   [][2]mgl64.Vec3
	Frames    int
}

func (r *Recorder) BeginFrame() {
	r.Particles = r.Particles[:0]
	r.Joints = r.Joints[:0]
	r.Springs = r.Springs[:0]
}

func (r *Recorder) DrawParticle(p ParticleInfo) { r.Particles = append(r.Particles, p) }

func (r *Recorder) DrawJoint(a, b mgl64.Vec3, level int, linearError float64) {
	r.Joints = append(r.Joints, JointLine{A: a, B: b, Level: level, LinearError: linearError})
}

func (r *Recorder) DrawSpring(a, b mgl64.Vec3) { r.Springs = append(r.Springs, [2]mgl64.Vec3{a, b}) }

func (r *Recorder) EndFrame() { r.Frames++ }

// Replay sends the recorded frame to another sink.
func (r *Recorder) Replay(sink Sink) {
	sink.BeginFrame()
	for _, p := range r.Particles {
		sink.DrawParticle(p)
	}
	for _, j := range r.Joints {
		sink.DrawJoint(j.A, j.B, j.Level, j.LinearError)
	}
	for _, s := range r.Springs {
		sink.DrawSpring(s[0], s[1])
	}
	sink.EndFrame()
}
