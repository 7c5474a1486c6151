// Package renderer draws solver debug geometry with raylib.
package renderer

import (
	"math"

	rl "github.com/gen2brain/raylib-go/raylib"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/pthm-cable/pbd/components"
	"github.com/pthm-cable/pbd/debugdraw"
	"github.com/pthm-cable/pbd/geometry"
)

// Options toggles debug layers.
type Options struct {
	Particles  bool
	Wireframe  bool
	Joints     bool
	Springs    bool
	ColorLevel bool // Tint dynamic particles by solve level instead of state

	// Joint errors at or above this are drawn fully red.
	ErrorScale float64
}

// DefaultOptions draws everything.
func DefaultOptions() Options {
	return Options{
		Particles:  true,
		Joints:     true,
		Springs:    true,
		ErrorScale: 1,
	}
}

var (
	colorStatic    = rl.Color{R: 120, G: 120, B: 130, A: 255}
	colorKinematic = rl.Color{R: 70, G: 140, B: 230, A: 255}
	colorDynamic   = rl.Color{R: 240, G: 150, B: 60, A: 255}
	colorSleeping  = rl.Color{R: 110, G: 90, B: 70, A: 255}
	colorSpring    = rl.Color{R: 200, G: 80, B: 200, A: 255}
	colorJointOK   = rl.Color{R: 90, G: 220, B: 120, A: 255}
	colorJointBad  = rl.Color{R: 240, G: 50, B: 50, A: 255}
)

// levelPalette cycles for ColorLevel.
var levelPalette = []rl.Color{
	{R: 240, G: 150, B: 60, A: 255},
	{R: 230, G: 210, B: 70, A: 255},
	{R: 120, G: 210, B: 90, A: 255},
	{R: 70, G: 200, B: 200, A: 255},
	{R: 150, G: 120, B: 230, A: 255},
}

// DebugRenderer implements debugdraw.Sink with immediate raylib draw
// calls. Use it between BeginMode3D and EndMode3D.
type DebugRenderer struct {
	Options Options

	particles, joints, springs int
}

// NewDebugRenderer creates a renderer with the given options.
func NewDebugRenderer(opts Options) *DebugRenderer {
	return &DebugRenderer{Options: opts}
}

var _ debugdraw.Sink = (*DebugRenderer)(nil)

// BeginFrame resets the per-frame counters.
func (r *DebugRenderer) BeginFrame() {
	r.particles, r.joints, r.springs = 0, 0, 0
}

// EndFrame is a no-op; raylib flushes on EndMode3D.
func (r *DebugRenderer) EndFrame() {}

// Counts returns what the last frame drew.
func (r *DebugRenderer) Counts() (particles, joints, springs int) {
	return r.particles, r.joints, r.springs
}

func (r *DebugRenderer) particleColor(p debugdraw.ParticleInfo) rl.Color {
	switch {
	case p.State == components.StateSleeping:
		return colorSleeping
	case p.Kind == components.KindStatic:
		return colorStatic
	case p.Kind == components.KindKinematic || p.State == components.StateKinematic:
		return colorKinematic
	case r.Options.ColorLevel && p.Level >= 0:
		return levelPalette[p.Level%len(levelPalette)]
	}
	return colorDynamic
}

// DrawParticle draws the particle's geometry at its pose. Particles without
// geometry are drawn as small points.
func (r *DebugRenderer) DrawParticle(p debugdraw.ParticleInfo) {
	if !r.Options.Particles {
		return
	}
	r.particles++
	col := r.particleColor(p)

	rl.PushMatrix()
	defer rl.PopMatrix()
	pos := Vector3(p.Pose.X)
	rl.Translatef(pos.X, pos.Y, pos.Z)
	axis, angle := components.AxisAngle(p.Pose.R)
	if angle != 0 {
		rl.Rotatef(float32(angle*180/math.Pi), float32(axis[0]), float32(axis[1]), float32(axis[2]))
	}
	r.drawGeometry(p.Geometry, col)
	// Body axes.
	rl.DrawLine3D(rl.Vector3{}, rl.Vector3{X: 1}, rl.Red)
	rl.DrawLine3D(rl.Vector3{}, rl.Vector3{Y: 1}, rl.Green)
	rl.DrawLine3D(rl.Vector3{}, rl.Vector3{Z: 1}, rl.Blue)
}

func (r *DebugRenderer) drawGeometry(g geometry.Geometry, col rl.Color) {
	switch g := g.(type) {
	case *geometry.Sphere:
		c := Vector3(g.Center)
		if r.Options.Wireframe {
			rl.DrawSphereWires(c, float32(g.Radius), 8, 12, col)
		} else {
			rl.DrawSphereEx(c, float32(g.Radius), 8, 12, col)
		}
	case *geometry.Box:
		c := Vector3(g.Min.Add(g.Max).Mul(0.5))
		size := Vector3(g.Max.Sub(g.Min))
		if r.Options.Wireframe {
			rl.DrawCubeWiresV(c, size, col)
		} else {
			rl.DrawCubeV(c, size, col)
			rl.DrawCubeWiresV(c, size, rl.Black)
		}
	case *geometry.Transformed:
		rl.PushMatrix()
		off := Vector3(g.Offset)
		rl.Translatef(off.X, off.Y, off.Z)
		if axis, angle := components.AxisAngle(g.Rotation); angle != 0 {
			rl.Rotatef(float32(angle*180/math.Pi), float32(axis[0]), float32(axis[1]), float32(axis[2]))
		}
		r.drawGeometry(g.Inner, col)
		rl.PopMatrix()
	default:
		rl.DrawPoint3D(rl.Vector3{}, col)
	}
}

// JointColor blends from green to red as the error approaches scale.
func JointColor(linearError, scale float64) rl.Color {
	t := 1.0
	if scale > 0 {
		t = mgl64.Clamp(linearError/scale, 0, 1)
	}
	lerp := func(a, b uint8) uint8 { return uint8(float64(a) + (float64(b)-float64(a))*t) }
	return rl.Color{
		R: lerp(colorJointOK.R, colorJointBad.R),
		G: lerp(colorJointOK.G, colorJointBad.G),
		B: lerp(colorJointOK.B, colorJointBad.B),
		A: 255,
	}
}

// DrawJoint draws a line between the two joint frames and marks the parent
// end.
func (r *DebugRenderer) DrawJoint(a, b mgl64.Vec3, level int, linearError float64) {
	if !r.Options.Joints {
		return
	}
	r.joints++
	col := JointColor(linearError, r.Options.ErrorScale)
	rl.DrawLine3D(Vector3(a), Vector3(b), col)
	rl.DrawSphere(Vector3(b), 0.3, col)
}

// DrawSpring draws a spring as a line.
func (r *DebugRenderer) DrawSpring(a, b mgl64.Vec3) {
	if !r.Options.Springs {
		return
	}
	r.springs++
	rl.DrawLine3D(Vector3(a), Vector3(b), colorSpring)
}
